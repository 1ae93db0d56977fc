package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProveVerifyRoundTrip(t *testing.T) {
	windowStart := time.Now().Add(-time.Minute)
	windowEnd := windowStart.Add(time.Minute)

	event := Event{
		CreationTime: windowStart.Add(10 * time.Second),
		EventType:    "write",
		FilePath:     "/foo",
		EventKey:     "k1",
	}

	tree := newWindowTree()
	idx := tree.addLeaf(event.canonicalEncoding())
	tree.addLeaf([]byte("other-event"))
	root := tree.root()
	path := tree.inclusionPath(idx)

	proof, err := Prove(event, path, "window-1", windowStart, windowEnd, root)
	require.NoError(t, err)
	assert.True(t, Verify(proof))
}

func TestProveRejectsTimestampOutsideWindow(t *testing.T) {
	windowStart := time.Now().Add(-time.Minute)
	windowEnd := windowStart.Add(time.Minute)

	event := Event{
		CreationTime: windowStart.Add(-time.Hour), // before the window
		EventType:    "write",
		FilePath:     "/foo",
		EventKey:     "k1",
	}

	tree := newWindowTree()
	idx := tree.addLeaf(event.canonicalEncoding())
	root := tree.root()
	path := tree.inclusionPath(idx)

	_, err := Prove(event, path, "window-1", windowStart, windowEnd, root)
	assert.ErrorIs(t, err, errInvalidProof)
}

func TestProveRejectsBrokenPath(t *testing.T) {
	windowStart := time.Now().Add(-time.Minute)
	windowEnd := windowStart.Add(time.Minute)

	event := Event{CreationTime: windowStart.Add(time.Second), EventType: "write", FilePath: "/foo", EventKey: "k1"}

	tree := newWindowTree()
	tree.addLeaf(event.canonicalEncoding())
	root := tree.root()

	badPath := []PathEntry{{Sibling: []byte("not-a-real-sibling"), IsLeft: false}}
	_, err := Prove(event, badPath, "window-1", windowStart, windowEnd, root)
	assert.ErrorIs(t, err, errInvalidProof)
}

func TestVerifyRejectsTamperedCommitment(t *testing.T) {
	windowStart := time.Now().Add(-time.Minute)
	windowEnd := windowStart.Add(time.Minute)
	event := Event{CreationTime: windowStart.Add(time.Second), EventType: "write", FilePath: "/foo", EventKey: "k1"}

	tree := newWindowTree()
	idx := tree.addLeaf(event.canonicalEncoding())
	root := tree.root()
	path := tree.inclusionPath(idx)

	proof, err := Prove(event, path, "window-1", windowStart, windowEnd, root)
	require.NoError(t, err)

	proof.Commitment[0] ^= 0xFF
	assert.False(t, Verify(proof))
}

func TestVerifyRejectsTamperedPublicInput(t *testing.T) {
	windowStart := time.Now().Add(-time.Minute)
	windowEnd := windowStart.Add(time.Minute)
	event := Event{CreationTime: windowStart.Add(time.Second), EventType: "write", FilePath: "/foo", EventKey: "k1"}

	tree := newWindowTree()
	idx := tree.addLeaf(event.canonicalEncoding())
	root := tree.root()
	path := tree.inclusionPath(idx)

	proof, err := Prove(event, path, "window-1", windowStart, windowEnd, root)
	require.NoError(t, err)

	proof.WindowID = "tampered-window-id"
	assert.False(t, Verify(proof))
}
