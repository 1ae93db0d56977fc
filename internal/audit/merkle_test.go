package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowTreeRootEmpty(t *testing.T) {
	tree := newWindowTree()
	assert.Equal(t, emptyRoot(), tree.root())
}

func TestWindowTreeRootSingleLeaf(t *testing.T) {
	tree := newWindowTree()
	tree.addLeaf([]byte("only"))
	assert.Equal(t, hashLeaf([]byte("only")), tree.root())
}

func TestWindowTreeInclusionPathVerifies(t *testing.T) {
	tree := newWindowTree()
	leaves := []string{"a", "b", "c", "d", "e"}
	for _, l := range leaves {
		tree.addLeaf([]byte(l))
	}
	root := tree.root()

	for i, l := range leaves {
		path := tree.inclusionPath(i)
		leafHash := hashLeaf([]byte(l))
		assert.True(t, VerifyPath(leafHash, path, root), "leaf %d (%q) failed to verify", i, l)
	}
}

func TestVerifyPathRejectsWrongLeaf(t *testing.T) {
	tree := newWindowTree()
	tree.addLeaf([]byte("a"))
	tree.addLeaf([]byte("b"))
	root := tree.root()

	path := tree.inclusionPath(0)
	assert.False(t, VerifyPath(hashLeaf([]byte("wrong")), path, root))
}

func TestVerifyPathRejectsWrongRoot(t *testing.T) {
	tree := newWindowTree()
	tree.addLeaf([]byte("a"))
	tree.addLeaf([]byte("b"))

	path := tree.inclusionPath(0)
	assert.False(t, VerifyPath(hashLeaf([]byte("a")), path, []byte("not-the-root")))
}

func TestLargestPowerOfTwoLessThan(t *testing.T) {
	require.Equal(t, 1, largestPowerOfTwoLessThan(2))
	require.Equal(t, 2, largestPowerOfTwoLessThan(3))
	require.Equal(t, 4, largestPowerOfTwoLessThan(5))
	require.Equal(t, 4, largestPowerOfTwoLessThan(8))
	require.Equal(t, 8, largestPowerOfTwoLessThan(9))
}
