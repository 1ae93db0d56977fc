package vfs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/graymamba/internal/audit"
	"github.com/marmos91/graymamba/internal/namespace"
	"github.com/marmos91/graymamba/internal/store/badger"
)

func newTestVFS(t *testing.T) *VFS {
	t.Helper()
	return newTestVFSWithAudit(t, nil)
}

func newTestVFSWithAudit(t *testing.T, pipeline *audit.Pipeline) *VFS {
	t.Helper()
	st, err := badger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultConfig()
	cfg.WriteIdleTimeout = 20 * time.Millisecond
	v := New(st, namespace.Scope{Community: "acme", NamespaceID: "default"}, cfg, pipeline)
	t.Cleanup(v.Shutdown)
	return v
}

func newTestVFSWithChunkSize(t *testing.T, chunkSize int) *VFS {
	t.Helper()
	st, err := badger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultConfig()
	cfg.WriteIdleTimeout = 20 * time.Millisecond
	cfg.ChunkSize = chunkSize
	v := New(st, namespace.Scope{Community: "acme", NamespaceID: "default"}, cfg, nil)
	t.Cleanup(v.Shutdown)
	return v
}

func rootID(t *testing.T, ctx context.Context, v *VFS) uint64 {
	t.Helper()
	require.NoError(t, v.InitUserDirectory(ctx, "/"))
	id, err := v.Namespace().GetIDFromPath(ctx, "/")
	require.NoError(t, err)
	return id
}

func TestInitUserDirectoryIdempotent(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	require.NoError(t, v.InitUserDirectory(ctx, "/"))
	require.NoError(t, v.InitUserDirectory(ctx, "/")) // second call is a no-op

	id, err := v.Namespace().GetIDFromPath(ctx, "/")
	require.NoError(t, err)

	md, err := v.GetAttr(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, NodeDir, md.Type)
}

func TestCreateLookupGetAttr(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "hello.txt", 0o644, 1000, 1000, false)
	require.NoError(t, err)
	assert.NotZero(t, id)

	gotID, path, err := v.Lookup(ctx, dir, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "/hello.txt", path)

	md, err := v.GetAttr(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, NodeFile, md.Type)
	assert.Equal(t, uint32(1000), md.UID)
	assert.Equal(t, uint32(1000), md.GID)
	assert.Equal(t, ModeUnmask(0o644), md.Permissions)
}

func TestCreateExclusiveRejectsExisting(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	_, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	_, err = v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	assert.ErrorIs(t, err, ErrExists)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, true)
	require.NoError(t, err) // exclusive create of an existing file just returns its id
	assert.NotZero(t, id)
}

func TestMkdirAndReaddir(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	subID, err := v.Mkdir(ctx, dir, "sub", 0o755, 0, 0)
	require.NoError(t, err)

	_, err = v.Create(ctx, dir, "f1", 0o644, 0, 0, false)
	require.NoError(t, err)

	entries, err := v.Readdir(ctx, dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"sub", "f1"}, names)

	subMD, err := v.GetAttr(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, NodeDir, subMD.Type)
}

func TestSymlinkAndReadlink(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Symlink(ctx, dir, "link", "/target", 0, 0)
	require.NoError(t, err)

	target, err := v.Readlink(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/target", target)

	_, err = v.Symlink(ctx, dir, "bad", "", 0, 0)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReadlinkRejectsNonSymlink(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	_, err = v.Readlink(ctx, id)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSetAttr(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	newMode := uint32(0o600)
	newUID := uint32(42)
	md, err := v.SetAttr(ctx, id, SetAttrInput{Mode: &newMode, UID: &newUID})
	require.NoError(t, err)
	assert.Equal(t, ModeUnmask(newMode), md.Permissions)
	assert.Equal(t, newUID, md.UID)

	reread, err := v.GetAttr(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, md.Permissions, reread.Permissions)
	assert.Equal(t, md.UID, reread.UID)
}

func TestWriteReadThroughCoalescer(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	n, err := v.Write(ctx, id, 0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)

	data, eof, err := v.Read(ctx, id, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
	assert.True(t, eof)

	md, err := v.GetAttr(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), md.Size)
}

func TestWriteReadAfterCommit(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	_, err = v.Write(ctx, id, 0, []byte("committed content"))
	require.NoError(t, err)

	// Force the coalescer to flush through the codec-encoded committed path.
	v.Shutdown()

	data, eof, err := v.Read(ctx, id, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("committed content"), data)
	assert.True(t, eof)
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	subID, err := v.Mkdir(ctx, dir, "sub", 0o755, 0, 0)
	require.NoError(t, err)
	_, subPath, err := v.Lookup(ctx, dir, "sub")
	require.NoError(t, err)
	_, err = v.Create(ctx, subID, "child", 0o644, 0, 0, false)
	require.NoError(t, err)

	err = v.Remove(ctx, dir, "sub")
	assert.ErrorIs(t, err, ErrInvalid)

	exists, err := v.Namespace().Exists(ctx, subPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRemoveFile(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	_, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	require.NoError(t, v.Remove(ctx, dir, "f"))

	_, _, err = v.Lookup(ctx, dir, "f")
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "old", 0o644, 0, 0, false)
	require.NoError(t, err)

	require.NoError(t, v.Rename(ctx, dir, "old", dir, "new"))

	gotID, _, err := v.Lookup(ctx, dir, "new")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	_, _, err = v.Lookup(ctx, dir, "old")
	assert.Error(t, err)
}

func TestRenameRejectsExistingTarget(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	_, err := v.Create(ctx, dir, "a", 0o644, 0, 0, false)
	require.NoError(t, err)
	_, err = v.Create(ctx, dir, "b", 0o644, 0, 0, false)
	require.NoError(t, err)

	err = v.Rename(ctx, dir, "a", dir, "b")
	assert.ErrorIs(t, err, ErrExists)
}

func TestIsLargeSequential(t *testing.T) {
	v := newTestVFS(t)
	assert.True(t, v.isLargeSequential("/repo/objects/pack/pack-abc.pack"))
	assert.True(t, v.isLargeSequential("/repo/big.pack"))
	assert.False(t, v.isLargeSequential("/repo/README.md"))
}

func TestRenameMovesSubtree(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	aID, err := v.Mkdir(ctx, dir, "a", 0o755, 0, 0)
	require.NoError(t, err)
	bID, err := v.Mkdir(ctx, aID, "b", 0o755, 0, 0)
	require.NoError(t, err)
	cID, err := v.Create(ctx, bID, "c", 0o644, 0, 0, false)
	require.NoError(t, err)

	require.NoError(t, v.Rename(ctx, dir, "a", dir, "x"))

	cPath, err := v.Namespace().GetPathFromID(ctx, cID)
	require.NoError(t, err)
	assert.Equal(t, "/x/b/c", cPath)

	bPath, err := v.Namespace().GetPathFromID(ctx, bID)
	require.NoError(t, err)
	assert.Equal(t, "/x/b", bPath)

	aExists, err := v.Namespace().Exists(ctx, "/a")
	require.NoError(t, err)
	assert.False(t, aExists)
	bOldExists, err := v.Namespace().Exists(ctx, "/a/b")
	require.NoError(t, err)
	assert.False(t, bOldExists)

	cMD, err := v.GetAttr(ctx, cID)
	require.NoError(t, err)
	assert.Equal(t, NodeFile, cMD.Type)
}

func TestWriteAfterCommitPreservesPrecedingBytes(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	_, err = v.Write(ctx, id, 0, []byte("0123456789"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, tracked := v.mon.Get(id)
		return !tracked
	}, time.Second, 5*time.Millisecond, "buffer did not flush through the idle-timeout sweep")

	// A second, later write to the now-committed file must preserve the
	// bytes the first write already committed, not zero-fill them.
	_, err = v.Write(ctx, id, 10, []byte("ABCDE"))
	require.NoError(t, err)

	data, eof, err := v.Read(ctx, id, 0, 15)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789ABCDE"), data)
	assert.True(t, eof)
}

func TestReadBufferedSpansChunkBoundary(t *testing.T) {
	v := newTestVFSWithChunkSize(t, 8)
	ctx := context.Background()
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)

	_, err = v.Write(ctx, id, 0, []byte("ABCDEFGH"))
	require.NoError(t, err)
	_, err = v.Write(ctx, id, 8, []byte("IJKLMNOP"))
	require.NoError(t, err)

	// Offset 6, count 4 straddles the chunk-size boundary and lands on
	// neither write's own offset.
	data, eof, err := v.Read(ctx, id, 6, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("GHIJ"), data)
	assert.False(t, eof)
}

func TestMutatingOperationsEmitAuditEvents(t *testing.T) {
	var mu sync.Mutex
	var commits []audit.WindowCommit
	pipeline := audit.NewPipeline(20*time.Millisecond, func(c audit.WindowCommit) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, c)
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		pipeline.Run(ctx)
		close(runDone)
	}()

	v := newTestVFSWithAudit(t, pipeline)
	dir := rootID(t, ctx, v)

	id, err := v.Create(ctx, dir, "f", 0o644, 0, 0, false)
	require.NoError(t, err)
	_, err = v.Write(ctx, id, 0, []byte("payload"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, tracked := v.mon.Get(id)
		return !tracked
	}, time.Second, 5*time.Millisecond, "write buffer did not flush (no DISASSEMBLED event)")

	_, _, err = v.Read(ctx, id, 0, 64)
	require.NoError(t, err)
	_, err = v.Readdir(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, v.Remove(ctx, dir, "f"))

	cancel()
	<-runDone

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, commits, "expected at least one audit window commit from the mutating calls above")
}
