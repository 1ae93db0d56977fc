package mountproc

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/graymamba/internal/namespace"
	mountconst "github.com/marmos91/graymamba/internal/protocol/mount"
	"github.com/marmos91/graymamba/internal/protocol/nfs"
	"github.com/marmos91/graymamba/internal/rpc"
	"github.com/marmos91/graymamba/internal/store"
	"github.com/marmos91/graymamba/internal/store/badger"
	"github.com/marmos91/graymamba/internal/vfs"
)

func newTestHandler(t *testing.T) (*Handler, *badger.Store) {
	t.Helper()
	st, err := badger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	v := vfs.New(st, namespace.Scope{Community: "acme", NamespaceID: "default"}, vfs.DefaultConfig(), nil)
	t.Cleanup(v.Shutdown)
	return NewHandler(v), st
}

func buildCall(xid, prog, vers, proc uint32, args []byte) *rpc.CallMessage {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, xid)
	_ = binary.Write(buf, binary.BigEndian, rpc.RPCCall)
	_ = binary.Write(buf, binary.BigEndian, uint32(2))
	_ = binary.Write(buf, binary.BigEndian, prog)
	_ = binary.Write(buf, binary.BigEndian, vers)
	_ = binary.Write(buf, binary.BigEndian, proc)
	_ = binary.Write(buf, binary.BigEndian, rpc.AuthNull)
	_ = binary.Write(buf, binary.BigEndian, uint32(0))
	_ = binary.Write(buf, binary.BigEndian, rpc.AuthNull)
	_ = binary.Write(buf, binary.BigEndian, uint32(0))
	buf.Write(args)
	call, err := rpc.ReadCall(buf.Bytes())
	if err != nil {
		panic(err)
	}
	return call
}

func encodeOpaqueString(s string) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
	for i := len(s) % 4; i%4 != 0; i++ {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestDispatchNull(t *testing.T) {
	h, _ := newTestHandler(t)
	call := buildCall(1, 100005, 3, uint32(mountconst.MountProcNull), nil)
	reply := h.Dispatch(context.Background(), call)
	assert.NotEmpty(t, reply)
}

func TestMntSucceedsForUsualUser(t *testing.T) {
	h, st := newTestHandler(t)
	require.NoError(t, st.SetCredential("alice", store.AuthUsual))

	call := buildCall(2, 100005, 3, uint32(mountconst.MountProcMnt), encodeOpaqueString("/alice's drive"))
	reply := h.Dispatch(context.Background(), call)
	require.NotEmpty(t, reply)

	// The mount status word is the first 4 bytes after the frame
	// header (4) and RPC accepted-reply header (24).
	status := binary.BigEndian.Uint32(reply[28:32])
	assert.Equal(t, uint32(mountconst.MountOK), status)
}

func TestMntFailsWithoutUserKeySuffix(t *testing.T) {
	h, _ := newTestHandler(t)
	call := buildCall(3, 100005, 3, uint32(mountconst.MountProcMnt), encodeOpaqueString("/no-suffix-here"))
	reply := h.Dispatch(context.Background(), call)
	require.NotEmpty(t, reply)
	assert.Equal(t, uint32(mountconst.MountErrNoEnt), binary.BigEndian.Uint32(reply[28:32]))
}

func TestMntFailsForUnknownUser(t *testing.T) {
	h, _ := newTestHandler(t)
	call := buildCall(4, 100005, 3, uint32(mountconst.MountProcMnt), encodeOpaqueString("/ghost's drive"))
	reply := h.Dispatch(context.Background(), call)
	require.NotEmpty(t, reply)
	assert.Equal(t, uint32(mountconst.MountErrNoEnt), binary.BigEndian.Uint32(reply[28:32]))
}

func TestMntSpecialUserResolvesToRoot(t *testing.T) {
	h, st := newTestHandler(t)
	require.NoError(t, st.SetCredential("root", store.AuthSpecial))

	call := buildCall(5, 100005, 3, uint32(mountconst.MountProcMnt), encodeOpaqueString("/root's drive"))
	reply := h.Dispatch(context.Background(), call)
	require.NotEmpty(t, reply)
	require.Equal(t, uint32(mountconst.MountOK), binary.BigEndian.Uint32(reply[28:32]))

	// The returned handle is the one for "/", not for "/root".
	rootID, err := h.vfs.Namespace().GetIDFromPath(context.Background(), "/")
	require.NoError(t, err)
	fhLen := binary.BigEndian.Uint32(reply[32:36])
	assert.Equal(t, []byte(nfs.FileHandle(rootID)), reply[36:36+fhLen])
}

func TestUmntAndUmntAllReturnVoid(t *testing.T) {
	h, _ := newTestHandler(t)

	umnt := buildCall(6, 100005, 3, uint32(mountconst.MountProcUmnt), encodeOpaqueString("/whatever"))
	reply := h.Dispatch(context.Background(), umnt)
	assert.NotEmpty(t, reply)
	// A void result leaves only the frame header (4) and the accepted
	// reply header (24).
	assert.Len(t, reply, 28)

	umntAll := buildCall(7, 100005, 3, uint32(mountconst.MountProcUmntAll), nil)
	reply = h.Dispatch(context.Background(), umntAll)
	assert.NotEmpty(t, reply)
	assert.Len(t, reply, 28)
}

func TestExportListsRoot(t *testing.T) {
	h, _ := newTestHandler(t)
	call := buildCall(8, 100005, 3, uint32(mountconst.MountProcExport), nil)
	reply := h.Dispatch(context.Background(), call)
	assert.NotEmpty(t, reply)
}

func TestDispatchUnknownProcedure(t *testing.T) {
	h, _ := newTestHandler(t)
	call := buildCall(9, 100005, 3, 99, nil)
	reply := h.Dispatch(context.Background(), call)
	assert.NotEmpty(t, reply)
}

func TestExtractUserKey(t *testing.T) {
	key, ok := extractUserKey("/home/alice's drive")
	assert.True(t, ok)
	assert.Equal(t, "alice", key)

	_, ok = extractUserKey("/home/alice")
	assert.False(t, ok)
}

func TestFileHandleRoundTrip(t *testing.T) {
	fh := nfs.FileHandle(42)
	id, ok := nfs.FileIDFromHandle(fh)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)
}
