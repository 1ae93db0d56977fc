// Package nfsproc implements the NFSv3 procedures (RFC 1813 §3.3) this
// server supports, bridging the RPC/XDR wire format to internal/vfs.
// Hard links (LINK, MKNOD) and READDIRPLUS are out of scope: the
// namespace is a single-parent tree, matching
// original_source/src/sharesfs/mod.rs, which never implements them
// either.
package nfsproc

import (
	"bytes"
	"context"
	"time"

	nfstypes "github.com/marmos91/graymamba/internal/protocol/nfs"
	"github.com/marmos91/graymamba/internal/protocol/xdr"
	"github.com/marmos91/graymamba/internal/rpc"
	"github.com/marmos91/graymamba/internal/vfs"
	"github.com/marmos91/graymamba/pkg/metrics"
)

// procedureNames maps procedure numbers to their RFC 1813 names, for
// metrics labels.
var procedureNames = map[uint32]string{
	ProcNull: "null", ProcGetAttr: "getattr", ProcSetAttr: "setattr",
	ProcLookup: "lookup", ProcAccess: "access", ProcReadlink: "readlink",
	ProcRead: "read", ProcWrite: "write", ProcCreate: "create",
	ProcMkdir: "mkdir", ProcSymlink: "symlink", ProcRemove: "remove",
	ProcRmdir: "rmdir", ProcRename: "rename", ProcReaddir: "readdir",
	ProcFSStat: "fsstat", ProcFSInfo: "fsinfo", ProcPathconf: "pathconf",
	ProcCommit: "commit",
}

// Procedure numbers, RFC 1813 §3.3.
const (
	ProcNull     = 0
	ProcGetAttr  = 1
	ProcSetAttr  = 2
	ProcLookup   = 3
	ProcAccess   = 4
	ProcReadlink = 5
	ProcRead     = 6
	ProcWrite    = 7
	ProcCreate   = 8
	ProcMkdir    = 9
	ProcSymlink  = 10
	ProcRemove   = 12
	ProcRmdir    = 13
	ProcRename   = 14
	ProcReaddir  = 16
	ProcFSStat   = 18
	ProcFSInfo   = 19
	ProcPathconf = 20
	ProcCommit   = 21
)

// Status codes, RFC 1813 §2.6 (nfsstat3).
const (
	NFS3OK              = 0
	NFS3ErrPerm         = 1
	NFS3ErrNoEnt        = 2
	NFS3ErrIO           = 5
	NFS3ErrAccess       = 13
	NFS3ErrExist        = 17
	NFS3ErrNotDir       = 20
	NFS3ErrIsDir        = 21
	NFS3ErrInval        = 22
	NFS3ErrNoSpc        = 28
	NFS3ErrNameTooLong  = 63
	NFS3ErrNotEmpty     = 66
	NFS3ErrStale        = 70
	NFS3ErrBadHandle    = 10001
	NFS3ErrNotSupp      = 10004
	NFS3ErrServerFault  = 10006
)

// mapVFSError translates a vfs sentinel error into an NFSv3 status
// code, grounded on the teacher's (now-deleted)
// internal/protocol/nfs/xdr/errors.go MapStoreErrorToNFSStatus.
func mapVFSError(err error) uint32 {
	switch err {
	case nil:
		return NFS3OK
	case vfs.ErrNotFound:
		return NFS3ErrNoEnt
	case vfs.ErrExists:
		return NFS3ErrExist
	case vfs.ErrInvalid:
		return NFS3ErrInval
	case vfs.ErrAccess:
		return NFS3ErrAccess
	case vfs.ErrNotDir:
		return NFS3ErrNotDir
	case vfs.ErrIsDir:
		return NFS3ErrIsDir
	case vfs.ErrIO:
		return NFS3ErrIO
	case vfs.ErrServerFault:
		return NFS3ErrServerFault
	default:
		return NFS3ErrIO
	}
}

// Handler dispatches NFSv3 procedures against a single VFS instance.
type Handler struct {
	vfs     *vfs.VFS
	metrics metrics.NFSMetrics
}

// NewHandler constructs a Handler bound to v.
func NewHandler(v *vfs.VFS) *Handler {
	return &Handler{vfs: v}
}

// SetMetrics attaches a metrics.NFSMetrics sink. m may be nil, in
// which case Dispatch records nothing.
func (h *Handler) SetMetrics(m metrics.NFSMetrics) {
	h.metrics = m
}

// Dispatch routes an RPC call to the matching NFSv3 procedure and
// returns the full record-marked reply. Request counts and latency are
// recorded against h.metrics when set.
func (h *Handler) Dispatch(ctx context.Context, call *rpc.CallMessage) []byte {
	if h.metrics != nil {
		procedure := procedureNames[call.Procedure]
		start := time.Now()
		defer func() {
			h.metrics.RecordRequest(procedure, "default", time.Since(start), "")
		}()
	}
	switch call.Procedure {
	case ProcNull:
		return rpc.MakeSuccessReply(call.XID, nil)
	case ProcGetAttr:
		return h.getattr(ctx, call)
	case ProcSetAttr:
		return h.setattr(ctx, call)
	case ProcLookup:
		return h.lookup(ctx, call)
	case ProcAccess:
		return h.access(ctx, call)
	case ProcReadlink:
		return h.readlink(ctx, call)
	case ProcRead:
		return h.read(ctx, call)
	case ProcWrite:
		return h.write(ctx, call)
	case ProcCreate:
		return h.create(ctx, call)
	case ProcMkdir:
		return h.mkdir(ctx, call)
	case ProcSymlink:
		return h.symlink(ctx, call)
	case ProcRemove:
		return h.remove(ctx, call)
	case ProcRmdir:
		return h.rmdir(ctx, call)
	case ProcRename:
		return h.rename(ctx, call)
	case ProcReaddir:
		return h.readdir(ctx, call)
	case ProcFSStat:
		return h.fsstat(ctx, call)
	case ProcFSInfo:
		return h.fsinfo(call)
	case ProcPathconf:
		return h.pathconf(call)
	case ProcCommit:
		return h.commit(call)
	default:
		return rpc.MakeErrorReply(call.XID, rpc.RPCProcUnavail)
	}
}

func decodeHandle(r *bytes.Reader) (uint64, error) {
	fh, err := xdr.DecodeOpaque(r)
	if err != nil {
		return 0, err
	}
	id, ok := nfstypes.FileIDFromHandle(fh)
	if !ok {
		return 0, errBadHandle
	}
	return id, nil
}

var errBadHandle = errBadHandleErr{}

type errBadHandleErr struct{}

func (errBadHandleErr) Error() string { return "nfsproc: bad file handle" }

func statusOnly(xid uint32, status uint32) []byte {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, status)
	return rpc.MakeSuccessReply(xid, buf.Bytes())
}

func writeFileAttr(buf *bytes.Buffer, attr nfstypes.FileAttr) {
	_ = xdr.WriteUint32(buf, attr.Type)
	_ = xdr.WriteUint32(buf, attr.Mode)
	_ = xdr.WriteUint32(buf, attr.Nlink)
	_ = xdr.WriteUint32(buf, attr.UID)
	_ = xdr.WriteUint32(buf, attr.GID)
	_ = xdr.WriteUint64(buf, attr.Size)
	_ = xdr.WriteUint64(buf, attr.Used)
	_ = xdr.WriteUint32(buf, attr.Rdev[0])
	_ = xdr.WriteUint32(buf, attr.Rdev[1])
	_ = xdr.WriteUint64(buf, attr.Fsid)
	_ = xdr.WriteUint64(buf, attr.Fileid)
	_ = xdr.WriteUint32(buf, attr.Atime.Seconds)
	_ = xdr.WriteUint32(buf, attr.Atime.Nseconds)
	_ = xdr.WriteUint32(buf, attr.Mtime.Seconds)
	_ = xdr.WriteUint32(buf, attr.Mtime.Nseconds)
	_ = xdr.WriteUint32(buf, attr.Ctime.Seconds)
	_ = xdr.WriteUint32(buf, attr.Ctime.Nseconds)
}

func (h *Handler) getattr(ctx context.Context, call *rpc.CallMessage) []byte {
	id, err := decodeHandle(bytes.NewReader(call.Args()))
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	md, err := h.vfs.GetAttr(ctx, id)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	writeFileAttr(buf, md.ToFileAttr())
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) setattr(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	id, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}

	var in vfs.SetAttrInput
	if setMode, err := xdr.DecodeBool(r); err == nil && setMode {
		if mode, err := xdr.DecodeUint32(r); err == nil {
			in.Mode = &mode
		}
	}
	if setUID, err := xdr.DecodeBool(r); err == nil && setUID {
		if uid, err := xdr.DecodeUint32(r); err == nil {
			in.UID = &uid
		}
	}
	if setGID, err := xdr.DecodeBool(r); err == nil && setGID {
		if gid, err := xdr.DecodeUint32(r); err == nil {
			in.GID = &gid
		}
	}
	if setSize, err := xdr.DecodeBool(r); err == nil && setSize {
		if size, err := xdr.DecodeUint64(r); err == nil {
			in.Size = &size
		}
	}

	md, err := h.vfs.SetAttr(ctx, id, in)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	writeFileAttr(buf, md.ToFileAttr())
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) lookup(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	id, _, err := h.vfs.Lookup(ctx, dirID, name)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	md, err := h.vfs.GetAttr(ctx, id)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteXDROpaque(buf, nfstypes.FileHandle(id))
	writeFileAttr(buf, md.ToFileAttr())
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

// access grants every requested bit: this server enforces ownership
// semantics at the VFS layer, not via an NFSv3 ACCESS bitmask.
func (h *Handler) access(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	id, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	requested, _ := xdr.DecodeUint32(r)
	if _, err := h.vfs.GetAttr(ctx, id); err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteUint32(buf, requested)
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) readlink(ctx context.Context, call *rpc.CallMessage) []byte {
	id, err := decodeHandle(bytes.NewReader(call.Args()))
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	target, err := h.vfs.Readlink(ctx, id)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteXDRString(buf, target)
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) read(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	id, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	offset, _ := xdr.DecodeUint64(r)
	count, _ := xdr.DecodeUint32(r)

	data, eof, err := h.vfs.Read(ctx, id, offset, count)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteBool(buf, eof)
	_ = xdr.WriteXDROpaque(buf, data)
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) write(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	id, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	offset, _ := xdr.DecodeUint64(r)
	_, _ = xdr.DecodeUint32(r) // count (redundant with opaque length)
	_, _ = xdr.DecodeUint32(r) // stable flag, ignored: every write is committed by the coalescer
	data, err := xdr.DecodeOpaque(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}

	n, err := h.vfs.Write(ctx, id, offset, data)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteUint32(buf, uint32(n))
	_ = xdr.WriteUint32(buf, 2) // FILE_SYNC
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func decodeSattr(r *bytes.Reader) (mode, uid, gid uint32) {
	if setMode, err := xdr.DecodeBool(r); err == nil && setMode {
		mode, _ = xdr.DecodeUint32(r)
	}
	if setUID, err := xdr.DecodeBool(r); err == nil && setUID {
		uid, _ = xdr.DecodeUint32(r)
	}
	if setGID, err := xdr.DecodeBool(r); err == nil && setGID {
		gid, _ = xdr.DecodeUint32(r)
	}
	return mode, uid, gid
}

func (h *Handler) create(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	createMode, _ := xdr.DecodeUint32(r)
	mode, uid, gid := decodeSattr(r)

	id, err := h.vfs.Create(ctx, dirID, name, mode, uid, gid, createMode == 1 /* EXCLUSIVE */)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	md, err := h.vfs.GetAttr(ctx, id)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteXDROpaque(buf, nfstypes.FileHandle(id))
	writeFileAttr(buf, md.ToFileAttr())
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) mkdir(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	mode, uid, gid := decodeSattr(r)

	id, err := h.vfs.Mkdir(ctx, dirID, name, mode, uid, gid)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	md, err := h.vfs.GetAttr(ctx, id)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteXDROpaque(buf, nfstypes.FileHandle(id))
	writeFileAttr(buf, md.ToFileAttr())
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) symlink(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	_, uid, gid := decodeSattr(r)
	target, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}

	id, err := h.vfs.Symlink(ctx, dirID, name, target, uid, gid)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	md, err := h.vfs.GetAttr(ctx, id)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteXDROpaque(buf, nfstypes.FileHandle(id))
	writeFileAttr(buf, md.ToFileAttr())
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) remove(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	if err := h.vfs.Remove(ctx, dirID, name); err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	return statusOnly(call.XID, NFS3OK)
}

func (h *Handler) rmdir(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	if err := h.vfs.Remove(ctx, dirID, name); err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	return statusOnly(call.XID, NFS3OK)
}

func (h *Handler) rename(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	fromDirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	fromName, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	toDirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	toName, err := xdr.DecodeString(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrInval)
	}
	if err := h.vfs.Rename(ctx, fromDirID, fromName, toDirID, toName); err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	return statusOnly(call.XID, NFS3OK)
}

func (h *Handler) readdir(ctx context.Context, call *rpc.CallMessage) []byte {
	r := bytes.NewReader(call.Args())
	dirID, err := decodeHandle(r)
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	// cookie, cookieverf, count: every listing is returned in one shot,
	// so these are read but not honored.
	_, _ = xdr.DecodeUint64(r)
	var verf [8]byte
	_, _ = r.Read(verf[:])
	_, _ = xdr.DecodeUint32(r)

	entries, err := h.vfs.Readdir(ctx, dirID)
	if err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}

	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	buf.Write(verf[:])
	for i, e := range entries {
		_ = xdr.WriteBool(buf, true) // value_follows
		_ = xdr.WriteUint64(buf, e.FileID)
		_ = xdr.WriteXDRString(buf, e.Name)
		_ = xdr.WriteUint64(buf, uint64(i+1)) // cookie
	}
	_ = xdr.WriteBool(buf, false) // no more entries
	_ = xdr.WriteBool(buf, true)  // eof
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

// fsstat reports static, generous filesystem statistics: the backing
// store has no fixed capacity to report accurately.
func (h *Handler) fsstat(ctx context.Context, call *rpc.CallMessage) []byte {
	id, err := decodeHandle(bytes.NewReader(call.Args()))
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	if _, err := h.vfs.GetAttr(ctx, id); err != nil {
		return statusOnly(call.XID, mapVFSError(err))
	}
	const huge = uint64(1) << 40
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	for i := 0; i < 6; i++ {
		_ = xdr.WriteUint64(buf, huge)
	}
	_ = xdr.WriteUint32(buf, 0) // invarsec
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) fsinfo(call *rpc.CallMessage) []byte {
	_, err := decodeHandle(bytes.NewReader(call.Args()))
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	const maxIOSize = 1 << 20
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteUint32(buf, maxIOSize) // rtmax
	_ = xdr.WriteUint32(buf, maxIOSize) // rtpref
	_ = xdr.WriteUint32(buf, 4096)      // rtmult
	_ = xdr.WriteUint32(buf, maxIOSize) // wtmax
	_ = xdr.WriteUint32(buf, maxIOSize) // wtpref
	_ = xdr.WriteUint32(buf, 4096)      // wtmult
	_ = xdr.WriteUint32(buf, 4096)      // dtpref
	_ = xdr.WriteUint64(buf, ^uint64(0)>>1) // maxfilesize
	_ = xdr.WriteUint32(buf, 1) // time_delta seconds
	_ = xdr.WriteUint32(buf, 0) // time_delta nseconds
	_ = xdr.WriteUint32(buf, 0x1A) // properties: SYMLINK|HOMOGENEOUS|CANSETTIME (no LINK, no hard links)
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func (h *Handler) pathconf(call *rpc.CallMessage) []byte {
	_, err := decodeHandle(bytes.NewReader(call.Args()))
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	_ = xdr.WriteUint32(buf, 255)  // linkmax (unused, no hard links)
	_ = xdr.WriteUint32(buf, 255)  // name_max
	_ = xdr.WriteBool(buf, true)   // no_trunc
	_ = xdr.WriteBool(buf, false)  // chown_restricted
	_ = xdr.WriteBool(buf, false)  // case_insensitive
	_ = xdr.WriteBool(buf, true)   // case_preserving
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

// commit is a no-op success: every write already reaches the
// coalescer's buffer, and the background flusher's commit is the only
// durability boundary this server offers.
func (h *Handler) commit(call *rpc.CallMessage) []byte {
	_, err := decodeHandle(bytes.NewReader(call.Args()))
	if err != nil {
		return statusOnly(call.XID, NFS3ErrBadHandle)
	}
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, NFS3OK)
	var verf [8]byte
	buf.Write(verf[:])
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}
