// Package mountproc implements the RFC 1813 Appendix I MOUNT protocol
// procedures this server supports (NULL, MNT, UMNT, UMNTALL, EXPORT),
// grounded on original_source/src/kernel/handlers/mount_handlers.rs.
package mountproc

import (
	"bytes"
	"context"
	"strings"

	"github.com/marmos91/graymamba/internal/logger"
	mountconst "github.com/marmos91/graymamba/internal/protocol/mount"
	"github.com/marmos91/graymamba/internal/protocol/nfs"
	"github.com/marmos91/graymamba/internal/protocol/xdr"
	"github.com/marmos91/graymamba/internal/rpc"
	"github.com/marmos91/graymamba/internal/store"
	"github.com/marmos91/graymamba/internal/vfs"
)

// Handler dispatches MOUNT procedures against a single VFS instance.
type Handler struct {
	vfs *vfs.VFS
}

// NewHandler constructs a Handler bound to v.
func NewHandler(v *vfs.VFS) *Handler {
	return &Handler{vfs: v}
}

// Dispatch routes an RPC call to the matching MOUNT procedure and
// returns the full record-marked reply.
func (h *Handler) Dispatch(ctx context.Context, call *rpc.CallMessage) []byte {
	switch call.Procedure {
	case mountconst.MountProcNull:
		return rpc.MakeSuccessReply(call.XID, nil)
	case mountconst.MountProcMnt:
		return h.mnt(ctx, call)
	case mountconst.MountProcUmnt:
		return h.umnt(call)
	case mountconst.MountProcUmntAll:
		return h.umntAll(call)
	case mountconst.MountProcExport:
		return h.export(call)
	default:
		return rpc.MakeErrorReply(call.XID, rpc.RPCProcUnavail)
	}
}

// extractUserKey finds the path segment ending in "'s drive" and
// returns the user key it names, mirroring the original's dirpath
// parsing in mountproc3_mnt.
func extractUserKey(dirpath string) (string, bool) {
	for _, segment := range strings.Split(dirpath, "/") {
		if strings.HasSuffix(segment, "'s drive") {
			return strings.TrimSuffix(segment, "'s drive"), true
		}
	}
	return "", false
}

func (h *Handler) mnt(ctx context.Context, call *rpc.CallMessage) []byte {
	dirpath, err := xdr.DecodeOpaque(bytes.NewReader(call.Args()))
	if err != nil {
		return rpc.MakeErrorReply(call.XID, rpc.RPCGarbageArgs)
	}
	path := string(dirpath)
	logger.Debug("mount: MNT request", "path", path)

	userKey, ok := extractUserKey(path)
	if !ok {
		logger.Warn("mount: no user key in dirpath", "path", path)
		return mntFailure(call.XID)
	}

	class, err := h.vfs.Store().AuthenticateUser(ctx, userKey)
	if err != nil {
		logger.Warn("mount: authenticate failed", "user", userKey, "error", err)
		return mntFailure(call.XID)
	}

	var resolvedPath string
	switch class {
	case store.AuthUsual:
		resolvedPath = "/" + userKey
	case store.AuthSpecial:
		resolvedPath = "/"
	default:
		return mntFailure(call.XID)
	}

	if err := h.vfs.InitUserDirectory(ctx, resolvedPath); err != nil {
		logger.Warn("mount: init user directory failed", "path", resolvedPath, "error", err)
		return mntFailure(call.XID)
	}

	fileid, err := h.vfs.Namespace().GetIDFromPath(ctx, resolvedPath)
	if err != nil {
		return mntNoEnt(call.XID)
	}

	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, mountconst.MountOK)
	_ = xdr.WriteXDROpaque(buf, nfs.FileHandle(fileid))
	_ = xdr.WriteUint32(buf, 2) // auth_flavors count
	_ = xdr.WriteUint32(buf, rpc.AuthNull)
	_ = xdr.WriteUint32(buf, rpc.AuthUnix)
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}

func mntFailure(xid uint32) []byte {
	return mntNoEnt(xid)
}

func mntNoEnt(xid uint32) []byte {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, mountconst.MountErrNoEnt)
	return rpc.MakeSuccessReply(xid, buf.Bytes())
}

func (h *Handler) umnt(call *rpc.CallMessage) []byte {
	_, _ = xdr.DecodeOpaque(bytes.NewReader(call.Args()))
	return rpc.MakeSuccessReply(call.XID, nil)
}

func (h *Handler) umntAll(call *rpc.CallMessage) []byte {
	return rpc.MakeSuccessReply(call.XID, nil)
}

// export reports a single export, "/", with no restricted group list,
// matching the original's always-open mountproc3_export.
func (h *Handler) export(call *rpc.CallMessage) []byte {
	buf := new(bytes.Buffer)
	_ = xdr.WriteBool(buf, true)
	_ = xdr.WriteXDRString(buf, "/")
	_ = xdr.WriteBool(buf, false) // no groups
	_ = xdr.WriteBool(buf, false) // no further exports
	return rpc.MakeSuccessReply(call.XID, buf.Bytes())
}
