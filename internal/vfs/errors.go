package vfs

import "errors"

// The error taxonomy of SPEC_FULL.md §7: the VFS layer returns one of
// these sentinels (or wraps a backing-store error into ErrIO) and the
// NFS procedure layer (internal/nfsproc) maps them onto NFSv3 status
// codes, grounded on the teacher's (now-deleted)
// internal/protocol/nfs/xdr/errors.go MapStoreErrorToNFSStatus pattern.
var (
	ErrNotFound    = errors.New("vfs: not found")
	ErrExists      = errors.New("vfs: already exists")
	ErrInvalid     = errors.New("vfs: invalid argument")
	ErrAccess      = errors.New("vfs: access denied")
	ErrIO          = errors.New("vfs: backing store I/O error")
	ErrServerFault = errors.New("vfs: internal invariant violation")
	ErrNotDir      = errors.New("vfs: not a directory")
	ErrIsDir       = errors.New("vfs: is a directory")
)
