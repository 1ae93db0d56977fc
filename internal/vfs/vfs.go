// Package vfs implements the file/directory operations of
// SPEC_FULL.md §4.4/§4.5 over the abstract backing store, grounded on
// original_source/src/sharesfs/mod.rs.
package vfs

import (
	"context"
	"strings"
	"time"

	"github.com/marmos91/graymamba/internal/audit"
	"github.com/marmos91/graymamba/internal/coalescer"
	"github.com/marmos91/graymamba/internal/codec"
	"github.com/marmos91/graymamba/internal/namespace"
	"github.com/marmos91/graymamba/internal/store"
)

// Config controls the read/write-path behavior of a VFS instance.
type Config struct {
	// LargeSequentialMarkers generalizes the original's hardcoded
	// "/objects/pack/" Git special case; isLargeSequential matches a
	// path against them. Read and Write do not consult them: every
	// write is buffered through the coalescer, and every read of a file
	// with a tracked buffer is served from it, whatever the path.
	LargeSequentialMarkers []string
	ChunkSize               int
	CodecParams             codec.Params
	WriteIdleTimeout        time.Duration
	CommitParallelism       int
}

// DefaultConfig matches the original implementation's defaults.
func DefaultConfig() Config {
	return Config{
		LargeSequentialMarkers: []string{"/objects/pack/", ".pack"},
		ChunkSize:              32 * 1024,
		CodecParams:            codec.DefaultParams,
		WriteIdleTimeout:       2 * time.Second,
		CommitParallelism:      10,
	}
}

// VFS is the file/directory facade the NFS procedure handlers call
// into. It owns the namespace index, the backing store, and the write
// coalescer.
type VFS struct {
	store store.Store
	ns    *namespace.Index
	cfg   Config
	mon   *coalescer.Monitor
	audit *audit.Pipeline
}

// New constructs a VFS bound to st under scope, and starts its write
// coalescer's background flusher. pipeline may be nil, in which case
// mutating calls proceed without auditing (used by tests that don't
// care about the audit channel).
func New(st store.Store, scope namespace.Scope, cfg Config, pipeline *audit.Pipeline) *VFS {
	v := &VFS{
		store: st,
		ns:    namespace.New(st, scope),
		cfg:   cfg,
		audit: pipeline,
	}
	v.mon = coalescer.NewMonitor(v.commitBuffer, cfg.WriteIdleTimeout, cfg.CommitParallelism)
	v.mon.Start(cfg.WriteIdleTimeout / 2)
	return v
}

// submitAudit enqueues an audit event for a completed operation. It is
// a no-op when v.audit is nil, and never fails the calling operation:
// an audit pipeline under backpressure must not take down the NFS
// request path.
func (v *VFS) submitAudit(ctx context.Context, eventType, path, key string) {
	if v.audit == nil {
		return
	}
	_ = v.audit.Submit(ctx, audit.Event{
		CreationTime: time.Now(),
		EventType:    eventType,
		FilePath:     path,
		EventKey:     key,
	})
}

// firstPathSegment returns the first component of an absolute path
// ("/alice/docs/a.txt" -> "alice"), used as the audit event_key for
// per-user events.
func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

// Shutdown stops the background flusher, force-committing any
// buffered writes first.
func (v *VFS) Shutdown() {
	v.mon.Stop()
}

func wrapStoreErr(err error) error {
	switch err {
	case nil:
		return nil
	case store.ErrKeyNotFound:
		return ErrNotFound
	case store.ErrConnectionError, store.ErrOperationFailed:
		return ErrIO
	default:
		return ErrIO
	}
}

// InitUserDirectory ensures path exists as a directory node, creating
// it (and assigning it a fresh fileid) if absent. Mirrors the MOUNT
// handler's init_user_directory call, generalized to any path (not
// just user home directories).
func (v *VFS) InitUserDirectory(ctx context.Context, path string) error {
	exists, err := v.ns.Exists(ctx, path)
	if err != nil {
		return wrapStoreErr(err)
	}
	if exists {
		return nil
	}
	id, err := v.ns.NextFileID(ctx)
	if err != nil {
		return wrapStoreErr(err)
	}
	return v.createNode(ctx, NodeDir, id, path, 0o777, 0, 0)
}

func (v *VFS) createNode(ctx context.Context, ntype NodeType, id uint64, path string, perm, uid, gid uint32) error {
	sec, nsec := nowParts()
	md := Metadata{
		FileID:      id,
		Type:        ntype,
		Permissions: perm,
		UID:         uid,
		GID:         gid,
		AccessSec:   sec, AccessNsec: nsec,
		ModifySec: sec, ModifyNsec: nsec,
		ChangeSec: sec, ChangeNsec: nsec,
		BirthSec: sec, BirthNsec: nsec,
	}
	if err := v.ns.CreateNode(ctx, id, path); err != nil {
		return wrapStoreErr(err)
	}
	if err := v.store.HSetMultiple(ctx, v.nodeKey(path), md.ToFields()); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (v *VFS) nodeKey(path string) string {
	return v.ns.NodeKey(path)
}

// Lookup resolves a child name under a known parent fileid to its
// own fileid and path.
func (v *VFS) Lookup(ctx context.Context, dirID uint64, name string) (uint64, string, error) {
	parentPath, err := v.ns.GetPathFromID(ctx, dirID)
	if err != nil {
		return 0, "", wrapStoreErr(err)
	}
	childPath := namespace.JoinChild(parentPath, name)
	id, err := v.ns.GetIDFromPath(ctx, childPath)
	if err != nil {
		return 0, "", wrapStoreErr(err)
	}
	return id, childPath, nil
}

// GetAttr returns the attributes of a node by fileid.
func (v *VFS) GetAttr(ctx context.Context, id uint64) (Metadata, error) {
	path, err := v.ns.GetPathFromID(ctx, id)
	if err != nil {
		return Metadata{}, wrapStoreErr(err)
	}
	fields, err := v.store.HGetAll(ctx, v.nodeKey(path))
	if err != nil {
		return Metadata{}, wrapStoreErr(err)
	}
	if len(fields) == 0 {
		return Metadata{}, ErrNotFound
	}
	return MetadataFromFields(fields), nil
}

// SetAttrInput carries the subset of sattr3 fields a client may choose
// to update.
type SetAttrInput struct {
	Mode       *uint32
	UID        *uint32
	GID        *uint32
	Size       *uint64
	AccessTime *time.Time
	ModifyTime *time.Time
}

// SetAttr applies a partial attribute update to a node.
func (v *VFS) SetAttr(ctx context.Context, id uint64, in SetAttrInput) (Metadata, error) {
	path, err := v.ns.GetPathFromID(ctx, id)
	if err != nil {
		return Metadata{}, wrapStoreErr(err)
	}
	fields, err := v.store.HGetAll(ctx, v.nodeKey(path))
	if err != nil || len(fields) == 0 {
		return Metadata{}, ErrNotFound
	}
	md := MetadataFromFields(fields)

	if in.Mode != nil {
		md.Permissions = ModeUnmask(*in.Mode)
	}
	if in.UID != nil {
		md.UID = *in.UID
	}
	if in.GID != nil {
		md.GID = *in.GID
	}
	if in.Size != nil {
		md.Size = *in.Size
	}
	if in.AccessTime != nil {
		md.AccessSec, md.AccessNsec = uint64(in.AccessTime.Unix()), uint32(in.AccessTime.Nanosecond())
	}
	if in.ModifyTime != nil {
		md.ModifySec, md.ModifyNsec = uint64(in.ModifyTime.Unix()), uint32(in.ModifyTime.Nanosecond())
	}
	sec, nsec := nowParts()
	md.ChangeSec, md.ChangeNsec = sec, nsec

	if err := v.store.HSetMultiple(ctx, v.nodeKey(path), md.ToFields()); err != nil {
		return Metadata{}, wrapStoreErr(err)
	}
	return md, nil
}

// isLargeSequential reports whether path matches one of the
// configured large-sequential-file markers.
func (v *VFS) isLargeSequential(path string) bool {
	for _, marker := range v.cfg.LargeSequentialMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// Read returns up to count bytes of file id's content starting at
// offset. If the file has an open write buffer, the read is served from
// the coalescer; otherwise it is decoded from the committed,
// codec-encoded content key. The path is not matched against the
// large-sequential markers.
func (v *VFS) Read(ctx context.Context, id uint64, offset uint64, count uint32) ([]byte, bool, error) {
	if buf, ok := v.mon.Get(id); ok {
		data, eof := v.readBuffered(buf, offset, count)
		return data, eof, nil
	}

	path, err := v.ns.GetPathFromID(ctx, id)
	if err != nil {
		return nil, false, wrapStoreErr(err)
	}
	md, err := v.GetAttr(ctx, id)
	if err != nil {
		return nil, false, err
	}
	defer v.submitAudit(ctx, audit.EventReassembled, path, firstPathSegment(path))

	plain, err := v.readCommitted(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if plain == nil {
		return nil, true, nil
	}
	end := offset + uint64(count)
	if end > uint64(len(plain)) {
		end = uint64(len(plain))
	}
	if offset >= end {
		return nil, true, nil
	}
	eof := end >= md.Size
	return plain[offset:end], eof, nil
}

// readBuffered performs a chunk-aligned read against an in-progress
// write buffer: offset/count are rounded out to whole ChunkSize
// windows, the covering chunks are fetched and concatenated, and the
// exact requested range is sliced out of the result. Mirrors
// original_source/src/sharesfs/mod.rs's chunked read_range caller.
func (v *VFS) readBuffered(buf *coalescer.Buffer, offset uint64, count uint32) ([]byte, bool) {
	chunkSize := uint64(v.cfg.ChunkSize)
	if chunkSize == 0 {
		chunkSize = 32 * 1024
	}
	chunkStart := (offset / chunkSize) * chunkSize
	chunkEnd := ((offset + uint64(count) + chunkSize - 1) / chunkSize) * chunkSize

	full := make([]byte, 0, chunkEnd-chunkStart)
	for co := chunkStart; co < chunkEnd; co += chunkSize {
		full = append(full, buf.ReadRange(co, uint32(chunkSize))...)
	}

	start := offset - chunkStart
	if start > uint64(len(full)) {
		start = uint64(len(full))
	}
	end := start + uint64(count)
	if end > uint64(len(full)) {
		end = uint64(len(full))
	}
	data := full[start:end]
	eof := offset+uint64(len(data)) >= buf.TotalSize()
	return data, eof
}

func (v *VFS) contentKey(path string) string {
	return v.nodeKey(path) + ":content"
}

// readCommitted fetches and codec-decodes a node's committed content.
// It returns (nil, nil) when the node has never had a content key
// written, distinct from a decode failure.
func (v *VFS) readCommitted(ctx context.Context, path string) ([]byte, error) {
	raw, err := v.store.Get(ctx, v.contentKey(path))
	if err != nil {
		if err == store.ErrKeyNotFound {
			return nil, nil
		}
		return nil, wrapStoreErr(err)
	}
	plain, err := codec.Decode([]byte(raw))
	if err != nil {
		return nil, ErrIO
	}
	return plain, nil
}

// Write buffers data at offset for file id through the coalescer,
// tracking it for the background flusher to eventually commit.
func (v *VFS) Write(ctx context.Context, id uint64, offset uint64, data []byte) (uint64, error) {
	buf, ok := v.mon.Get(id)
	if !ok {
		buf = coalescer.NewBuffer()
		if path, err := v.ns.GetPathFromID(ctx, id); err == nil {
			if existing, err := v.readCommitted(ctx, path); err == nil && len(existing) > 0 {
				buf.Write(0, existing)
			}
		}
		v.mon.Track(id, buf)
	}
	buf.Write(offset, data)
	v.mon.Touch(id)

	_, _ = v.SetAttr(ctx, id, SetAttrInput{Size: uint64Ptr(buf.TotalSize())})
	return uint64(len(data)), nil
}

func uint64Ptr(v uint64) *uint64 { return &v }

// commitBuffer is the coalescer.CommitFunc: it encodes the fully
// buffered content and writes it to the node's content key.
func (v *VFS) commitBuffer(fileid uint64, data []byte) error {
	ctx := context.Background()
	path, err := v.ns.GetPathFromID(ctx, fileid)
	if err != nil {
		return err
	}
	envelope, err := codec.Encode(data, v.cfg.CodecParams)
	if err != nil {
		return err
	}
	if err := v.store.Set(ctx, v.contentKey(path), string(envelope)); err != nil {
		return err
	}
	v.submitAudit(ctx, audit.EventDisassembled, path, firstPathSegment(path))
	return nil
}

// Create makes a new regular file named name under dirID.
func (v *VFS) Create(ctx context.Context, dirID uint64, name string, mode, uid, gid uint32, exclusive bool) (uint64, error) {
	parentPath, err := v.ns.GetPathFromID(ctx, dirID)
	if err != nil {
		return 0, ErrNotFound
	}
	childPath := namespace.JoinChild(parentPath, name)
	exists, err := v.ns.Exists(ctx, childPath)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if exists {
		if exclusive {
			id, err := v.ns.GetIDFromPath(ctx, childPath)
			if err != nil {
				return 0, wrapStoreErr(err)
			}
			return id, nil
		}
		return 0, ErrExists
	}
	id, err := v.ns.NextFileID(ctx)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if err := v.createNode(ctx, NodeFile, id, childPath, ModeUnmask(mode), uid, gid); err != nil {
		return 0, err
	}
	return id, nil
}

// Mkdir makes a new directory named name under dirID.
func (v *VFS) Mkdir(ctx context.Context, dirID uint64, name string, mode, uid, gid uint32) (uint64, error) {
	parentPath, err := v.ns.GetPathFromID(ctx, dirID)
	if err != nil {
		return 0, ErrNotFound
	}
	childPath := namespace.JoinChild(parentPath, name)
	exists, err := v.ns.Exists(ctx, childPath)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if exists {
		return 0, ErrExists
	}
	id, err := v.ns.NextFileID(ctx)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if err := v.createNode(ctx, NodeDir, id, childPath, ModeUnmask(mode), uid, gid); err != nil {
		return 0, err
	}
	return id, nil
}

// Symlink makes a new symlink named name under dirID, pointing at
// target.
func (v *VFS) Symlink(ctx context.Context, dirID uint64, name, target string, uid, gid uint32) (uint64, error) {
	if name == "" || target == "" {
		return 0, ErrInvalid
	}
	parentPath, err := v.ns.GetPathFromID(ctx, dirID)
	if err != nil {
		return 0, ErrNotFound
	}
	childPath := namespace.JoinChild(parentPath, name)
	exists, err := v.ns.Exists(ctx, childPath)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if exists {
		return 0, ErrExists
	}
	id, err := v.ns.NextFileID(ctx)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	sec, nsec := nowParts()
	md := Metadata{
		FileID: id, Type: NodeSymlink, Permissions: 0o777, UID: uid, GID: gid,
		AccessSec: sec, AccessNsec: nsec, ModifySec: sec, ModifyNsec: nsec,
		ChangeSec: sec, ChangeNsec: nsec, BirthSec: sec, BirthNsec: nsec,
		LinkTarget: target,
	}
	if err := v.ns.CreateNode(ctx, id, childPath); err != nil {
		return 0, wrapStoreErr(err)
	}
	if err := v.store.HSetMultiple(ctx, v.nodeKey(childPath), md.ToFields()); err != nil {
		return 0, wrapStoreErr(err)
	}
	return id, nil
}

// Readlink returns the target of a symlink node.
func (v *VFS) Readlink(ctx context.Context, id uint64) (string, error) {
	md, err := v.GetAttr(ctx, id)
	if err != nil {
		return "", err
	}
	if md.Type != NodeSymlink {
		return "", ErrInvalid
	}
	return md.LinkTarget, nil
}

// Remove deletes the node named name under dirID (must not be a
// directory with children).
func (v *VFS) Remove(ctx context.Context, dirID uint64, name string) error {
	id, path, err := v.Lookup(ctx, dirID, name)
	if err != nil {
		return err
	}
	md, err := v.GetAttr(ctx, id)
	if err != nil {
		return err
	}
	if md.Type == NodeDir {
		children, err := v.ns.DirectChildren(ctx, path)
		if err != nil {
			return wrapStoreErr(err)
		}
		if len(children) > 0 {
			return ErrInvalid
		}
	}
	if err := v.ns.RemoveNode(ctx, id, path); err != nil {
		return wrapStoreErr(err)
	}
	_ = v.store.Delete(ctx, v.nodeKey(path))
	_ = v.store.Delete(ctx, v.contentKey(path))
	v.submitAudit(ctx, audit.EventDeleted, path, v.ns.Community())
	return nil
}

// Rename moves fromName under fromDirID to toName under toDirID. If
// the moved node is a directory, every descendant path is rewritten
// too, so the whole subtree follows it (SPEC_FULL.md §4.3).
func (v *VFS) Rename(ctx context.Context, fromDirID uint64, fromName string, toDirID uint64, toName string) error {
	id, oldPath, err := v.Lookup(ctx, fromDirID, fromName)
	if err != nil {
		return err
	}
	toParentPath, err := v.ns.GetPathFromID(ctx, toDirID)
	if err != nil {
		return ErrNotFound
	}
	newPath := namespace.JoinChild(toParentPath, toName)

	if newPath != oldPath {
		exists, err := v.ns.Exists(ctx, newPath)
		if err != nil {
			return wrapStoreErr(err)
		}
		if exists {
			return ErrExists
		}
	}

	descendants, err := v.ns.Descendants(ctx, oldPath)
	if err != nil {
		return wrapStoreErr(err)
	}

	if err := v.renameNodeAndContent(ctx, id, oldPath, newPath); err != nil {
		return err
	}
	for _, descPath := range descendants {
		descID, err := v.ns.GetIDFromPath(ctx, descPath)
		if err != nil {
			return wrapStoreErr(err)
		}
		descNewPath := newPath + strings.TrimPrefix(descPath, oldPath)
		if err := v.renameNodeAndContent(ctx, descID, descPath, descNewPath); err != nil {
			return err
		}
	}
	return nil
}

// renameNodeAndContent moves a single node's metadata hash, content
// key, and namespace-index entries from oldPath to newPath, preserving
// its fileid. Shared by Rename for both the renamed node itself and
// each of its descendants.
func (v *VFS) renameNodeAndContent(ctx context.Context, id uint64, oldPath, newPath string) error {
	oldFields, err := v.store.HGetAll(ctx, v.nodeKey(oldPath))
	if err != nil || len(oldFields) == 0 {
		return ErrNotFound
	}
	if err := v.ns.RenameNode(ctx, id, oldPath, newPath); err != nil {
		return wrapStoreErr(err)
	}
	if err := v.store.HSetMultiple(ctx, v.nodeKey(newPath), oldFields); err != nil {
		return wrapStoreErr(err)
	}
	_ = v.store.Delete(ctx, v.nodeKey(oldPath))
	if raw, err := v.store.Get(ctx, v.contentKey(oldPath)); err == nil {
		_ = v.store.Set(ctx, v.contentKey(newPath), raw)
		_ = v.store.Delete(ctx, v.contentKey(oldPath))
	}
	return nil
}

// DirEntry is a single readdir result.
type DirEntry struct {
	FileID uint64
	Name   string
}

// Readdir lists the direct children of dirID.
func (v *VFS) Readdir(ctx context.Context, dirID uint64) ([]DirEntry, error) {
	path, err := v.ns.GetPathFromID(ctx, dirID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	children, err := v.ns.DirectChildren(ctx, path)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	entries := make([]DirEntry, 0, len(children))
	for _, childID := range children {
		childPath, err := v.ns.GetPathFromID(ctx, childID)
		if err != nil {
			continue
		}
		name := childPath
		if idx := strings.LastIndex(childPath, "/"); idx >= 0 {
			name = childPath[idx+1:]
		}
		entries = append(entries, DirEntry{FileID: childID, Name: name})
	}
	v.submitAudit(ctx, audit.EventDirectoryRead, path, v.ns.Community())
	return entries, nil
}

// Store exposes the underlying backing store, used by the MOUNT
// handler for user-key authentication.
func (v *VFS) Store() store.Store { return v.store }

// Namespace exposes the underlying namespace index, used by the MOUNT
// handler to derive file handles from paths.
func (v *VFS) Namespace() *namespace.Index { return v.ns }
