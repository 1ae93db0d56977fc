package vfs

import (
	"strconv"
	"time"

	"github.com/marmos91/graymamba/internal/protocol/nfs"
)

// NodeType mirrors the single-character ftype field the original
// implementation stores in each node's metadata hash: "0" for a
// directory, "1" for a regular file, "2" for a symlink.
type NodeType string

const (
	NodeDir     NodeType = "0"
	NodeFile    NodeType = "1"
	NodeSymlink NodeType = "2"
)

// Metadata is a node's full attribute record, as stored in its
// per-path hash (namespace.Scope.NodeKey(path)).
type Metadata struct {
	FileID      uint64
	Type        NodeType
	Size        uint64
	Permissions uint32
	UID         uint32
	GID         uint32
	AccessSec   uint64
	AccessNsec  uint32
	ModifySec   uint64
	ModifyNsec  uint32
	ChangeSec   uint64
	ChangeNsec  uint32
	BirthSec    uint64
	BirthNsec   uint32
	LinkTarget  string // populated only for NodeSymlink
}

// ModeUnmask reproduces the original mode_unmask_setattr exactly:
// the owner-write bit is unconditionally forced on, then the result is
// masked to the low 9 permission bits. No further rationale is
// recorded anywhere in the retrieved sources; it is preserved as-is.
func ModeUnmask(mode uint32) uint32 {
	return (mode | 0o200) & 0o777
}

func nowParts() (sec uint64, nsec uint32) {
	now := time.Now()
	return uint64(now.Unix()), uint32(now.Nanosecond())
}

// ToFields renders Metadata as the flat string map the backing store's
// HSetMultiple/HGetAll operate on.
func (m Metadata) ToFields() map[string]string {
	f := map[string]string{
		"ftype":                   string(m.Type),
		"size":                    strconv.FormatUint(m.Size, 10),
		"permissions":             strconv.FormatUint(uint64(m.Permissions), 10),
		"uid":                     strconv.FormatUint(uint64(m.UID), 10),
		"gid":                     strconv.FormatUint(uint64(m.GID), 10),
		"access_time_secs":        strconv.FormatUint(m.AccessSec, 10),
		"access_time_nsecs":       strconv.FormatUint(uint64(m.AccessNsec), 10),
		"modification_time_secs":  strconv.FormatUint(m.ModifySec, 10),
		"modification_time_nsecs": strconv.FormatUint(uint64(m.ModifyNsec), 10),
		"change_time_secs":        strconv.FormatUint(m.ChangeSec, 10),
		"change_time_nsecs":       strconv.FormatUint(uint64(m.ChangeNsec), 10),
		"birth_time_secs":         strconv.FormatUint(m.BirthSec, 10),
		"birth_time_nsecs":        strconv.FormatUint(uint64(m.BirthNsec), 10),
		"fileid":                  strconv.FormatUint(m.FileID, 10),
	}
	if m.Type == NodeSymlink {
		f["link_target"] = m.LinkTarget
	}
	return f
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseUint32(s string) uint32 {
	v, _ := strconv.ParseUint(s, 10, 32)
	return uint32(v)
}

// MetadataFromFields parses the flat string map back into Metadata.
func MetadataFromFields(f map[string]string) Metadata {
	return Metadata{
		FileID:      parseUint(f["fileid"]),
		Type:        NodeType(f["ftype"]),
		Size:        parseUint(f["size"]),
		Permissions: parseUint32(f["permissions"]),
		UID:         parseUint32(f["uid"]),
		GID:         parseUint32(f["gid"]),
		AccessSec:   parseUint(f["access_time_secs"]),
		AccessNsec:  parseUint32(f["access_time_nsecs"]),
		ModifySec:   parseUint(f["modification_time_secs"]),
		ModifyNsec:  parseUint32(f["modification_time_nsecs"]),
		ChangeSec:   parseUint(f["change_time_secs"]),
		ChangeNsec:  parseUint32(f["change_time_nsecs"]),
		BirthSec:    parseUint(f["birth_time_secs"]),
		BirthNsec:   parseUint32(f["birth_time_nsecs"]),
		LinkTarget:  f["link_target"],
	}
}

// nfsType maps NodeType onto the NFSv3 ftype3 wire values (1=REG,
// 2=DIR, 5=LNK).
func (m Metadata) nfsType() uint32 {
	switch m.Type {
	case NodeDir:
		return 2
	case NodeSymlink:
		return 5
	default:
		return 1
	}
}

// ToFileAttr renders Metadata as the NFSv3 fattr3 structure.
func (m Metadata) ToFileAttr() nfs.FileAttr {
	nlink := uint32(1)
	if m.Type == NodeDir {
		nlink = 2
	}
	return nfs.FileAttr{
		Type:   m.nfsType(),
		Mode:   ModeUnmask(m.Permissions),
		Nlink:  nlink,
		UID:    m.UID,
		GID:    m.GID,
		Size:   m.Size,
		Used:   m.Size,
		Fileid: m.FileID,
		Atime:  nfs.TimeVal{Seconds: uint32(m.AccessSec), Nseconds: m.AccessNsec},
		Mtime:  nfs.TimeVal{Seconds: uint32(m.ModifySec), Nseconds: m.ModifyNsec},
		Ctime:  nfs.TimeVal{Seconds: uint32(m.ChangeSec), Nseconds: m.ChangeNsec},
	}
}
