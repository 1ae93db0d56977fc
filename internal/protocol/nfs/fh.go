package nfs

import "encoding/binary"

// FHSize3 is the maximum NFSv3 file handle size per RFC 1813 §2.3.3.
const FHSize3 = 64

// FileHandle encodes a fileid as an NFSv3 opaque file handle: an
// 8-byte big-endian fileid, unpadded. Fileids are allocated by
// internal/namespace.Index.NextFileID and are stable for the node's
// lifetime, so the file handle never needs more than that.
func FileHandle(fileid uint64) []byte {
	fh := make([]byte, 8)
	binary.BigEndian.PutUint64(fh, fileid)
	return fh
}

// FileIDFromHandle decodes a file handle produced by FileHandle back
// into a fileid.
func FileIDFromHandle(fh []byte) (uint64, bool) {
	if len(fh) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(fh), true
}
