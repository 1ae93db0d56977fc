// Package audit implements the append-only, tamper-evident audit
// pipeline of SPEC_FULL.md §4.8: a bounded channel feeds a single
// writer goroutine that batches events into time windows, commits a
// Merkle root per window, and can optionally produce a proof of a
// single event's inclusion in that root.
//
// Grounded on original_source/src/audit_adapters/{merkle_audit.rs,
// snark_proof.rs}.
package audit

import "time"

// Event type constants, matching the original implementation's
// event_type enum exactly: a content buffer flushed to storage, a
// committed file read back, a directory listed, or a node deleted.
const (
	EventDisassembled  = "DISASSEMBLED"
	EventReassembled   = "REASSEMBLED"
	EventDirectoryRead = "DIRECTORY_READ"
	EventDeleted       = "DELETED"
)

// Event is a single auditable action, mirroring the original
// implementation's AuditEvent (creation_time, event_type, file_path,
// event_key).
type Event struct {
	CreationTime time.Time
	EventType    string
	FilePath     string
	EventKey     string
}

// canonicalEncoding produces the deterministic byte encoding that
// hashLeaf is applied to, so that two equal Events always hash
// identically regardless of struct field order.
func (e Event) canonicalEncoding() []byte {
	return []byte(e.CreationTime.UTC().Format(time.RFC3339Nano) + "\x00" +
		e.EventType + "\x00" + e.FilePath + "\x00" + e.EventKey)
}
