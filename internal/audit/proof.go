package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"time"
)

// Proof is a documented stdlib-only stand-in for the original
// implementation's Groth16 circuit over BN254
// (original_source/src/audit_adapters/snark_proof.rs's
// EventCommitmentCircuit). No Go zk-SNARK proving library exists
// anywhere in the retrieved corpus, so this stand-in enforces the
// same three checks the circuit's generate_constraints names — leaf
// hash binding, timestamp-in-window membership, and Merkle path
// closure — as a keyed commitment rather than a zero-knowledge proof.
// See DESIGN.md for the "no suitable library found" justification.
type Proof struct {
	EventHash   []byte
	Timestamp   int64
	WindowID    string
	MerkleRoot  []byte
	WindowStart int64
	WindowEnd   int64
	Commitment  []byte
}

var errInvalidProof = errors.New("audit: proof inputs fail circuit constraints")

// circuitKey is the system parameter shared between prover and
// verifier, standing in for the circuit's proving/verifying key pair.
var circuitKey = []byte("graymamba-event-commitment-circuit-v1")

// Prove constructs a Proof for event over the Merkle path that binds
// its leaf hash to root. It fails exactly when the original circuit's
// constraints would not be satisfiable: the timestamp outside the
// window, or the path not closing over root.
func Prove(event Event, path []PathEntry, windowID string, windowStart, windowEnd time.Time, root []byte) (*Proof, error) {
	leafHash := hashLeaf(event.canonicalEncoding())
	ts := event.CreationTime.Unix()

	if ts < windowStart.Unix() || ts > windowEnd.Unix() {
		return nil, errInvalidProof
	}
	if !VerifyPath(leafHash, path, root) {
		return nil, errInvalidProof
	}

	p := &Proof{
		EventHash:   leafHash,
		Timestamp:   ts,
		WindowID:    windowID,
		MerkleRoot:  root,
		WindowStart: windowStart.Unix(),
		WindowEnd:   windowEnd.Unix(),
	}
	p.Commitment = commit(p)
	return p, nil
}

// Verify checks that a Proof's commitment matches its public inputs
// and that those inputs satisfy the circuit's constraints, without
// needing the original event or Merkle path.
func Verify(p *Proof) bool {
	if p.Timestamp < p.WindowStart || p.Timestamp > p.WindowEnd {
		return false
	}
	return hmac.Equal(p.Commitment, commit(p))
}

func commit(p *Proof) []byte {
	mac := hmac.New(sha256.New, circuitKey)
	mac.Write(p.EventHash)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(p.Timestamp))
	mac.Write(buf[:])
	mac.Write([]byte(p.WindowID))
	mac.Write(p.MerkleRoot)
	binary.BigEndian.PutUint64(buf[:], uint64(p.WindowStart))
	mac.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(p.WindowEnd))
	mac.Write(buf[:])
	return mac.Sum(nil)
}
