// Package codec implements the data codec of SPEC_FULL.md §4.6: plaintext
// is base64-encoded, then split into a threshold (k of n) secret-shared
// envelope via github.com/vivint/infectious's Reed-Solomon FEC, and the
// reverse operation recombines and decodes it. Encode then Decode is the
// identity on the original plaintext.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/vivint/infectious"
)

const envelopeVersion byte = 1

// Params controls the threshold secret split: Total shares are
// produced, any Required of which suffice to reconstruct the data.
type Params struct {
	Required int
	Total    int
}

// DefaultParams mirrors a conservative (k=3, n=5) split: tolerate the
// loss of any two shares.
var DefaultParams = Params{Required: 3, Total: 5}

// Encode base64-encodes data and splits it into Params.Total shares,
// any Params.Required of which are enough to reconstruct it. The
// envelope is a small versioned header followed by length-prefixed
// shares, each tagged with its share index.
func Encode(data []byte, p Params) ([]byte, error) {
	if p.Required <= 0 || p.Total <= 0 || p.Required > p.Total {
		return nil, fmt.Errorf("codec: invalid params k=%d n=%d", p.Required, p.Total)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	// The FEC input length must be a multiple of Required. Pad with zero
	// bytes, which never occur in base64 text; Decode strips them.
	input := []byte(encoded)
	if rem := len(input) % p.Required; rem != 0 {
		input = append(input, make([]byte, p.Required-rem)...)
	}

	fec, err := infectious.NewFEC(p.Required, p.Total)
	if err != nil {
		return nil, fmt.Errorf("codec: new FEC: %w", err)
	}

	shares := make([]infectious.Share, 0, p.Total)
	err = fec.Encode(input, func(s infectious.Share) {
		cp := infectious.Share{Number: s.Number, Data: append([]byte{}, s.Data...)}
		shares = append(shares, cp)
	})
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}

	envelope := []byte{envelopeVersion, byte(p.Total), byte(p.Required)}
	for _, s := range shares {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s.Data)))
		envelope = append(envelope, byte(s.Number))
		envelope = append(envelope, lenBuf[:]...)
		envelope = append(envelope, s.Data...)
	}
	return envelope, nil
}

// Decode reverses Encode: it parses the envelope, reconstructs the
// base64 text from any Required-of-Total surviving shares, and
// base64-decodes the result back to the original plaintext.
func Decode(envelope []byte) ([]byte, error) {
	if len(envelope) < 3 || envelope[0] != envelopeVersion {
		return nil, fmt.Errorf("codec: bad envelope header")
	}
	total := int(envelope[1])
	required := int(envelope[2])
	offset := 3

	var shares []infectious.Share
	for len(shares) < total && offset < len(envelope) {
		if offset+5 > len(envelope) {
			return nil, fmt.Errorf("codec: truncated envelope")
		}
		number := int(envelope[offset])
		shareLen := binary.BigEndian.Uint32(envelope[offset+1 : offset+5])
		offset += 5
		if offset+int(shareLen) > len(envelope) {
			return nil, fmt.Errorf("codec: truncated share data")
		}
		shareData := append([]byte{}, envelope[offset:offset+int(shareLen)]...)
		offset += int(shareLen)
		shares = append(shares, infectious.Share{Number: number, Data: shareData})
	}

	if len(shares) < required {
		return nil, fmt.Errorf("codec: not enough shares to reconstruct: have %d need %d", len(shares), required)
	}

	fec, err := infectious.NewFEC(required, total)
	if err != nil {
		return nil, fmt.Errorf("codec: new FEC: %w", err)
	}

	recovered, err := fec.Decode(nil, shares)
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}

	plain, err := base64.StdEncoding.DecodeString(string(bytes.TrimRight(recovered, "\x00")))
	if err != nil {
		return nil, fmt.Errorf("codec: base64 decode: %w", err)
	}
	return plain, nil
}
