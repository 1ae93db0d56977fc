package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog")
	envelope, err := Encode(plain, DefaultParams)
	require.NoError(t, err)

	got, err := Decode(envelope)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plain, got))
}

func TestEncodeDecodeEmptyInput(t *testing.T) {
	envelope, err := Encode([]byte{}, DefaultParams)
	require.NoError(t, err)

	got, err := Decode(envelope)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeToleratesShareLoss(t *testing.T) {
	plain := []byte("tolerate the loss of any two of five shares")
	envelope, err := Encode(plain, Params{Required: 3, Total: 5})
	require.NoError(t, err)

	// Drop the last two shares from the envelope by truncating it to
	// only the header plus the first 3 shares' worth of bytes.
	header := envelope[:3]
	offset := 3
	var kept []byte
	for shareCount := 0; shareCount < 3; shareCount++ {
		shareLen := int(uint32(envelope[offset+1])<<24 | uint32(envelope[offset+2])<<16 | uint32(envelope[offset+3])<<8 | uint32(envelope[offset+4]))
		end := offset + 5 + shareLen
		kept = append(kept, envelope[offset:end]...)
		offset = end
	}
	truncated := append(append([]byte{}, header...), kept...)

	got, err := Decode(truncated)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plain, got))
}

func TestEncodeRejectsInvalidParams(t *testing.T) {
	_, err := Encode([]byte("x"), Params{Required: 5, Total: 3})
	assert.Error(t, err)

	_, err = Encode([]byte("x"), Params{Required: 0, Total: 3})
	assert.Error(t, err)
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0, 0})
	assert.Error(t, err)

	_, err = Decode([]byte{1})
	assert.Error(t, err)
}

func TestDecodeRejectsTooFewShares(t *testing.T) {
	envelope, err := Encode([]byte("data"), Params{Required: 3, Total: 5})
	require.NoError(t, err)

	// Keep only the header and the start of the first share, and raise
	// the header's required count to 10; Decode should refuse rather
	// than silently return garbage.
	truncated := envelope[:10]
	truncated[2] = 10 // required = 10, unreachable with this payload
	_, err = Decode(truncated)
	assert.Error(t, err)
}
