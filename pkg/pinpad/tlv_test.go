package pinpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLVEncodeDecodeRoundTrip(t *testing.T) {
	in := []TLV{
		{Tag: TagRRN, Value: []byte("123456789012")},
		{Tag: TagAmount, Value: []byte{0, 0, 0x03, 0xE8}},
	}
	encoded, err := EncodeTLVs(in)
	require.NoError(t, err)

	out, err := DecodeTLVs(encoded)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[1], out[1])
}

func TestDecodeTagWidths(t *testing.T) {
	// 1-byte tag: low 5 bits not all set.
	tag, next, err := DecodeTag([]byte{0x50}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0x50, tag)
	assert.Equal(t, 1, next)

	// 1-byte tag even with the top bit set, as long as it isn't the
	// continuation marker: the whole well-known tag range relies on this.
	tag, next, err = DecodeTag([]byte{TagAmount}, 0)
	require.NoError(t, err)
	assert.Equal(t, TagAmount, tag)
	assert.Equal(t, 1, next)

	// 2-byte tag: lead byte's low 5 bits all set, continuation byte's top
	// bit clear.
	tag, next, err = DecodeTag([]byte{0x9F, 0x01}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0x9F01, tag)
	assert.Equal(t, 2, next)

	// 3-byte tag: 0xDF followed by a byte with its top bit set, then one
	// with its top bit clear.
	tag, next, err = DecodeTag([]byte{0xDF, 0x81, 0x23}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0xDF8123, tag)
	assert.Equal(t, 3, next)
}

func TestEncodeTagChoosesMatchingWidth(t *testing.T) {
	assert.Len(t, EncodeTag(0x50), 1)
	assert.Len(t, EncodeTag(TagAmount), 1)
	assert.Len(t, EncodeTag(0x9F01), 2)
	assert.Len(t, EncodeTag(0xDF8123), 3)
}

func TestWellKnownTagsRoundTripAsSingleByte(t *testing.T) {
	for tag := TagAmount; tag <= TagCurrencyCode; tag++ {
		encoded := EncodeTag(tag)
		require.Len(t, encoded, 1, "tag 0x%x", tag)
		decoded, next, err := DecodeTag(encoded, 0)
		require.NoError(t, err)
		assert.Equal(t, tag, decoded)
		assert.Equal(t, 1, next)
	}
}

func TestAmountEncodeDecodeRoundTrip(t *testing.T) {
	tlv := EncodeAmount(123456)
	assert.Equal(t, TagAmount, tlv.Tag)
	assert.EqualValues(t, 123456, DecodeAmount(tlv.Value))
}

func TestToMapLastValueWins(t *testing.T) {
	m := ToMap([]TLV{{Tag: TagRRN, Value: []byte("first")}, {Tag: TagRRN, Value: []byte("second")}})
	assert.Equal(t, []byte("second"), m[TagRRN])
}

func TestDecodeTLVsRejectsOverrunLength(t *testing.T) {
	// Tag 0x50, declared length 10, but only 2 bytes of value follow.
	_, err := DecodeTLVs([]byte{0x50, 10, 0x01, 0x02})
	assert.Error(t, err)
}
