package pinpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestThenParsePacketRoundTrips(t *testing.T) {
	frame := BuildRequest(TypeBorica, 0x01, []byte{0xAA, 0xBB})

	pkt, err := ParsePacket(frame)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, pkt.Kind)
	assert.Equal(t, TypeBorica, pkt.Type)
	assert.Equal(t, []byte{0x01, 0xAA, 0xBB}, pkt.Payload)
}

func TestParsePacketRejectsMutatedChecksum(t *testing.T) {
	frame := BuildRequest(TypeBorica, 0x01, nil)
	frame[len(frame)-1] ^= 0xFF

	_, err := ParsePacket(frame)
	assert.Error(t, err)
	var fe *FramingError
	assert.ErrorAs(t, err, &fe)
}

func TestParsePacketRejectsTruncatedFrame(t *testing.T) {
	frame := BuildRequest(TypeBorica, 0x01, []byte{0x01, 0x02, 0x03})
	_, err := ParsePacket(frame[:len(frame)-2])
	assert.Error(t, err)
}

func TestParsePacketReclassifiesByType(t *testing.T) {
	event := BuildRequest(TypeEventBorica, 0x02, []byte{0x42})
	pkt, err := ParsePacket(event)
	require.NoError(t, err)
	assert.Equal(t, KindEvent, pkt.Kind)
}

func TestParsePacketResponseCarriesStatusByte(t *testing.T) {
	// A response frame carries its status byte ahead of the length field,
	// which BuildRequest never produces, so construct one directly.
	payload := []byte{0x01, 0x02}
	body := []byte{PRE, TypeResponse, 0x00, 'C', 0x00, byte(len(payload))}
	body = append(body, payload...)
	frame := append(body, xorAll(body))

	pkt, err := ParsePacket(frame)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, pkt.Kind)
	assert.Equal(t, byte('C'), pkt.Status)
	assert.Equal(t, payload, pkt.Payload)
}
