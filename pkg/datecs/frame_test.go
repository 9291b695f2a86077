package datecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSeqWrapsWithoutEmittingFF(t *testing.T) {
	assert.Equal(t, SeqMin, NextSeq(0x00))
	assert.Equal(t, byte(0x21), NextSeq(0x20))
	assert.Equal(t, SeqMin, NextSeq(0xFE))
	assert.Equal(t, SeqMin, NextSeq(0xFF))
}

// buildResponseFrame hand-assembles a response frame the way a device
// would, exercising the same BCC algorithm BuildRequest uses but with a
// trailing status vector, which BuildRequest (a request-only builder)
// never produces.
func buildResponseFrame(dialect Dialect, cmd int, seq byte, data []byte, status []byte) []byte {
	var header []byte
	if dialect == DialectByte {
		header = []byte{0, seq, byte(cmd)}
	} else {
		header = append(header, 0, 0, 0, 0)
		header = append(header, seq)
		cb := encodeNibbles(uint16(cmd))
		header = append(header, cb[:]...)
	}

	rest := append(append(append([]byte{}, data...), SEP), status...)
	rest = append(rest, PST)
	body := append(header, rest...)

	if dialect == DialectByte {
		body[0] = byte(0x20 + len(body))
	} else {
		lb := encodeNibbles(uint16(0x20 + len(body)))
		copy(body[0:4], lb[:])
	}

	sum := 0
	for _, b := range body {
		sum += int(b)
	}
	bcc := encodeNibbles(uint16(sum & 0xFFFF))

	frame := []byte{PRE}
	frame = append(frame, body...)
	frame = append(frame, bcc[:]...)
	frame = append(frame, EOT)
	return frame
}

func TestParseResponseByteDialectRoundTrip(t *testing.T) {
	status := make([]byte, StatusLength(DialectByte))
	frame := buildResponseFrame(DialectByte, 0x4B, 0x21, []byte{0xAA, 0xBB}, status)

	resp, err := ParseResponse(DialectByte, frame, StatusLength(DialectByte))
	require.NoError(t, err)
	assert.Equal(t, 0x4B, resp.Cmd)
	assert.Equal(t, byte(0x21), resp.Seq)
	assert.Equal(t, []byte{0xAA, 0xBB}, resp.Data)
	assert.Equal(t, status, resp.Status)
}

func TestParseResponseHexDialectRoundTrip(t *testing.T) {
	status := make([]byte, StatusLength(DialectHex))
	frame := buildResponseFrame(DialectHex, 70, 0x22, []byte{0x01}, status)

	resp, err := ParseResponse(DialectHex, frame, StatusLength(DialectHex))
	require.NoError(t, err)
	assert.Equal(t, 70, resp.Cmd)
	assert.Equal(t, byte(0x22), resp.Seq)
	assert.Equal(t, []byte{0x01}, resp.Data)
}

func TestParseResponseRejectsMutatedBCC(t *testing.T) {
	status := make([]byte, StatusLength(DialectByte))
	frame := buildResponseFrame(DialectByte, 0x4B, 0x21, []byte{0xAA}, status)
	frame[len(frame)-2] ^= 0xFF // flip a BCC nibble byte

	_, err := ParseResponse(DialectByte, frame, StatusLength(DialectByte))
	assert.Error(t, err)
	var fe *FramingError
	assert.ErrorAs(t, err, &fe)
}

// TestParseResponseRejectsARequestFrame confirms a request frame (which
// carries no status vector) is never mistaken for a valid response.
func TestParseResponseRejectsARequestFrame(t *testing.T) {
	req := BuildRequest(DialectByte, 0x4B, []byte{0x01, 0x02}, 0x21)
	_, err := ParseResponse(DialectByte, req, StatusLength(DialectByte))
	assert.Error(t, err)
}
