package datecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStatusIsPure(t *testing.T) {
	status := []byte{0x40, 0x00, 0x08, 0x00, 0x00, 0x00}
	first := DecodeStatus(status)
	second := DecodeStatus(status)
	assert.Equal(t, first, second)
	assert.True(t, first["cover_open"])
	assert.True(t, first["fiscal_receipt_open"])
}

func TestDecodeStatusEmptyVectorYieldsNoFlags(t *testing.T) {
	assert.Empty(t, DecodeStatus(nil))
}

func TestBlocksReceiptOnCoverOpen(t *testing.T) {
	status := []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.True(t, DecodeStatus(status).BlocksReceipt())
}

func TestHasOpenReceiptDetectsFiscalReceiptOpen(t *testing.T) {
	status := []byte{0x00, 0x00, 0x08, 0x00, 0x00, 0x00}
	flags := DecodeStatus(status)
	assert.True(t, flags.HasOpenReceipt())
	assert.False(t, flags.BlocksReceipt())
}

// Byte 4 bits 1 and 2 mean "UIC set" and "unique id set", so an all-zero
// vector reports exactly those two as missing and nothing else.
func TestDecodeStatusZeroVectorFlagsOnlyMissingIDs(t *testing.T) {
	status := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.Equal(t, StatusFlags{"uic_missing": true, "unique_id_missing": true}, DecodeStatus(status))
}
