package pinpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMVMessageDescriptionKnownAndFallback(t *testing.T) {
	assert.Equal(t, "Одобрена транзакция", EMVMessageDescription(0x04))
	assert.Equal(t, "Непознато съобщение от EMV ядрото", EMVMessageDescription(0x99))
}
