package fiscalsession

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fiscalgw/pkg/datecs"
)

func TestSeqStoreAdvancesIndependentlyPerPrinter(t *testing.T) {
	s := NewSeqStore()

	first := s.Advance("p1")
	second := s.Advance("p1")
	assert.Equal(t, datecs.SeqMin, first)
	assert.Equal(t, datecs.NextSeq(datecs.SeqMin), second)

	// A second printer starts its own counter from scratch.
	other := s.Advance("p2")
	assert.Equal(t, datecs.SeqMin, other)
}

func TestSeqStoreWrapsAtUpperBound(t *testing.T) {
	s := NewSeqStore()
	s.next["p1"] = datecs.SeqMax
	got := s.Advance("p1")
	assert.Equal(t, datecs.SeqMax, got)
	assert.Equal(t, datecs.SeqMin, s.next["p1"])
}

func TestPaymentLabelMapsKnownCodes(t *testing.T) {
	assert.Equal(t, "В брой", paymentLabel("P"))
	assert.Equal(t, "В брой", paymentLabel(" p "))
	assert.Equal(t, "Карта", paymentLabel("D"))
}

func TestPaymentLabelFallsBackToUppercasedInput(t *testing.T) {
	assert.Equal(t, "X", paymentLabel("x"))
}
