package pinpadsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalgw/pkg/pinpad"
)

func TestBuildPurchaseTLVAlwaysIncludesAmount(t *testing.T) {
	tlvs := buildPurchaseTLV(PurchasePayload{AmountMinor: 150})
	require.NotEmpty(t, tlvs)
	assert.Equal(t, pinpad.TagAmount, tlvs[0].Tag)
	assert.EqualValues(t, 150, pinpad.DecodeAmount(tlvs[0].Value))
}

func TestBuildPurchaseTLVIncludesOptionalFields(t *testing.T) {
	tlvs := buildPurchaseTLV(PurchasePayload{
		AmountMinor:   150,
		TipMinor:      20,
		CashbackMinor: 500,
		Reference:     "order-42",
		Currency:      "BGN",
	})

	byTag := pinpad.ToMap(tlvs)
	require.Contains(t, byTag, pinpad.TagTip)
	require.Contains(t, byTag, pinpad.TagCashback)
	require.Contains(t, byTag, pinpad.TagReference)
	require.Contains(t, byTag, pinpad.TagCurrencyCode)
	assert.EqualValues(t, 20, pinpad.DecodeAmount(byTag[pinpad.TagTip]))
	assert.EqualValues(t, 500, pinpad.DecodeAmount(byTag[pinpad.TagCashback]))
	assert.Equal(t, "order-42", string(byTag[pinpad.TagReference]))
	assert.Equal(t, "BGN", string(byTag[pinpad.TagCurrencyCode]))
}

func TestBuildPurchaseTLVOmitsAbsentOptionalFields(t *testing.T) {
	tlvs := buildPurchaseTLV(PurchasePayload{AmountMinor: 100})
	assert.Len(t, tlvs, 1)
}

func TestBuildVoidTLVIncludesRRNAndAuthID(t *testing.T) {
	tlvs := buildVoidTLV(VoidPayload{RRN: "123456789012", AuthID: "654321"})
	byTag := pinpad.ToMap(tlvs)
	assert.Equal(t, "123456789012", string(byTag[pinpad.TagRRN]))
	assert.Equal(t, "654321", string(byTag[pinpad.TagAuthID]))
}

func TestMergeTagsIntoPopulatesApprovedFromResultCode(t *testing.T) {
	result := buildResultFromTLVs([]pinpad.TLV{
		{Tag: pinpad.TagResultCode, Value: []byte{byte(pinpad.ResultApproved)}},
		{Tag: pinpad.TagRRN, Value: []byte("000000000001")},
	})
	require.NotNil(t, result)
	assert.True(t, result.Approved)
	assert.Equal(t, "000000000001", result.RRN)
}

func TestMergeTagsIntoMarksDeclinedForNonApprovedResultCode(t *testing.T) {
	result := buildResultFromTLVs([]pinpad.TLV{
		{Tag: pinpad.TagResultCode, Value: []byte{byte(pinpad.ResultDeclined)}},
	})
	assert.False(t, result.Approved)
	assert.Equal(t, int(pinpad.ResultDeclined), result.ResultCode)
}

func TestTimeoutFloorNeverGoesBelowBusyReadTimeout(t *testing.T) {
	assert.Equal(t, busyReadTimeout, timeoutFloor(-1*time.Second))
	assert.Equal(t, busyReadTimeout, timeoutFloor(10*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, timeoutFloor(500*time.Millisecond))
}
