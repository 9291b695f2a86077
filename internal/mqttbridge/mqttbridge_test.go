package mqttbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalgw/internal/model"
)

func TestActionToKindMapping(t *testing.T) {
	cases := map[string]model.PayloadKind{
		"receipt": model.PayloadFiscalReceipt,
		"storno":  model.PayloadStorno,
		"report":  model.PayloadReport,
		"cancel":  model.PayloadCancelReceipt,
	}
	for action, want := range cases {
		got, ok := actionToKind[action]
		assert.True(t, ok, "action %q should be mapped", action)
		assert.Equal(t, want, got)
	}

	_, ok := actionToKind["unknown"]
	assert.False(t, ok)
}

func TestResultFromJobSuccessExtractsReceiptSummary(t *testing.T) {
	job := &model.Job{
		ID:     "j1",
		Status: model.JobSuccess,
		Result: json.RawMessage(`{"receipt_number":"42","total_amount":"1.00"}`),
	}
	out := resultFromJob("req-1", job)
	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, "j1", out.JobID)
	assert.Equal(t, string(model.JobSuccess), out.Status)
	assert.Equal(t, "42", out.ReceiptNumber)
	assert.Equal(t, "1.00", out.TotalAmount)
}

func TestResultFromJobFailurePropagatesError(t *testing.T) {
	job := &model.Job{ID: "j2", Status: model.JobFailed, LastError: "printer offline"}
	out := resultFromJob("req-2", job)
	assert.Equal(t, "printer offline", out.Error)
	assert.Empty(t, out.ReceiptNumber)
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "localhost", cfg.Host)
	assert.EqualValues(t, 1883, cfg.Port)
	assert.EqualValues(t, 1, cfg.QoS)
	assert.Equal(t, "fiscal", cfg.TopicPrefix)
}
