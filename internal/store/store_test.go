package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalgw/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPrinterRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := &model.Printer{ID: "p1", Name: "Front desk", ModelKey: "dp25", Enabled: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	require.NoError(t, s.PutPrinter(p))

	got, err := s.GetPrinter("p1")
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)

	_, err = s.GetPrinter("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeletePrinter("p1"))
	_, err = s.GetPrinter("p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPrintersSortedByID(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.PutPrinter(&model.Printer{ID: id}))
	}

	printers, err := s.ListPrinters()
	require.NoError(t, err)
	require.Len(t, printers, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{printers[0].ID, printers[1].ID, printers[2].ID})
}

func TestListQueuedJobsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	for i, id := range []string{"j1", "j2", "j3"} {
		job := &model.Job{ID: id, PrinterID: "p1", Status: model.JobQueued, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.PutJob(job))
	}
	// a non-queued job must never show up in the dispatcher's read
	require.NoError(t, s.PutJob(&model.Job{ID: "j4", PrinterID: "p1", Status: model.JobSuccess, CreatedAt: base.Add(10 * time.Second)}))

	jobs, err := s.ListQueuedJobs(2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, "j2", jobs[1].ID)
}

func TestAppendLogAndList(t *testing.T) {
	s := openTestStore(t)
	r1 := &model.LogRecord{ID: "1", Message: "first", Timestamp: time.Now()}
	r2 := &model.LogRecord{ID: "2", Message: "second", Timestamp: time.Now().Add(time.Second)}
	require.NoError(t, s.AppendLog(r2))
	require.NoError(t, s.AppendLog(r1))

	logs, err := s.ListLogs()
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "first", logs[0].Message)
	assert.Equal(t, "second", logs[1].Message)
}

func TestJobResultRoundTripsRawJSON(t *testing.T) {
	s := openTestStore(t)
	job := &model.Job{ID: "j1", PrinterID: "p1", Status: model.JobSuccess, Result: json.RawMessage(`{"receipt_number":"42"}`)}
	require.NoError(t, s.PutJob(job))

	got, err := s.GetJob("j1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"receipt_number":"42"}`, string(got.Result))
}
