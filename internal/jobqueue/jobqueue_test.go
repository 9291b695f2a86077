package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalgw/internal/model"
	"fiscalgw/internal/store"
)

func newTestQueue(t *testing.T, adapter Adapter, cfg Config) (*Queue, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	require.NoError(t, s.PutPrinter(&model.Printer{ID: "p1", Enabled: true}))
	return New(s, adapter, log, cfg), s
}

func TestCreateJobPersistsQueued(t *testing.T) {
	q, s := newTestQueue(t, func(ctx context.Context, p *model.Printer, k model.PayloadKind, payload json.RawMessage) (interface{}, error) {
		return nil, nil
	}, DefaultConfig())

	job, err := q.CreateJob("p1", model.PayloadReceipt, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.Status)

	stored, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", stored.PrinterID)
}

func TestCancelOnlyAffectsQueuedJobs(t *testing.T) {
	q, s := newTestQueue(t, nil, DefaultConfig())
	job, err := q.CreateJob("p1", model.PayloadReceipt, nil)
	require.NoError(t, err)

	require.NoError(t, q.Cancel(job.ID))
	got, _ := s.GetJob(job.ID)
	assert.Equal(t, model.JobFailed, got.Status)

	// Cancelling an already-failed job is rejected.
	assert.Error(t, q.Cancel(job.ID))
}

func TestRetryResetsStatusWithoutClearingCounter(t *testing.T) {
	q, s := newTestQueue(t, nil, DefaultConfig())
	job, err := q.CreateJob("p1", model.PayloadReceipt, nil)
	require.NoError(t, err)

	job.Retries = 3
	job.Status = model.JobFailed
	job.LastError = "boom"
	require.NoError(t, s.PutJob(job))

	require.NoError(t, q.Retry(job.ID))
	got, _ := s.GetJob(job.ID)
	assert.Equal(t, model.JobQueued, got.Status)
	assert.Equal(t, 3, got.Retries)
	assert.Empty(t, got.LastError)
}

func TestRunOneRetriesThenFailsAfterMaxRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	var calls int32
	q, s := newTestQueue(t, func(ctx context.Context, p *model.Printer, k model.PayloadKind, payload json.RawMessage) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("printer offline")
	}, cfg)

	job, err := q.CreateJob("p1", model.PayloadReceipt, nil)
	require.NoError(t, err)

	q.runOne(context.Background(), job)
	got, _ := s.GetJob(job.ID)
	assert.Equal(t, model.JobQueued, got.Status)
	assert.Equal(t, 1, got.Retries)

	q.runOne(context.Background(), got)
	got, _ = s.GetJob(job.ID)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, "printer offline", got.LastError)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRunOneMarksSuccessWithResult(t *testing.T) {
	q, s := newTestQueue(t, func(ctx context.Context, p *model.Printer, k model.PayloadKind, payload json.RawMessage) (interface{}, error) {
		return map[string]string{"receipt_number": "1"}, nil
	}, DefaultConfig())

	job, err := q.CreateJob("p1", model.PayloadReceipt, nil)
	require.NoError(t, err)

	q.runOne(context.Background(), job)
	got, _ := s.GetJob(job.ID)
	assert.Equal(t, model.JobSuccess, got.Status)
	assert.JSONEq(t, `{"receipt_number":"1"}`, string(got.Result))
	require.NotNil(t, got.FinishedAt)
}

func TestRunOneFailsForDisabledPrinter(t *testing.T) {
	q, s := newTestQueue(t, func(ctx context.Context, p *model.Printer, k model.PayloadKind, payload json.RawMessage) (interface{}, error) {
		t.Fatal("adapter should not run for a disabled printer")
		return nil, nil
	}, DefaultConfig())
	require.NoError(t, s.PutPrinter(&model.Printer{ID: "p2", Enabled: false}))

	job, err := q.CreateJob("p2", model.PayloadReceipt, nil)
	require.NoError(t, err)

	q.runOne(context.Background(), job)
	got, _ := s.GetJob(job.ID)
	assert.Equal(t, model.JobFailed, got.Status)
}

// TestSameDeviceJobsNeverRunConcurrently is the job queue's core ordering
// guarantee: jobs on one printer are serialised even when several are
// dispatched at once (spec.md §8 scenario 6).
func TestSameDeviceJobsNeverRunConcurrently(t *testing.T) {
	var active int32
	var maxActive int32
	var mu sync.Mutex
	var order []string

	q, s := newTestQueue(t, func(ctx context.Context, p *model.Printer, k model.PayloadKind, payload json.RawMessage) (interface{}, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)

		var body struct {
			Tag string `json:"tag"`
		}
		_ = json.Unmarshal(payload, &body)
		mu.Lock()
		order = append(order, body.Tag)
		mu.Unlock()
		return nil, nil
	}, DefaultConfig())

	var jobs []*model.Job
	for i := 0; i < 5; i++ {
		job, err := q.CreateJob("p1", model.PayloadReceipt, json.RawMessage(`{"tag":"`+string(rune('a'+i))+`"}`))
		require.NoError(t, err)
		jobs = append(jobs, job)
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(j *model.Job) {
			defer wg.Done()
			q.runOne(context.Background(), j)
		}(job)
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxActive, "jobs for the same printer must never run concurrently")
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, order, "every job must run exactly once")

	for _, job := range jobs {
		got, err := s.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobSuccess, got.Status)
	}
}
