// Package jobqueue is the persistent per-device FIFO (spec.md §4.7): a
// polling dispatcher, a per-printer advisory mutex, and bounded-retry
// execution against the protocol sessions.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"fiscalgw/internal/model"
	"fiscalgw/internal/store"
)

// Adapter runs one job's payload against its printer and returns a
// JSON-serialisable result. fiscalsession.Session and pinpadsession.Session
// both satisfy this through thin wrapper closures built in cmd/gatewayd.
type Adapter func(ctx context.Context, printer *model.Printer, kind model.PayloadKind, payload json.RawMessage) (interface{}, error)

// Config holds the dispatcher's tunables (spec.md §4.7, §6 "Environment
// configuration").
type Config struct {
	PollInterval    time.Duration
	DefaultTimeout  time.Duration
	MaxRetries      int
	MaxConcurrent   int64
	BatchSize       int
}

// DefaultConfig mirrors the defaults spec.md §4.7/§6 name.
func DefaultConfig() Config {
	return Config{
		PollInterval:   1 * time.Second,
		DefaultTimeout: 15 * time.Second,
		MaxRetries:     1,
		MaxConcurrent:  8,
		BatchSize:      32,
	}
}

// Queue is the dispatcher plus the per-device mutex map (spec.md §9
// "Per-device mutex map"; grounded on the teacher's device.Device mutex and
// internal/discovery's semaphore-bounded fan-out).
type Queue struct {
	store   *store.Store
	adapter Adapter
	log     *logrus.Logger
	cfg     Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	sem *semaphore.Weighted

	scheduledMu sync.Mutex
	scheduled   map[string]struct{}
}

// New builds a Queue. adapter is called under the per-printer lock for
// every dispatched job.
func New(s *store.Store, adapter Adapter, log *logrus.Logger, cfg Config) *Queue {
	return &Queue{
		store:     s,
		adapter:   adapter,
		log:       log,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		scheduled: make(map[string]struct{}),
	}
}

func (q *Queue) lockFor(printerID string) *sync.Mutex {
	q.locksMu.Lock()
	defer q.locksMu.Unlock()
	m, ok := q.locks[printerID]
	if !ok {
		m = &sync.Mutex{}
		q.locks[printerID] = m
	}
	return m
}

// CreateJob persists a new queued job and returns it, the single entry
// point the REST layer and the MQTT bridge both call (spec.md §4.8
// "Creates the job via the same API the REST layer uses").
func (q *Queue) CreateJob(printerID string, kind model.PayloadKind, payload json.RawMessage) (*model.Job, error) {
	now := time.Now()
	job := &model.Job{
		ID:          uuid.NewString(),
		PrinterID:   printerID,
		PayloadKind: kind,
		Payload:     payload,
		Status:      model.JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.PutJob(job); err != nil {
		return nil, fmt.Errorf("jobqueue: persist job: %w", err)
	}
	return job, nil
}

// Cancel transitions a queued job to failed (spec.md §4.7 "a queued job may
// be transitioned to failed"). A printing job cannot be cancelled.
func (q *Queue) Cancel(jobID string) error {
	job, err := q.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobQueued {
		return fmt.Errorf("jobqueue: job %s is not queued, cannot cancel", jobID)
	}
	job.Status = model.JobFailed
	job.LastError = "Cancelled by user"
	job.UpdatedAt = time.Now()
	return q.store.PutJob(job)
}

// Retry moves a failed or queued job back to queued without touching its
// retry counter (spec.md §3 "Retry resets status to queued without
// clearing retry counter").
func (q *Queue) Retry(jobID string) error {
	job, err := q.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobFailed && job.Status != model.JobQueued {
		return fmt.Errorf("jobqueue: job %s is not failed or queued", jobID)
	}
	job.Status = model.JobQueued
	job.LastError = ""
	job.UpdatedAt = time.Now()
	return q.store.PutJob(job)
}

// Run is the dispatcher's single cooperative task (spec.md §5 "The
// dispatcher is a single cooperative task; device executions are parallel
// workers"). It blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.dispatchOnce(ctx)
		}
	}
}

func (q *Queue) dispatchOnce(ctx context.Context) {
	jobs, err := q.store.ListQueuedJobs(q.cfg.BatchSize)
	if err != nil {
		q.log.WithError(err).Error("jobqueue: failed to list queued jobs")
		return
	}
	for _, job := range jobs {
		if q.alreadyScheduled(job.ID) {
			continue
		}
		q.markScheduled(job.ID)
		go q.runOne(ctx, job)
	}
}

func (q *Queue) alreadyScheduled(jobID string) bool {
	q.scheduledMu.Lock()
	defer q.scheduledMu.Unlock()
	_, ok := q.scheduled[jobID]
	return ok
}

func (q *Queue) markScheduled(jobID string) {
	q.scheduledMu.Lock()
	q.scheduled[jobID] = struct{}{}
	q.scheduledMu.Unlock()
}

func (q *Queue) unmarkScheduled(jobID string) {
	q.scheduledMu.Lock()
	delete(q.scheduled, jobID)
	q.scheduledMu.Unlock()
}

// runOne executes one job under its printer's mutex and the bounded
// concurrency semaphore (spec.md §4.7 "Execution").
func (q *Queue) runOne(ctx context.Context, job *model.Job) {
	defer q.unmarkScheduled(job.ID)

	if err := q.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer q.sem.Release(1)

	mu := q.lockFor(job.PrinterID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under lock: another path (REST test-print) may have already
	// claimed or cancelled this job between scheduling and acquiring.
	current, err := q.store.GetJob(job.ID)
	if err != nil || current.Status != model.JobQueued {
		return
	}

	printer, err := q.store.GetPrinter(job.PrinterID)
	if err != nil {
		q.fail(current, fmt.Sprintf("unknown printer %s", job.PrinterID))
		return
	}
	if !printer.Enabled {
		q.fail(current, fmt.Sprintf("printer %s is disabled", job.PrinterID))
		return
	}

	now := time.Now()
	current.Status = model.JobPrinting
	current.StartedAt = &now
	current.UpdatedAt = now
	if err := q.store.PutJob(current); err != nil {
		q.log.WithError(err).Error("jobqueue: failed to mark job printing")
		return
	}

	timeout := q.cfg.DefaultTimeout
	if printer.Timeout > 0 {
		timeout = printer.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, execErr := q.adapter(execCtx, printer, current.PayloadKind, current.Payload)
	if execErr != nil {
		q.retryOrFail(current, execErr.Error())
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		q.retryOrFail(current, fmt.Sprintf("failed to marshal result: %v", err))
		return
	}

	finished := time.Now()
	current.Status = model.JobSuccess
	current.Result = resultJSON
	current.LastError = ""
	current.FinishedAt = &finished
	current.UpdatedAt = finished
	if err := q.store.PutJob(current); err != nil {
		q.log.WithError(err).Error("jobqueue: failed to mark job success")
	}
}

func (q *Queue) retryOrFail(job *model.Job, errMsg string) {
	if job.Retries < q.cfg.MaxRetries {
		job.Retries++
		job.Status = model.JobQueued
		job.LastError = errMsg
		job.UpdatedAt = time.Now()
		if err := q.store.PutJob(job); err != nil {
			q.log.WithError(err).Error("jobqueue: failed to re-queue job")
		}
		return
	}
	q.fail(job, errMsg)
}

func (q *Queue) fail(job *model.Job, errMsg string) {
	finished := time.Now()
	job.Status = model.JobFailed
	job.LastError = errMsg
	job.FinishedAt = &finished
	job.UpdatedAt = finished
	if err := q.store.PutJob(job); err != nil {
		q.log.WithError(err).Error("jobqueue: failed to mark job failed")
	}
}
