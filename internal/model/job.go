// internal/model/job.go
package model

import (
	"encoding/json"
	"time"
)

// PayloadKind is the closed set of job payload kinds spec.md §3 names.
type PayloadKind string

const (
	PayloadText          PayloadKind = "text"
	PayloadReceipt       PayloadKind = "receipt"
	PayloadFiscalReceipt PayloadKind = "fiscal_receipt"
	PayloadStorno        PayloadKind = "storno"
	PayloadReport        PayloadKind = "report"
	PayloadCash          PayloadKind = "cash"
	PayloadCancelReceipt PayloadKind = "cancel_receipt"

	// Pinpad kinds.
	PayloadPinpadPurchase    PayloadKind = "pinpad_purchase"
	PayloadPinpadVoid        PayloadKind = "pinpad_void"
	PayloadPinpadEndOfDay    PayloadKind = "pinpad_end_of_day"
	PayloadPinpadTestConn    PayloadKind = "pinpad_test_connection"
	PayloadPinpadPing        PayloadKind = "pinpad_ping"
	PayloadPinpadInfo        PayloadKind = "pinpad_info"
	PayloadPinpadStatus      PayloadKind = "pinpad_status"
)

// JobStatus is the job lifecycle state (spec.md §3, §8 invariants).
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobPrinting JobStatus = "printing"
	JobSuccess  JobStatus = "success"
	JobFailed   JobStatus = "failed"
)

// Job is the durable job record.
type Job struct {
	ID          string          `json:"id"`
	PrinterID   string          `json:"printer_id"`
	PayloadKind PayloadKind     `json:"payload_kind"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Retries     int             `json:"retries"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the job has reached success or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobSuccess || j.Status == JobFailed
}
