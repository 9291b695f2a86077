// Package store is the durable key/value backing for printers, jobs, and
// logs (spec.md §3, "the relational store... treated as an opaque durable
// key/value of records"). Records are JSON-encoded values inside per-table
// bbolt buckets, the same shape the teacher's pipeline checkpoint packages
// use for process-local durable state.
package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"fiscalgw/internal/model"
)

var (
	bucketPrinters = []byte("printers")
	bucketJobs     = []byte("jobs")
	bucketLogs     = []byte("logs")
)

// Store wraps one bbolt database file holding all three tables.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the database at path and ensures the
// three buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPrinters, bucketJobs, bucketLogs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ErrNotFound is returned by Get* when no record exists for the given id.
var ErrNotFound = fmt.Errorf("store: record not found")

func putJSON(tx *bbolt.Tx, bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func getJSON(tx *bbolt.Tx, bucket []byte, key string, v interface{}) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// PutPrinter creates or replaces a printer record.
func (s *Store) PutPrinter(p *model.Printer) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, bucketPrinters, p.ID, p)
	})
}

// GetPrinter fetches one printer by id.
func (s *Store) GetPrinter(id string) (*model.Printer, error) {
	var p model.Printer
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketPrinters, id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPrinters returns every printer record, ordered by id.
func (s *Store) ListPrinters() ([]*model.Printer, error) {
	var out []*model.Printer
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPrinters).ForEach(func(k, v []byte) error {
			var p model.Printer
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeletePrinter removes a printer record.
func (s *Store) DeletePrinter(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPrinters).Delete([]byte(id))
	})
}

// PutJob creates or replaces a job record.
func (s *Store) PutJob(j *model.Job) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, bucketJobs, j.ID, j)
	})
}

// GetJob fetches one job by id.
func (s *Store) GetJob(id string) (*model.Job, error) {
	var j model.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketJobs, id, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListQueuedJobs returns up to limit queued jobs in ascending CreatedAt
// order, the dispatcher's polling read (spec.md §4.7 "reads up to N oldest
// queued jobs").
func (s *Store) ListQueuedJobs(limit int) ([]*model.Job, error) {
	var out []*model.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j model.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.Status == model.JobQueued {
				out = append(out, &j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListJobsByPrinter returns every job for a printer ordered by CreatedAt,
// backing the REST route that lists a printer's job history.
func (s *Store) ListJobsByPrinter(printerID string) ([]*model.Job, error) {
	var out []*model.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j model.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.PrinterID == printerID {
				out = append(out, &j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AppendLog writes one append-only log record.
func (s *Store) AppendLog(r *model.LogRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, bucketLogs, r.ID, r)
	})
}

// ListLogs returns every log record ordered by timestamp, newest last.
func (s *Store) ListLogs() ([]*model.LogRecord, error) {
	var out []*model.LogRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLogs).ForEach(func(k, v []byte) error {
			var r model.LogRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
