package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"term-deposit/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one training run: where its data came from, how the search
// was configured and what it produced. Failed runs carry Error instead of a
// result.
type RunRecord struct {
	ID          string           `json:"id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	DatasetPath string           `json:"dataset_path"`
	Rows        int              `json:"rows"`
	Positives   int              `json:"positives"`
	Config      ml.SearchConfig  `json:"config"`
	Version     string           `json:"version,omitempty"`
	Result      *ml.SearchResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Succeeded reports whether the run produced a model.
func (r RunRecord) Succeeded() bool { return r.Error == "" && r.Result != nil }

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// SaveRun stores a run, assigning an ID when it has none. Saving a run again
// with the same ID replaces it.
func (s *Store) SaveRun(run *RunRecord) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("run %s has no start time", run.ID)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(runsBucket))
		ids := tx.Bucket([]byte(runIDsBucket))

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}

		if old := ids.Get([]byte(run.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return fmt.Errorf("replace run: %w", err)
			}
		}
		key := runKey(run.StartedAt, run.ID)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(run.ID), key)
	})
}

// GetRun loads a run by ID.
func (s *Store) GetRun(id string) (RunRecord, error) {
	var run RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(runIDsBucket)).Get([]byte(id))
		if key == nil {
			return ErrRunNotFound
		}
		data := tx.Bucket([]byte(runsBucket)).Get(key)
		if data == nil {
			return ErrRunNotFound
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) == limit {
				break
			}
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}

// GetRunsInRange returns runs started within [start, end], oldest first.
func (s *Store) GetRunsInRange(start, end time.Time) ([]RunRecord, error) {
	records, err := s.getRecordsInRange(runsBucket, start, end, func(data []byte) (any, error) {
		var run RunRecord
		err := json.Unmarshal(data, &run)
		return run, err
	})
	if err != nil {
		return nil, err
	}

	runs := make([]RunRecord, len(records))
	for i, record := range records {
		runs[i] = record.(RunRecord)
	}
	return runs, nil
}
