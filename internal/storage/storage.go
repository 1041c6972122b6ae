// Package storage keeps the history of training runs in BoltDB so every
// search can be traced back to its data, configuration and results.
package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"term-deposit/internal/common"

	"go.etcd.io/bbolt"
)

const (
	runsBucket   = "runs"    // run records keyed by start time and run ID
	runIDsBucket = "run_ids" // run ID to runs bucket key
)

// Store provides persistent storage for training run history using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the history database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, common.HistoryDBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(runIDsBucket)); err != nil {
			return fmt.Errorf("create run ids bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// runKey orders runs chronologically; the ID suffix keeps keys unique.
func runKey(started time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", started.UnixNano(), id))
}

func timeKey(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}

// getRecordsInRange walks bucket keys in [start, end] and decodes each value.
// Malformed records are skipped.
func (s *Store) getRecordsInRange(bucketName string, start, end time.Time, unmarshalFunc func([]byte) (any, error)) ([]any, error) {
	var records []any

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		c := b.Cursor()

		startKey := timeKey(start)
		endKey := timeKey(end.Add(time.Nanosecond))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			record, err := unmarshalFunc(v)
			if err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}
