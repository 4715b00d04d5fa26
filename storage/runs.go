// Package storage persists reconciliation run history.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/attrsync/attrsync/types"
)

// Bucket names in bbolt
var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")
)

// RunStore keeps one record per completed reconciliation run, ordered
// by a monotonically increasing sequence. Survives process restarts.
type RunStore struct {
	db *bbolt.DB
}

// Open creates or opens the run store in the given directory.
func Open(dir string) (*RunStore, error) {
	dbPath := filepath.Join(dir, "attrsync.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &RunStore{db: db}, nil
}

// Close closes the store.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Record appends one run's stats.
func (s *RunStore) Record(stats types.BatchRunStats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRuns)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		value, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("failed to marshal run stats: %w", err)
		}
		return bucket.Put(key, value)
	})
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *RunStore) List(limit int) ([]types.BatchRunStats, error) {
	var runs []types.BatchRunStats

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketRuns).Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var stats types.BatchRunStats
			if err := json.Unmarshal(v, &stats); err != nil {
				return fmt.Errorf("failed to unmarshal run stats: %w", err)
			}
			runs = append(runs, stats)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Last returns the most recent run, or nil when none exist.
func (s *RunStore) Last() (*types.BatchRunStats, error) {
	runs, err := s.List(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
