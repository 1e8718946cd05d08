// Package cursor persists the reconciliation sweep checkpoint so restarts
// resume scanning where the previous pass stopped.
package cursor

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSweep = []byte("sweep")
	keyCursor   = []byte("cursor")
)

// Store persists the sweep cursor in a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the cursor database at the given path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cursor db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSweep)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cursor bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the persisted cursor, or "" when no sweep has run yet.
func (s *Store) Load() (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("cursor store not configured")
	}
	var cursor string
	err := s.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(bucketSweep).Get(keyCursor); value != nil {
			cursor = string(value)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	return cursor, nil
}

// Save persists the cursor for the next sweep pass. An empty cursor marks a
// completed scan and restarts the next pass from the beginning.
func (s *Store) Save(cursor string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cursor store not configured")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSweep)
		if cursor == "" {
			return bucket.Delete(keyCursor)
		}
		return bucket.Put(keyCursor, []byte(cursor))
	})
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
