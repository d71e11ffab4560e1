package storage

import (
	"bytes"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketBroker = []byte("broker")

// BoltStore implements Store using a single bbolt bucket holding both
// `_u_` and `_v_` keys.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database at
// <dataDir>/broker.db and ensures the broker bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "broker.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBroker)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get returns the value stored at key, or ErrNotFound.
func (s *BoltStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBroker)
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = append(value, v...)
		return nil
	})
	return value, err
}

// Put creates key with value, failing if key already exists.
func (s *BoltStore) Put(key string, value []byte) error {
	return s.CAS(key, nil, value)
}

// CAS writes newValue at key only if the current stored bytes equal
// expected exactly (nil expected means "key must be absent").
func (s *BoltStore) CAS(key string, expected, newValue []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBroker)
		current := b.Get([]byte(key))

		if expected == nil {
			if current != nil {
				return ErrCASConflict
			}
		} else {
			if current == nil {
				return ErrNotFound
			}
			if !bytes.Equal(current, expected) {
				return ErrCASConflict
			}
		}

		return b.Put([]byte(key), newValue)
	})
}

// Iter walks every key in ascending order, stopping early if fn returns
// false. A record whose bytes cannot be handled by fn is still passed
// through unchanged; validation is the caller's concern.
func (s *BoltStore) Iter(fn func(key string, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBroker)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(string(k), v) {
				break
			}
		}
		return nil
	})
}

// Flush durably persists all prior writes. bbolt already fsyncs on every
// committed Update transaction, so this is a best-effort confirmation
// hook for callers that want an explicit durability checkpoint.
func (s *BoltStore) Flush() error {
	return s.db.Sync()
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
