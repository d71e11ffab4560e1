package storage

import "errors"

// ErrNotFound is returned by Get and CAS when the requested key is absent.
var ErrNotFound = errors.New("storage: key not found")

// ErrCASConflict is returned by CAS when the stored bytes no longer match
// the caller's expected previous value.
var ErrCASConflict = errors.New("storage: compare-and-swap conflict")

// Store is a namespaced, ordered key-value engine. All mutations on an
// existing key go through CAS; Put is reserved for create-from-absent.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put creates key with value, failing with ErrCASConflict if key
	// already exists. Equivalent to CAS(key, nil, value).
	Put(key string, value []byte) error

	// CAS writes newValue at key only if the current value is exactly
	// expected (nil expected means "key must be absent"). Returns
	// ErrCASConflict on mismatch, ErrNotFound if expected is non-nil but
	// the key is absent.
	CAS(key string, expected, newValue []byte) error

	// Iter calls fn for every key in ascending order, stopping early if
	// fn returns false. Iteration tolerates concurrent writers.
	Iter(fn func(key string, value []byte) bool) error

	// Flush durably persists all prior writes.
	Flush() error

	// Close releases the underlying engine.
	Close() error
}
