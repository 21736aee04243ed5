// Package db defines the key-value database interface used by the storage
// layer, with implementations backed by pebble (production) and an in-memory
// map (tests).
package db

import "errors"

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when the transaction conflicts with
	// a concurrently committed one.
	ErrConflict = errors.New("conflict")
	// ErrTxClosed is returned when operating on a committed or discarded
	// transaction.
	ErrTxClosed = errors.New("transaction already committed or discarded")
)

// Options are the common database creation options.
type Options struct {
	Path string
}

// Database is a simple key-value store with atomic write transactions.
type Database interface {
	Reader

	// WriteTx creates a new write transaction. It must be committed or
	// discarded.
	WriteTx() WriteTx

	// Close closes the database, flushing pending writes.
	Close() error

	// Compact triggers a storage-space compaction, when the backend
	// supports it.
	Compact() error
}

// Reader is the read-only subset of Database.
type Reader interface {
	// Get retrieves the value for the given key. Returns ErrKeyNotFound if
	// the key does not exist.
	Get(key []byte) ([]byte, error)

	// Iterate calls callback on all key-value pairs whose key starts with
	// prefix, in lexicographic key order, until callback returns false.
	// The callback arguments are only valid during the call.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a set of reads and writes applied atomically on Commit.
type WriteTx interface {
	Reader

	// Set adds a key-value pair, visible to this transaction immediately
	// and to others after Commit.
	Set(key, value []byte) error

	// Delete removes a key.
	Delete(key []byte) error

	// Commit applies all pending writes atomically.
	Commit() error

	// Discard drops the transaction. Calling Discard after Commit is a
	// no-op, so it is safe to defer.
	Discard()
}
