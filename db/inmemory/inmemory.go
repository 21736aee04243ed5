// Package inmemory implements an ephemeral db.Database kept behind the same
// interface as the persistent backends. It is meant for tests only.
package inmemory

import (
	"bytes"
	"slices"
	"sync"

	"github.com/veritasvote/veritas-node/db"
)

// InMemoryDB implements an ephemeral in-memory db.Database.
type InMemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{data: make(map[string][]byte)}, nil
}

func (d *InMemoryDB) Close() error { return nil }

func (d *InMemoryDB) Compact() error { return nil }

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	value, ok := d.data[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	entries := make(map[string][]byte, len(d.data))
	for k, v := range d.data {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		entries[k] = bytes.Clone(v)
	}
	d.mu.RUnlock()
	return iterateEntries(entries, callback)
}

func (d *InMemoryDB) WriteTx() db.WriteTx {
	return &writeTx{
		db:     d,
		writes: make(map[string]*[]byte),
	}
}

// writeTx buffers writes until Commit. A nil pending value marks a delete.
type writeTx struct {
	db     *InMemoryDB
	writes map[string]*[]byte
	closed bool
}

var _ db.WriteTx = (*writeTx)(nil)

func (tx *writeTx) Get(key []byte) ([]byte, error) {
	if pending, ok := tx.writes[string(key)]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	return tx.db.Get(key)
}

func (tx *writeTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	tx.db.mu.RLock()
	entries := make(map[string][]byte, len(tx.db.data))
	for k, v := range tx.db.data {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		entries[k] = bytes.Clone(v)
	}
	tx.db.mu.RUnlock()

	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	return iterateEntries(entries, callback)
}

func (tx *writeTx) Set(key, value []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	valCopy := bytes.Clone(value)
	tx.writes[string(key)] = &valCopy
	return nil
}

func (tx *writeTx) Delete(key []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.writes[string(key)] = nil
	return nil
}

func (tx *writeTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.closed = true

	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for key, value := range tx.writes {
		if value == nil {
			delete(tx.db.data, key)
			continue
		}
		tx.db.data[key] = bytes.Clone(*value)
	}
	return nil
}

func (tx *writeTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.closed = true
}

func iterateEntries(entries map[string][]byte, callback func(key, value []byte) bool) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if !callback([]byte(key), entries[key]) {
			break
		}
	}
	return nil
}
