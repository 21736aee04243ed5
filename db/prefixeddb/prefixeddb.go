// Package prefixeddb wraps a db.Database so all keys are transparently
// namespaced under a fixed prefix.
package prefixeddb

import (
	"bytes"

	"github.com/veritasvote/veritas-node/db"
)

// PrefixedDatabase implements db.Database over a parent database, prepending
// a prefix to every key.
type PrefixedDatabase struct {
	parent db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase returns a view of parent where every key lives under
// prefix.
func NewPrefixedDatabase(parent db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{parent: parent, prefix: bytes.Clone(prefix)}
}

// NewPrefixedReader returns a read-only prefixed view of parent.
func NewPrefixedReader(parent db.Reader, prefix []byte) db.Reader {
	return &prefixedReader{parent: parent, prefix: bytes.Clone(prefix)}
}

func joinKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.parent.Get(joinKey(d.prefix, key))
}

func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	full := joinKey(d.prefix, prefix)
	return d.parent.Iterate(full, func(k, v []byte) bool {
		return callback(k[len(d.prefix):], v)
	})
}

func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.parent.WriteTx(), d.prefix)
}

// Close is a no-op: the parent database owns the underlying resources.
func (d *PrefixedDatabase) Close() error { return nil }

// Compact delegates to the parent database.
func (d *PrefixedDatabase) Compact() error { return d.parent.Compact() }

type prefixedReader struct {
	parent db.Reader
	prefix []byte
}

func (r *prefixedReader) Get(key []byte) ([]byte, error) {
	return r.parent.Get(joinKey(r.prefix, key))
}

func (r *prefixedReader) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	full := joinKey(r.prefix, prefix)
	return r.parent.Iterate(full, func(k, v []byte) bool {
		return callback(k[len(r.prefix):], v)
	})
}

// PrefixedWriteTx wraps a db.WriteTx, prepending a prefix to every key.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx wraps tx so every key lives under prefix.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{tx: tx, prefix: bytes.Clone(prefix)}
}

func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(joinKey(t.prefix, key))
}

func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	full := joinKey(t.prefix, prefix)
	return t.tx.Iterate(full, func(k, v []byte) bool {
		return callback(k[len(t.prefix):], v)
	})
}

func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(joinKey(t.prefix, key), value)
}

func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(joinKey(t.prefix, key))
}

func (t *PrefixedWriteTx) Commit() error { return t.tx.Commit() }

func (t *PrefixedWriteTx) Discard() { t.tx.Discard() }
