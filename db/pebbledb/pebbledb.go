// Package pebbledb implements db.Database on top of cockroachdb/pebble.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/veritasvote/veritas-node/db"
)

// PebbleDB implements db.Database with a pebble store.
type PebbleDB struct {
	pdb *pebble.DB
}

var _ db.Database = (*PebbleDB)(nil)

// New opens (creating if needed) a pebble database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pebbledb requires a path")
	}
	pdb, err := pebble.Open(opts.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("could not open pebble db: %w", err)
	}
	return &PebbleDB{pdb: pdb}, nil
}

func (d *PebbleDB) Close() error {
	return d.pdb.Close()
}

func (d *PebbleDB) Compact() error {
	// Compact the whole key space.
	return d.pdb.Compact(nil, []byte{0xff, 0xff, 0xff, 0xff}, true)
}

func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	value, closer, err := d.pdb.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, db.ErrKeyNotFound
		}
		return nil, err
	}
	out := bytes.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iterOpts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		iterOpts.LowerBound = prefix
		iterOpts.UpperBound = prefixUpperBound(prefix)
	}
	iter, err := d.pdb.NewIter(iterOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			// Iterator close failures are not actionable by the caller.
			_ = err
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (d *PebbleDB) WriteTx() db.WriteTx {
	return &writeTx{batch: d.pdb.NewIndexedBatch()}
}

// writeTx implements db.WriteTx with a pebble indexed batch. Note that pebble
// batches do not detect conflicts: this is a batch of writes applied
// atomically, reads go through to the current database state.
type writeTx struct {
	batch  *pebble.Batch
	closed bool
}

var _ db.WriteTx = (*writeTx)(nil)

func (tx *writeTx) Get(key []byte) ([]byte, error) {
	value, closer, err := tx.batch.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, db.ErrKeyNotFound
		}
		return nil, err
	}
	out := bytes.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (tx *writeTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	iterOpts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		iterOpts.LowerBound = prefix
		iterOpts.UpperBound = prefixUpperBound(prefix)
	}
	iter, err := tx.batch.NewIter(iterOpts)
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (tx *writeTx) Set(key, value []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	return tx.batch.Set(key, value, nil)
}

func (tx *writeTx) Delete(key []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	return tx.batch.Delete(key, nil)
}

func (tx *writeTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.closed = true
	defer func() { _ = tx.batch.Close() }()
	return tx.batch.Commit(pebble.Sync)
}

func (tx *writeTx) Discard() {
	if tx.closed {
		return
	}
	tx.closed = true
	_ = tx.batch.Close()
}
