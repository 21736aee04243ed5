/*
Package storage provides the persistence layer of the election trust core.

# Storage organization

State lives in two places with different write patterns:

A key-value database with prefixed namespaces for records and indexes:

  - e/  : electionID → Election metadata (phase, ceremony parameters)
  - q/  : electionID + questionID → BallotQuestion
  - c/  : electionID → KeyCeremonyState
  - t/  : electionID + trusteeID → Trustee
  - ak/ : electionID → credential authority signer key pair
  - bs/ : electionID + R → blind-session secret k (deleted after signing)
  - id/ : electionID + identityHash → registered-identity marker
  - nf/ : electionID + questionID + nullifier → consumption marker
  - ls/ : electionID + questionID → LedgerSnapshot {voteCount, root, time}
  - rc/ : confirmationCode → SubmissionReceipt

Append-only line-delimited JSON streams for the high-throughput vote path
(see StreamStore): one leaf stream per (electionID, questionID), one
nullifier stream per electionID. Streams are the replay source after a
restart; the ls/ snapshot exists for fast reads without replaying.
*/
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veritasvote/veritas-node/db"
	"github.com/veritasvote/veritas-node/db/prefixeddb"
	"github.com/veritasvote/veritas-node/log"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrKeyAlreadyExists is returned by insert-once operations on repeat.
	ErrKeyAlreadyExists = errors.New("key already exists")
	// ErrUnavailable wraps backend failures. A caller seeing ErrUnavailable
	// may retry; it never means a logical rejection.
	ErrUnavailable = errors.New("storage unavailable")
)

// Prefixes
var (
	electionPrefix     = []byte("e/")
	questionPrefix     = []byte("q/")
	ceremonyPrefix     = []byte("c/")
	trusteePrefix      = []byte("t/")
	authorityKeyPrefix = []byte("ak/")
	blindSessionPrefix = []byte("bs/")
	identityPrefix     = []byte("id/")
	nullifierPrefix    = []byte("nf/")
	snapshotPrefix     = []byte("ls/")
	receiptPrefix      = []byte("rc/")
)

const snapshotCacheSize = 1024

// Storage manages the trust core state: a key-value database for records and
// indexes plus append-only record streams for ledger leaves and nullifiers.
type Storage struct {
	db      db.Database
	streams StreamStore
	cache   *lru.Cache[string, any]

	// globalLock serializes check-then-write sequences. The write
	// transactions of the backends buffer writes without conflict
	// detection, so atomic insert-once needs this lock.
	globalLock sync.Mutex
}

// New creates a new Storage instance over the given database and stream
// store.
func New(database db.Database, streams StreamStore) *Storage {
	cache, err := lru.New[string, any](snapshotCacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:      database,
		streams: streams,
		cache:   cache,
	}
}

// NewTest creates a Storage backed entirely by memory, for tests.
func NewTest(database db.Database) *Storage {
	return New(database, NewMemStreams())
}

// Streams exposes the underlying stream store.
func (s *Storage) Streams() StreamStore {
	return s.streams
}

// Close closes the storage, flushing the database and stream files.
func (s *Storage) Close() {
	if err := s.streams.Close(); err != nil {
		log.Errorw(err, "failed to close stream store")
	}
	if err := s.db.Close(); err != nil {
		log.Errorw(err, "failed to close database")
	}
}

// unavailable tags a backend error as retryable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// setArtifact stores an encoded artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return unavailable("set artifact", err)
	}
	if err := wTx.Commit(); err != nil {
		return unavailable("commit artifact", err)
	}
	return nil
}

// getArtifact retrieves an artifact from prefix+key and decodes it into out.
// Returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return unavailable("get artifact", err)
	}
	return DecodeArtifact(data, out)
}

// deleteArtifact removes an artifact, if present.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(key); err != nil {
		return unavailable("delete artifact", err)
	}
	if err := wTx.Commit(); err != nil {
		return unavailable("commit delete", err)
	}
	return nil
}

// listArtifactKeys retrieves all keys for a given prefix.
func (s *Storage) listArtifactKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		kcopy := make([]byte, len(k))
		copy(kcopy, k)
		keys = append(keys, kcopy)
		return true
	}); err != nil {
		return nil, unavailable("list artifacts", err)
	}
	return keys, nil
}

// insertOnce atomically inserts a marker under prefix+key. It returns
// ErrKeyAlreadyExists (with no mutation) if the key is already present.
func (s *Storage) insertOnce(prefix, key, value []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if _, err := wTx.Get(key); err == nil {
		return ErrKeyAlreadyExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return unavailable("check key", err)
	}
	if err := wTx.Set(key, value); err != nil {
		return unavailable("insert key", err)
	}
	if err := wTx.Commit(); err != nil {
		return unavailable("commit insert", err)
	}
	return nil
}

// lockForUpdate and unlockForUpdate bracket read-modify-write sequences
// outside this file that need the same serialization as insertOnce.
func (s *Storage) lockForUpdate()   { s.globalLock.Lock() }
func (s *Storage) unlockForUpdate() { s.globalLock.Unlock() }

// hasKey reports whether prefix+key exists.
func (s *Storage) hasKey(prefix, key []byte) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return false, unavailable("check key", err)
}

// joinKey builds a composite key. Every part is preceded by its length, so
// distinct tuples can never collide on concatenation and joinKey(a) is a
// proper prefix of joinKey(a, b).
func joinKey(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += 2 + len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out
}

// matchesKeyParts reports whether a composite key starts with the given
// leading parts.
func matchesKeyParts(key []byte, parts ...[]byte) bool {
	return bytes.HasPrefix(key, joinKey(parts...))
}
