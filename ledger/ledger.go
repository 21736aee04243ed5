/*
Package ledger implements the per-question append-only vote ledger.

Every ballot question owns one ledger: an ordered sequence of encrypted vote
leaves with an incremental Merkle tree over their hashes. Appends assign
strictly increasing positions and record the root after each append, so the
full root history is reconstructible from the leaf stream alone. Nothing is
ever modified or removed.
*/
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/veritasvote/veritas-node/crypto/hashing"
	"github.com/veritasvote/veritas-node/log"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
)

// ErrPositionOutOfRange is returned by proof requests past the last leaf.
var ErrPositionOutOfRange = errors.New("position out of range")

var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// leafPayload is the hashed portion of a leaf. The root after the append is
// excluded, it is derived from the hash, not part of it.
type leafPayload struct {
	QuestionID    types.HexBytes     `cbor:"1,keyasint"`
	ElectionID    types.HexBytes     `cbor:"2,keyasint"`
	Kind          types.QuestionType `cbor:"3,keyasint"`
	EncryptedVote types.HexBytes     `cbor:"4,keyasint"`
	Commitment    types.HexBytes     `cbor:"5,keyasint"`
	ZKProof       types.HexBytes     `cbor:"6,keyasint,omitempty"`
	Nullifier     types.HexBytes     `cbor:"7,keyasint"`
	Timestamp     int64              `cbor:"8,keyasint"`
	Position      uint64             `cbor:"9,keyasint"`
}

// LeafHash computes the Merkle leaf hash of a ledger leaf: the sha256 of
// the deterministic CBOR encoding of its content.
func LeafHash(leaf *types.LedgerLeaf) (types.HexBytes, error) {
	data, err := cborEncMode.Marshal(&leafPayload{
		QuestionID:    leaf.QuestionID,
		ElectionID:    leaf.ElectionID,
		Kind:          leaf.Kind,
		EncryptedVote: leaf.EncryptedVote,
		Commitment:    leaf.Commitment,
		ZKProof:       leaf.ZKProof,
		Nullifier:     leaf.Nullifier,
		Timestamp:     leaf.Timestamp.UnixNano(),
		Position:      leaf.Position,
	})
	if err != nil {
		return nil, fmt.Errorf("encode leaf payload: %w", err)
	}
	return hashing.Hash(data), nil
}

// Ledger is the vote ledger of a single ballot question. It serializes its
// own appends; cross-question parallelism comes from questions owning
// separate Ledger instances.
type Ledger struct {
	electionID types.HexBytes
	questionID types.HexBytes
	stor       *storage.Storage

	mu     sync.RWMutex
	tree   *tree
	count  uint64
	broken error
}

// Open loads the ledger of a question, replaying its persisted leaf stream
// to rebuild the Merkle tree. Replay verifies that recorded roots match the
// recomputed ones and fails loudly on divergence.
func Open(stor *storage.Storage, electionID, questionID types.HexBytes) (*Ledger, error) {
	l := &Ledger{
		electionID: electionID,
		questionID: questionID,
		stor:       stor,
		tree:       newTree(),
	}
	var replayErr error
	err := stor.ReplayLedgerLeaves(electionID, questionID, func(leaf *types.LedgerLeaf) bool {
		if leaf.Position != l.count {
			replayErr = fmt.Errorf("leaf stream gap: expected position %d, got %d", l.count, leaf.Position)
			return false
		}
		leafHash, err := LeafHash(leaf)
		if err != nil {
			replayErr = err
			return false
		}
		root := l.tree.insert(leafHash)
		if !root.Equal(leaf.RootAfterAppend) {
			replayErr = fmt.Errorf("replay root mismatch at position %d: recorded %s, recomputed %s",
				leaf.Position, leaf.RootAfterAppend.String(), root.String())
			return false
		}
		l.count++
		return true
	})
	if err != nil {
		return nil, err
	}
	if replayErr != nil {
		return nil, replayErr
	}
	if l.count > 0 {
		log.Debugw("ledger replayed", "electionId", electionID.String(),
			"questionId", questionID.String(), "leaves", l.count)
	}
	return l, nil
}

// Append adds an encrypted vote to the ledger. It assigns the next
// position, derives the leaf id from the leaf hash, updates the tree and
// persists the completed leaf. Returns the stored leaf with its position
// and the root after the append.
func (l *Ledger) Append(envelope *types.AnswerEnvelope, nullifier types.HexBytes) (*types.LedgerLeaf, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.broken != nil {
		return nil, l.broken
	}

	leaf := &types.LedgerLeaf{
		QuestionID:    l.questionID,
		ElectionID:    l.electionID,
		Kind:          envelope.Kind,
		EncryptedVote: envelope.EncryptedAnswer,
		Commitment:    envelope.Commitment,
		ZKProof:       envelope.ZKProof,
		Nullifier:     nullifier,
		Timestamp:     time.Now(),
		Position:      l.count,
	}
	leafHash, err := LeafHash(leaf)
	if err != nil {
		return nil, err
	}
	leaf.ID = leafHash
	leaf.RootAfterAppend = l.tree.insert(leafHash)
	if err := l.stor.AppendLedgerLeaf(leaf); err != nil {
		// the in-memory tree now covers a leaf the stream does not hold;
		// refuse further appends until the ledger is reopened from the
		// stream
		l.broken = fmt.Errorf("ledger diverged from its stream at position %d: %w", leaf.Position, err)
		return nil, l.broken
	}
	l.count++
	return leaf, nil
}

// ProveInclusion builds the inclusion proof of the leaf at position against
// the current root.
func (l *Ledger) ProveInclusion(position uint64) (*InclusionProof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if position >= l.count {
		return nil, fmt.Errorf("%w: %d of %d", ErrPositionOutOfRange, position, l.count)
	}
	return l.tree.prove(position)
}

// Root returns the current Merkle root, nil when the ledger is empty.
func (l *Ledger) Root() types.HexBytes {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.root()
}

// Count returns the number of appended leaves.
func (l *Ledger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Stats returns the snapshot view of the ledger.
func (l *Ledger) Stats() *types.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &types.LedgerSnapshot{
		ElectionID:  l.electionID,
		QuestionID:  l.questionID,
		VoteCount:   l.count,
		MerkleRoot:  l.tree.root(),
		LastUpdated: time.Now(),
	}
}
