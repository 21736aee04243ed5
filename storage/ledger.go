package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/veritasvote/veritas-node/types"
)

// AppendLedgerLeaf writes a leaf to the question's append-only stream and
// refreshes the snapshot record. Stream first, then snapshot: after a crash
// between the two, replay of the stream reconstructs a snapshot that is
// never behind the stream.
func (s *Storage) AppendLedgerLeaf(leaf *types.LedgerLeaf) error {
	if leaf == nil || len(leaf.QuestionID) == 0 {
		return fmt.Errorf("invalid ledger leaf record")
	}
	stream := LedgerStreamName(leaf.ElectionID, leaf.QuestionID)
	if err := s.streams.Append(stream, leaf); err != nil {
		return unavailable("append ledger leaf", err)
	}
	snapshot := &types.LedgerSnapshot{
		ElectionID:  leaf.ElectionID,
		QuestionID:  leaf.QuestionID,
		VoteCount:   leaf.Position + 1,
		MerkleRoot:  leaf.RootAfterAppend,
		LastUpdated: leaf.Timestamp,
	}
	return s.SetLedgerSnapshot(snapshot)
}

// ReplayLedgerLeaves streams all persisted leaves of a question, in append
// order, to fn. Replay stops early if fn returns false.
func (s *Storage) ReplayLedgerLeaves(electionID, questionID types.HexBytes, fn func(*types.LedgerLeaf) bool) error {
	stream := LedgerStreamName(electionID, questionID)
	return s.streams.Replay(stream, func(data []byte) bool {
		leaf := new(types.LedgerLeaf)
		if err := json.Unmarshal(data, leaf); err != nil {
			return false
		}
		return fn(leaf)
	})
}

// SetLedgerSnapshot persists the fast-read state of a question ledger.
func (s *Storage) SetLedgerSnapshot(snapshot *types.LedgerSnapshot) error {
	key := joinKey(snapshot.ElectionID, snapshot.QuestionID)
	if err := s.setArtifact(snapshotPrefix, key, snapshot); err != nil {
		return err
	}
	s.cache.Add(string(joinKey(snapshotPrefix, key)), snapshot)
	return nil
}

// LedgerSnapshot retrieves the snapshot of a question ledger. A question
// with no appended votes yet has no snapshot; callers get ErrNotFound.
func (s *Storage) LedgerSnapshot(electionID, questionID types.HexBytes) (*types.LedgerSnapshot, error) {
	key := joinKey(electionID, questionID)
	if cached, ok := s.cache.Get(string(joinKey(snapshotPrefix, key))); ok {
		if snapshot, ok := cached.(*types.LedgerSnapshot); ok {
			return snapshot, nil
		}
	}
	snapshot := new(types.LedgerSnapshot)
	if err := s.getArtifact(snapshotPrefix, key, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// MarkNullifierConsumed atomically records the consumption of a nullifier
// for one question. Exactly one of any number of concurrent calls with the
// same (questionID, nullifier) succeeds; losers get ErrKeyAlreadyExists and
// no record is written for them. Winners also get the consumption appended
// to the election's nullifier stream for audit replay.
func (s *Storage) MarkNullifierConsumed(electionID types.HexBytes, record *types.NullifierRecord) error {
	if record == nil || len(record.Nullifier) == 0 {
		return fmt.Errorf("invalid nullifier record")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal nullifier record: %w", err)
	}
	key := joinKey(electionID, record.QuestionID, record.Nullifier)
	if err := s.insertOnce(nullifierPrefix, key, data); err != nil {
		return err
	}
	if err := s.streams.Append(NullifierStreamName(electionID), record); err != nil {
		return unavailable("append nullifier record", err)
	}
	return nil
}

// NullifierConsumed reports whether a nullifier was already consumed for a
// question.
func (s *Storage) NullifierConsumed(electionID, questionID, nullifier types.HexBytes) (bool, error) {
	return s.hasKey(nullifierPrefix, joinKey(electionID, questionID, nullifier))
}

// ReplayNullifiers streams all consumed nullifiers of an election to fn.
func (s *Storage) ReplayNullifiers(electionID types.HexBytes, fn func(*types.NullifierRecord) bool) error {
	return s.streams.Replay(NullifierStreamName(electionID), func(data []byte) bool {
		record := new(types.NullifierRecord)
		if err := json.Unmarshal(data, record); err != nil {
			return false
		}
		return fn(record)
	})
}

// SetReceipt stores a submission receipt under its confirmation code.
func (s *Storage) SetReceipt(receipt *types.SubmissionReceipt) error {
	if receipt == nil || receipt.ConfirmationCode == "" {
		return fmt.Errorf("invalid submission receipt record")
	}
	return s.setArtifact(receiptPrefix, []byte(receipt.ConfirmationCode), receipt)
}

// Receipt retrieves a submission receipt by confirmation code.
func (s *Storage) Receipt(confirmationCode string) (*types.SubmissionReceipt, error) {
	receipt := new(types.SubmissionReceipt)
	if err := s.getArtifact(receiptPrefix, []byte(confirmationCode), receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// PendingAttestation builds a root attestation from the current snapshot of
// a question ledger, for handoff to a witness sink.
func (s *Storage) PendingAttestation(electionID, questionID types.HexBytes) (*types.RootAttestation, error) {
	snapshot, err := s.LedgerSnapshot(electionID, questionID)
	if err != nil {
		return nil, err
	}
	return &types.RootAttestation{
		ElectionID: electionID,
		QuestionID: questionID,
		Root:       snapshot.MerkleRoot,
		VoteCount:  snapshot.VoteCount,
		Timestamp:  time.Now(),
	}, nil
}
