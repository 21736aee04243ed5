package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/veritasvote/veritas-node/db"
	"github.com/veritasvote/veritas-node/types"
)

// SetCeremonyState persists the coordinator state of an election's key
// ceremony.
func (s *Storage) SetCeremonyState(state *types.KeyCeremonyState) error {
	if state == nil || len(state.ElectionID) == 0 {
		return fmt.Errorf("invalid ceremony state record")
	}
	return s.setArtifact(ceremonyPrefix, state.ElectionID, state)
}

// CeremonyState retrieves the ceremony state for an election.
func (s *Storage) CeremonyState(electionID types.HexBytes) (*types.KeyCeremonyState, error) {
	state := new(types.KeyCeremonyState)
	if err := s.getArtifact(ceremonyPrefix, electionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetTrustee persists a trustee record under its election.
func (s *Storage) SetTrustee(t *types.Trustee) error {
	if t == nil || len(t.ID) == 0 || len(t.ElectionID) == 0 {
		return fmt.Errorf("invalid trustee record")
	}
	return s.setArtifact(trusteePrefix, joinKey(t.ElectionID, t.ID), t)
}

// Trustee retrieves one trustee of an election.
func (s *Storage) Trustee(electionID, trusteeID types.HexBytes) (*types.Trustee, error) {
	t := new(types.Trustee)
	if err := s.getArtifact(trusteePrefix, joinKey(electionID, trusteeID), t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTrustees returns all trustees of an election, ordered by share index.
func (s *Storage) ListTrustees(electionID types.HexBytes) ([]*types.Trustee, error) {
	keys, err := s.listArtifactKeys(trusteePrefix)
	if err != nil {
		return nil, err
	}
	var trustees []*types.Trustee
	for _, k := range keys {
		if !matchesKeyParts(k, electionID) {
			continue
		}
		t := new(types.Trustee)
		if err := s.getArtifact(trusteePrefix, k, t); err != nil {
			return nil, err
		}
		trustees = append(trustees, t)
	}
	// insertion order of the iterator is key order, reorder by share index
	for i := 1; i < len(trustees); i++ {
		for j := i; j > 0 && trustees[j-1].ShareIndex > trustees[j].ShareIndex; j-- {
			trustees[j-1], trustees[j] = trustees[j], trustees[j-1]
		}
	}
	return trustees, nil
}

// NextShareIndex atomically allocates the next trustee share index for an
// election, starting at 1. Used by the ceremony coordinator so concurrent
// registrations never collide on an index.
func (s *Storage) NextShareIndex(electionID types.HexBytes) (int, error) {
	s.lockForUpdate()
	defer s.unlockForUpdate()
	key := joinKey([]byte("idx/"), electionID)
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	var next uint64 = 1
	if data, err := wTx.Get(key); err == nil {
		next = binary.BigEndian.Uint64(data) + 1
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return 0, unavailable("get share index", err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := wTx.Set(key, buf[:]); err != nil {
		return 0, unavailable("set share index", err)
	}
	if err := wTx.Commit(); err != nil {
		return 0, unavailable("commit share index", err)
	}
	return int(next), nil
}
