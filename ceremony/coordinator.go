package ceremony

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veritasvote/veritas-node/crypto/ecc"
	"github.com/veritasvote/veritas-node/crypto/ecc/curves"
	"github.com/veritasvote/veritas-node/crypto/hashing"
	"github.com/veritasvote/veritas-node/log"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
)

var (
	// ErrCeremonyNotFound is returned when no ceremony exists for the
	// election.
	ErrCeremonyNotFound = errors.New("ceremony not found")
	// ErrInvalidPhase is returned when an operation arrives in a ceremony
	// phase that does not accept it.
	ErrInvalidPhase = errors.New("operation not allowed in current ceremony phase")
	// ErrCeremonyFull is returned when a registration arrives after all
	// trustee slots are taken.
	ErrCeremonyFull = errors.New("all trustee slots are taken")
	// ErrTrusteeNotFound is returned when the named trustee is not part of
	// the ceremony.
	ErrTrusteeNotFound = errors.New("trustee not found")
	// ErrAlreadyCommitted is returned when a trustee submits commitments a
	// second time. It is a phase error: errors.Is(err, ErrInvalidPhase)
	// holds for it.
	ErrAlreadyCommitted = fmt.Errorf("%w: trustee already committed", ErrInvalidPhase)
)

// Coordinator drives key ceremonies through their phases. All mutations are
// serialized behind one mutex: ceremonies are short and low-volume, trustee
// counts are single digits, so contention is not a concern and the
// exactly-once finalization argument stays trivial.
type Coordinator struct {
	stor  *storage.Storage
	curve ecc.Point
	mu    sync.Mutex
}

// NewCoordinator creates a ceremony coordinator over the given storage.
func NewCoordinator(stor *storage.Storage) *Coordinator {
	return &Coordinator{stor: stor, curve: curves.New(curves.CurveTypeBabyJubJub)}
}

// Create records a ceremony for an election with its fixed parameters, in
// the created phase. Threshold must satisfy 1 < threshold <= totalTrustees.
// Trustees can register once OpenRegistration is called.
func (co *Coordinator) Create(electionID types.HexBytes, threshold, totalTrustees int) (*types.KeyCeremonyState, error) {
	if threshold < 2 || threshold > totalTrustees {
		return nil, fmt.Errorf("invalid ceremony parameters: threshold %d of %d trustees", threshold, totalTrustees)
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	if _, err := co.stor.CeremonyState(electionID); err == nil {
		return nil, fmt.Errorf("%w: ceremony already exists", ErrInvalidPhase)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	state := &types.KeyCeremonyState{
		ElectionID:    electionID,
		Phase:         types.CeremonyPhaseCreated,
		Threshold:     threshold,
		TotalTrustees: totalTrustees,
	}
	if err := co.stor.SetCeremonyState(state); err != nil {
		return nil, err
	}
	log.Infow("key ceremony created", "electionId", electionID.String(),
		"threshold", threshold, "trustees", totalTrustees)
	return state, nil
}

// OpenRegistration moves a created ceremony into the registration phase.
func (co *Coordinator) OpenRegistration(electionID types.HexBytes) (*types.KeyCeremonyState, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	state, err := co.State(electionID)
	if err != nil {
		return nil, err
	}
	if state.Phase != types.CeremonyPhaseCreated {
		return nil, ErrInvalidPhase
	}
	state.Phase = types.CeremonyPhaseRegistration
	if err := co.stor.SetCeremonyState(state); err != nil {
		return nil, err
	}
	log.Infow("key ceremony open for trustee registration", "electionId", electionID.String())
	return state, nil
}

// State returns the current ceremony state for an election.
func (co *Coordinator) State(electionID types.HexBytes) (*types.KeyCeremonyState, error) {
	state, err := co.stor.CeremonyState(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCeremonyNotFound
		}
		return nil, err
	}
	return state, nil
}

// RegisterTrustee adds a trustee during the registration phase and assigns
// it the next free share index. When the last slot fills, the ceremony
// advances to the commitment phase.
func (co *Coordinator) RegisterTrustee(electionID types.HexBytes, name string, publicKey types.HexBytes) (*types.Trustee, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	state, err := co.State(electionID)
	if err != nil {
		return nil, err
	}
	if state.Phase != types.CeremonyPhaseRegistration {
		if state.RegisteredCount >= state.TotalTrustees {
			return nil, ErrCeremonyFull
		}
		return nil, ErrInvalidPhase
	}
	shareIndex, err := co.stor.NextShareIndex(electionID)
	if err != nil {
		return nil, err
	}
	if shareIndex > state.TotalTrustees {
		return nil, ErrCeremonyFull
	}
	trustee := &types.Trustee{
		ID:           hashing.Hash(electionID, []byte(name), publicKey),
		ElectionID:   electionID,
		Name:         name,
		PublicKey:    publicKey,
		ShareIndex:   shareIndex,
		Status:       types.TrusteeStatusRegistered,
		RegisteredAt: time.Now(),
	}
	if err := co.stor.SetTrustee(trustee); err != nil {
		return nil, err
	}
	state.RegisteredCount++
	if state.RegisteredCount == state.TotalTrustees {
		state.Phase = types.CeremonyPhaseCommitment
		log.Infow("all trustees registered, ceremony accepts commitments",
			"electionId", electionID.String())
	}
	if err := co.stor.SetCeremonyState(state); err != nil {
		return nil, err
	}
	return trustee, nil
}

// SubmitCommitment records a trustee's Feldman commitments during the
// commitment phase. The commitments must be exactly threshold points on the
// ceremony curve. When the last trustee commits, the ceremony finalizes:
// the election public key is derived exactly once and the phase moves to
// FINALIZED.
func (co *Coordinator) SubmitCommitment(electionID, trusteeID types.HexBytes, commitments []types.HexBytes) (*types.KeyCeremonyState, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	state, err := co.State(electionID)
	if err != nil {
		return nil, err
	}
	if state.Phase != types.CeremonyPhaseCommitment {
		return nil, ErrInvalidPhase
	}
	trustee, err := co.stor.Trustee(electionID, trusteeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTrusteeNotFound
		}
		return nil, err
	}
	if trustee.Status == types.TrusteeStatusCommitted {
		return nil, ErrAlreadyCommitted
	}
	if len(commitments) != state.Threshold {
		return nil, fmt.Errorf("expected %d commitments, got %d", state.Threshold, len(commitments))
	}
	// reject anything that does not decode to curve points
	if _, err := UnmarshalCommitments(co.curve, commitments); err != nil {
		return nil, fmt.Errorf("invalid commitment: %w", err)
	}
	digest, err := hashing.CommitmentDigest(commitments)
	if err != nil {
		return nil, err
	}
	trustee.FeldmanCommitments = commitments
	trustee.CommitmentHash = digest
	trustee.Status = types.TrusteeStatusCommitted
	if err := co.stor.SetTrustee(trustee); err != nil {
		return nil, err
	}
	state.CommittedCount++
	if state.CommittedCount == state.TotalTrustees {
		if err := co.finalize(state); err != nil {
			return nil, err
		}
	}
	if err := co.stor.SetCeremonyState(state); err != nil {
		return nil, err
	}
	return state, nil
}

// finalize derives the election public key from all trustee commitments and
// moves the ceremony to FINALIZED. Called exactly once, with the state
// mutex held, by the commitment that completes the set.
func (co *Coordinator) finalize(state *types.KeyCeremonyState) error {
	trustees, err := co.stor.ListTrustees(state.ElectionID)
	if err != nil {
		return err
	}
	allCommitments := make(map[int][]ecc.Point, len(trustees))
	for _, trustee := range trustees {
		points, err := UnmarshalCommitments(co.curve, trustee.FeldmanCommitments)
		if err != nil {
			return fmt.Errorf("trustee %d commitments: %w", trustee.ShareIndex, err)
		}
		allCommitments[trustee.ShareIndex] = points
	}
	key, err := AggregateElectionKey(co.curve, allCommitments)
	if err != nil {
		return err
	}
	state.ElectionPublicKey = key.Marshal()
	state.Phase = types.CeremonyPhaseFinalized
	log.Infow("key ceremony finalized", "electionId", state.ElectionID.String(),
		"publicKey", state.ElectionPublicKey.String())
	return nil
}

// ElectionPublicKey returns the finalized election key, or ErrInvalidPhase
// if the ceremony has not finalized yet.
func (co *Coordinator) ElectionPublicKey(electionID types.HexBytes) (ecc.Point, error) {
	state, err := co.State(electionID)
	if err != nil {
		return nil, err
	}
	if state.Phase != types.CeremonyPhaseFinalized {
		return nil, ErrInvalidPhase
	}
	key := co.curve.New()
	if err := key.Unmarshal(state.ElectionPublicKey); err != nil {
		return nil, err
	}
	return key, nil
}
