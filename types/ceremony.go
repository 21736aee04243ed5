package types

import "time"

// CeremonyPhase is the state machine position of a key ceremony. Phases only
// ever move forward.
type CeremonyPhase string

const (
	CeremonyPhaseCreated      CeremonyPhase = "CREATED"
	CeremonyPhaseRegistration CeremonyPhase = "REGISTRATION"
	CeremonyPhaseCommitment   CeremonyPhase = "COMMITMENT"
	CeremonyPhaseFinalized    CeremonyPhase = "FINALIZED"
)

// TrusteeStatus tracks a trustee through the ceremony.
type TrusteeStatus string

const (
	TrusteeStatusRegistered TrusteeStatus = "registered"
	TrusteeStatusCommitted  TrusteeStatus = "committed"
)

// Trustee is one ceremony participant for a specific election. ShareIndex is
// a unique integer in [1, totalTrustees] and doubles as the evaluation point
// of every other trustee's secret polynomial for this participant.
type Trustee struct {
	ID                 HexBytes      `json:"id"`
	ElectionID         HexBytes      `json:"electionId"`
	Name               string        `json:"name"`
	PublicKey          HexBytes      `json:"publicKey"`
	ShareIndex         int           `json:"shareIndex"`
	CommitmentHash     HexBytes      `json:"commitmentHash,omitempty"`
	FeldmanCommitments []HexBytes    `json:"feldmanCommitments,omitempty"`
	Status             TrusteeStatus `json:"status"`
	RegisteredAt       time.Time     `json:"registeredAt"`
}

// KeyCeremonyState is the persisted coordinator state for one election's key
// ceremony. It is mutated only by ceremony operations and never regresses.
type KeyCeremonyState struct {
	ElectionID      HexBytes      `json:"electionId"`
	Phase           CeremonyPhase `json:"phase"`
	Threshold       int           `json:"threshold"`
	TotalTrustees   int           `json:"totalTrustees"`
	RegisteredCount int           `json:"registeredCount"`
	CommittedCount  int           `json:"committedCount"`
	// ElectionPublicKey is set exactly once, on the transition to FINALIZED.
	// The matching private key never exists in one place: it is the sum of
	// the trustee shares, reconstructible only by Threshold trustees
	// cooperating.
	ElectionPublicKey HexBytes `json:"electionPublicKey,omitempty"`
}
