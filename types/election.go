package types

import "time"

// ElectionPhase represents the lifecycle stage of an election. Credential
// registration is only allowed during ElectionPhaseRegistration, ballot
// submission only during ElectionPhaseVoting.
type ElectionPhase string

const (
	ElectionPhaseRegistration ElectionPhase = "registration"
	ElectionPhaseVoting       ElectionPhase = "voting"
	ElectionPhaseClosed       ElectionPhase = "closed"
)

// Election holds the metadata of a single election. The ceremony parameters
// (Threshold, TotalTrustees) are fixed at creation time and never change.
type Election struct {
	ID            HexBytes      `json:"id"`
	Name          string        `json:"name"`
	Phase         ElectionPhase `json:"phase"`
	Threshold     int           `json:"threshold"`
	TotalTrustees int           `json:"totalTrustees"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// QuestionType is the tagged variant kind of a ballot question. Every switch
// over it must handle all variants and fail on unknown values.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single-choice"
	QuestionTypeMultiChoice  QuestionType = "multi-choice"
	QuestionTypeYesNo        QuestionType = "yes-no"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeYesNo:
		return true
	}
	return false
}

// BallotQuestion describes a single race within an election. Each question
// owns exactly one ledger instance: the question, not the election, is the
// unit of Merkle-tree isolation.
type BallotQuestion struct {
	ID             HexBytes     `json:"id"`
	ElectionID     HexBytes     `json:"electionId"`
	JurisdictionID string       `json:"jurisdictionId"`
	Title          string       `json:"title"`
	Type           QuestionType `json:"type"`
	MaxSelections  int          `json:"maxSelections"`
}
