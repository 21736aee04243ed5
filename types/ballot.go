package types

import "time"

// AnswerEnvelope is one encrypted answer within a ballot submission. The
// payload is opaque to the core: encryption and proof generation happen in
// external collaborators, the core only commits them to the ledger.
type AnswerEnvelope struct {
	QuestionID      HexBytes     `json:"questionId"`
	Kind            QuestionType `json:"kind"`
	EncryptedAnswer HexBytes     `json:"encryptedAnswer"`
	Commitment      HexBytes     `json:"commitment"`
	ZKProof         HexBytes     `json:"zkProof,omitempty"`
}

// Ballot is a full multi-question submission authenticated by a credential.
type Ballot struct {
	ElectionID HexBytes         `json:"electionId"`
	Credential *Credential      `json:"credential"`
	Answers    []AnswerEnvelope `json:"answers"`
}

// AnswerResult is the per-question outcome of a submission. Success carries
// the assigned ledger position and the root after the append; failures carry
// an error string so the voter can identify which answers need resubmission.
type AnswerResult struct {
	QuestionID HexBytes `json:"questionId"`
	Success    bool     `json:"success"`
	Position   uint64   `json:"position,omitempty"`
	MerkleRoot HexBytes `json:"merkleRoot,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// SubmissionReceipt aggregates the outcome of one ballot submission. The
// confirmation code is stable and unique per submission for voter-side
// lookup.
type SubmissionReceipt struct {
	ConfirmationCode string         `json:"confirmationCode"`
	ElectionID       HexBytes       `json:"electionId"`
	Success          bool           `json:"success"`
	AnswersSubmitted int            `json:"answersSubmitted"`
	AnswersTotal     int            `json:"answersTotal"`
	Results          []AnswerResult `json:"results"`
	Timestamp        time.Time      `json:"timestamp"`
}
