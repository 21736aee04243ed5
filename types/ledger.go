package types

import "time"

// LedgerLeaf is one stored vote inside a question's append-only ledger.
// Leaves are appended exactly once, in strict position order starting at 0,
// and are never modified or removed. Position alone is enough to regenerate
// the inclusion proof of a leaf.
type LedgerLeaf struct {
	ID            HexBytes     `json:"id"`
	QuestionID    HexBytes     `json:"questionId"`
	ElectionID    HexBytes     `json:"electionId"`
	Kind          QuestionType `json:"kind"`
	EncryptedVote HexBytes     `json:"encryptedVote"`
	Commitment    HexBytes     `json:"commitment"`
	ZKProof       HexBytes     `json:"zkProof,omitempty"`
	Nullifier     HexBytes     `json:"nullifier"`
	Timestamp     time.Time    `json:"timestamp"`
	Position      uint64       `json:"position"`
	// RootAfterAppend is the ledger root immediately after this leaf was
	// appended, recorded for audit replay.
	RootAfterAppend HexBytes `json:"rootAfterAppend"`
}

// NullifierRecord marks the consumption of a nullifier for one question. The
// pair (QuestionID, Nullifier) is unique for the lifetime of the election.
type NullifierRecord struct {
	QuestionID HexBytes  `json:"questionId"`
	Nullifier  HexBytes  `json:"nullifier"`
	Timestamp  time.Time `json:"timestamp"`
}

// LedgerSnapshot is the fast-read state of one question ledger, persisted so
// Stats does not require replaying the leaf stream.
type LedgerSnapshot struct {
	ElectionID  HexBytes  `json:"electionId"`
	QuestionID  HexBytes  `json:"questionId"`
	VoteCount   uint64    `json:"voteCount"`
	MerkleRoot  HexBytes  `json:"merkleRoot"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RootAttestation is the value handed to a witness sink: the state of one
// question ledger at a point in time. The core does not manage the sink's
// submission, confirmation or retries.
type RootAttestation struct {
	ElectionID HexBytes  `json:"electionId"`
	QuestionID HexBytes  `json:"questionId"`
	Root       HexBytes  `json:"root"`
	VoteCount  uint64    `json:"voteCount"`
	Timestamp  time.Time `json:"timestamp"`
}
