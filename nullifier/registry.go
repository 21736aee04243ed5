/*
Package nullifier tracks consumed vote nullifiers.

A nullifier is the double-vote guard of the protocol: it is derived from the
voter's secret credential nullifier and the question id, so it is stable for
a (voter, question) pair, unlinkable to the voter's identity, and different
across questions. Consuming one is the commit point of a vote; consumption
is exactly-once for the lifetime of the election.
*/
package nullifier

import (
	"errors"
	"time"

	"github.com/veritasvote/veritas-node/crypto/hashing"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
)

// ErrAlreadyConsumed is returned when a nullifier was already spent for the
// question.
var ErrAlreadyConsumed = errors.New("nullifier already consumed")

// Registry is the consumed-nullifier set of all elections on the node. The
// underlying storage insert is atomic, so the registry itself carries no
// locks; it adds derivation and error mapping on top.
type Registry struct {
	stor *storage.Storage
}

// NewRegistry creates a nullifier registry over the given storage.
func NewRegistry(stor *storage.Storage) *Registry {
	return &Registry{stor: stor}
}

// Derive computes the public nullifier a credential spends on a question.
func Derive(credentialNullifier, questionID types.HexBytes) (types.HexBytes, error) {
	return hashing.DeriveQuestionNullifier(credentialNullifier, questionID)
}

// TryConsume atomically marks a nullifier as spent for a question. Exactly
// one of any number of concurrent calls for the same (question, nullifier)
// wins; the rest get ErrAlreadyConsumed. There is no corresponding release
// operation.
func (r *Registry) TryConsume(electionID, questionID, nullifier types.HexBytes) error {
	err := r.stor.MarkNullifierConsumed(electionID, &types.NullifierRecord{
		QuestionID: questionID,
		Nullifier:  nullifier,
		Timestamp:  time.Now(),
	})
	if errors.Is(err, storage.ErrKeyAlreadyExists) {
		return ErrAlreadyConsumed
	}
	return err
}

// Consumed reports whether a nullifier was already spent for a question.
func (r *Registry) Consumed(electionID, questionID, nullifier types.HexBytes) (bool, error) {
	return r.stor.NullifierConsumed(electionID, questionID, nullifier)
}
