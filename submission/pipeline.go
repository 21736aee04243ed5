/*
Package submission implements the vote submission pipeline.

A ballot arrives with a credential and one encrypted answer per question.
The pipeline verifies the credential once, then processes every answer
independently: derive the question nullifier, consume it, append the vote
to the question's ledger. Answers fail independently, and a voter whose
ballot partially failed resubmits only the failed answers; the consumed
nullifiers reject the duplicates while the retried answers go through.

Appends to one question's ledger are serialized through a keyed executor,
so each ledger sees a single writer while different questions proceed in
parallel.
*/
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritasvote/veritas-node/credential"
	"github.com/veritasvote/veritas-node/ledger"
	"github.com/veritasvote/veritas-node/log"
	"github.com/veritasvote/veritas-node/nullifier"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
	"github.com/veritasvote/veritas-node/workers"
)

var (
	// ErrVotingClosed is returned when the election is not in its voting
	// phase.
	ErrVotingClosed = errors.New("election is not accepting votes")
	// ErrUnknownQuestion is returned for answers to questions the election
	// does not have.
	ErrUnknownQuestion = errors.New("unknown ballot question")
	// ErrEmptyBallot is returned for ballots without answers.
	ErrEmptyBallot = errors.New("ballot has no answers")
)

// Pipeline is the vote submission pipeline of a node.
type Pipeline struct {
	stor      *storage.Storage
	authority *credential.Authority
	registry  *nullifier.Registry
	executor  *workers.KeyedExecutor

	ledgersMu sync.Mutex
	ledgers   map[string]*ledger.Ledger
}

// NewPipeline creates a submission pipeline. The executor must be started
// by the caller.
func NewPipeline(stor *storage.Storage, authority *credential.Authority,
	registry *nullifier.Registry, executor *workers.KeyedExecutor,
) *Pipeline {
	return &Pipeline{
		stor:      stor,
		authority: authority,
		registry:  registry,
		executor:  executor,
		ledgers:   make(map[string]*ledger.Ledger),
	}
}

// ledgerKey doubles as the executor routing key, so all appends to one
// question funnel through one worker.
func ledgerKey(electionID, questionID types.HexBytes) string {
	return fmt.Sprintf("%x/%x", electionID, questionID)
}

// questionLedger returns the open ledger for a question, opening and
// replaying it on first use.
func (p *Pipeline) questionLedger(electionID, questionID types.HexBytes) (*ledger.Ledger, error) {
	key := ledgerKey(electionID, questionID)
	p.ledgersMu.Lock()
	defer p.ledgersMu.Unlock()
	if l, ok := p.ledgers[key]; ok {
		return l, nil
	}
	l, err := ledger.Open(p.stor, electionID, questionID)
	if err != nil {
		return nil, err
	}
	p.ledgers[key] = l
	return l, nil
}

// Submit processes a full ballot and returns its receipt. The credential is
// verified once for the ballot; each answer then succeeds or fails on its
// own. The receipt is persisted under its confirmation code before being
// returned.
func (p *Pipeline) Submit(ctx context.Context, ballot *types.Ballot) (*types.SubmissionReceipt, error) {
	if ballot == nil || len(ballot.Answers) == 0 {
		return nil, ErrEmptyBallot
	}
	election, err := p.stor.Election(ballot.ElectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, credential.ErrElectionNotFound
		}
		return nil, err
	}
	if election.Phase != types.ElectionPhaseVoting {
		return nil, ErrVotingClosed
	}
	if err := p.authority.VerifyCredential(ballot.Credential); err != nil {
		return nil, err
	}

	receipt := &types.SubmissionReceipt{
		ConfirmationCode: uuid.New().String(),
		ElectionID:       ballot.ElectionID,
		AnswersTotal:     len(ballot.Answers),
		Timestamp:        time.Now(),
		Results:          make([]types.AnswerResult, len(ballot.Answers)),
	}
	for i := range ballot.Answers {
		receipt.Results[i] = p.submitAnswer(ctx, ballot, &ballot.Answers[i])
		if receipt.Results[i].Success {
			receipt.AnswersSubmitted++
		}
	}
	receipt.Success = receipt.AnswersSubmitted == receipt.AnswersTotal
	if err := p.stor.SetReceipt(receipt); err != nil {
		return nil, err
	}
	log.Infow("ballot processed", "electionId", ballot.ElectionID.String(),
		"confirmation", receipt.ConfirmationCode,
		"submitted", receipt.AnswersSubmitted, "total", receipt.AnswersTotal)
	return receipt, nil
}

// submitAnswer runs the per-answer path: validate the question, derive and
// consume the nullifier, append the vote. The nullifier consumption and the
// append run together inside the question's serialized executor slot, so a
// consumed nullifier always has its leaf in the ledger.
func (p *Pipeline) submitAnswer(ctx context.Context, ballot *types.Ballot, answer *types.AnswerEnvelope) types.AnswerResult {
	result := types.AnswerResult{QuestionID: answer.QuestionID}

	question, err := p.stor.BallotQuestion(ballot.ElectionID, answer.QuestionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrUnknownQuestion
		}
		result.Error = err.Error()
		return result
	}
	if answer.Kind != question.Type {
		result.Error = fmt.Sprintf("answer kind %q does not match question type %q", answer.Kind, question.Type)
		return result
	}
	questionNullifier, err := nullifier.Derive(ballot.Credential.Nullifier, answer.QuestionID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	err = p.executor.Submit(ctx, ledgerKey(ballot.ElectionID, answer.QuestionID), func() error {
		if err := p.registry.TryConsume(ballot.ElectionID, answer.QuestionID, questionNullifier); err != nil {
			return err
		}
		l, err := p.questionLedger(ballot.ElectionID, answer.QuestionID)
		if err != nil {
			return err
		}
		leaf, err := l.Append(answer, questionNullifier)
		if err != nil {
			return err
		}
		result.Position = leaf.Position
		result.MerkleRoot = leaf.RootAfterAppend
		return nil
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// ProveInclusion builds the inclusion proof for a ledger position of a
// question.
func (p *Pipeline) ProveInclusion(electionID, questionID types.HexBytes, position uint64) (*ledger.InclusionProof, error) {
	l, err := p.questionLedger(electionID, questionID)
	if err != nil {
		return nil, err
	}
	return l.ProveInclusion(position)
}

// LedgerStats returns the snapshot view of a question ledger.
func (p *Pipeline) LedgerStats(electionID, questionID types.HexBytes) (*types.LedgerSnapshot, error) {
	l, err := p.questionLedger(electionID, questionID)
	if err != nil {
		return nil, err
	}
	return l.Stats(), nil
}

// Receipt retrieves a persisted receipt by confirmation code.
func (p *Pipeline) Receipt(confirmationCode string) (*types.SubmissionReceipt, error) {
	return p.stor.Receipt(confirmationCode)
}
