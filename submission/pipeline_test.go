package submission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/veritasvote/veritas-node/credential"
	"github.com/veritasvote/veritas-node/db/metadb"
	"github.com/veritasvote/veritas-node/ledger"
	"github.com/veritasvote/veritas-node/nullifier"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
	"github.com/veritasvote/veritas-node/util"
	"github.com/veritasvote/veritas-node/workers"
)

type testStack struct {
	stor      *storage.Storage
	authority *credential.Authority
	pipeline  *Pipeline
	election  *types.Election
	questions []*types.BallotQuestion
}

// newTestStack builds a node with one election and three yes/no questions,
// in the registration phase.
func newTestStack(t *testing.T) *testStack {
	t.Helper()
	stor := storage.NewTest(metadb.NewTest(t))
	t.Cleanup(stor.Close)

	election := &types.Election{
		ID:            types.HexBytes(util.RandomBytes(8)),
		Name:          "test",
		Phase:         types.ElectionPhaseRegistration,
		Threshold:     2,
		TotalTrustees: 3,
		CreatedAt:     time.Now(),
	}
	if err := stor.SetElection(election); err != nil {
		t.Fatal(err)
	}
	var questions []*types.BallotQuestion
	for i := range 3 {
		q := &types.BallotQuestion{
			ID:            types.HexBytes{byte(i + 1)},
			ElectionID:    election.ID,
			Title:         fmt.Sprintf("question %d", i),
			Type:          types.QuestionTypeYesNo,
			MaxSelections: 1,
		}
		if err := stor.SetBallotQuestion(q); err != nil {
			t.Fatal(err)
		}
		questions = append(questions, q)
	}

	authority := credential.NewAuthority(stor)
	executor := workers.NewKeyedExecutor(4)
	executor.Start(context.Background())
	t.Cleanup(executor.Stop)

	return &testStack{
		stor:      stor,
		authority: authority,
		pipeline:  NewPipeline(stor, authority, nullifier.NewRegistry(stor), executor),
		election:  election,
		questions: questions,
	}
}

func (s *testStack) issueCredential(t *testing.T, identity string) *types.Credential {
	t.Helper()
	session, err := s.authority.RegisterVoter(s.election.ID, identity)
	if err != nil {
		t.Fatal(err)
	}
	request, err := credential.NewRequest(session)
	if err != nil {
		t.Fatal(err)
	}
	blindSig, err := s.authority.SignBlinded(s.election.ID, request.Blinded)
	if err != nil {
		t.Fatal(err)
	}
	cred, err := request.Unblind(blindSig)
	if err != nil {
		t.Fatal(err)
	}
	return cred
}

func (s *testStack) openVoting(t *testing.T) {
	t.Helper()
	if err := s.stor.SetElectionPhase(s.election.ID, types.ElectionPhaseVoting); err != nil {
		t.Fatal(err)
	}
}

func (s *testStack) ballot(cred *types.Credential, questionIDs ...types.HexBytes) *types.Ballot {
	b := &types.Ballot{ElectionID: s.election.ID, Credential: cred}
	for _, qid := range questionIDs {
		b.Answers = append(b.Answers, types.AnswerEnvelope{
			QuestionID:      qid,
			Kind:            types.QuestionTypeYesNo,
			EncryptedAnswer: util.RandomBytes(64),
			Commitment:      util.RandomBytes(32),
		})
	}
	return b
}

func TestFullBallotSubmission(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	cred := s.issueCredential(t, "alice@example.com")
	s.openVoting(t)

	receipt, err := s.pipeline.Submit(context.Background(),
		s.ballot(cred, s.questions[0].ID, s.questions[1].ID, s.questions[2].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Success, qt.IsTrue)
	c.Assert(receipt.AnswersSubmitted, qt.Equals, 3)
	c.Assert(receipt.ConfirmationCode, qt.Not(qt.Equals), "")

	// every successful answer is provable against its question ledger
	for _, result := range receipt.Results {
		c.Assert(result.Success, qt.IsTrue)
		proof, err := s.pipeline.ProveInclusion(s.election.ID, result.QuestionID, result.Position)
		c.Assert(err, qt.IsNil)
		c.Assert(ledger.VerifyInclusion(proof), qt.IsTrue)
	}

	// the receipt is retrievable by its confirmation code
	stored, err := s.pipeline.Receipt(receipt.ConfirmationCode)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.AnswersSubmitted, qt.Equals, 3)
}

// A voter whose ballot partially succeeded resubmits all three answers: the
// two already-recorded ones bounce off their nullifiers, the remaining one
// goes through.
func TestPartialResubmission(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	cred := s.issueCredential(t, "alice@example.com")
	s.openVoting(t)

	first, err := s.pipeline.Submit(context.Background(),
		s.ballot(cred, s.questions[0].ID, s.questions[1].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(first.Success, qt.IsTrue)

	second, err := s.pipeline.Submit(context.Background(),
		s.ballot(cred, s.questions[0].ID, s.questions[1].ID, s.questions[2].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(second.Success, qt.IsFalse)
	c.Assert(second.AnswersSubmitted, qt.Equals, 1)
	c.Assert(second.AnswersTotal, qt.Equals, 3)
	for i, result := range second.Results {
		if i < 2 {
			c.Assert(result.Success, qt.IsFalse)
			c.Assert(strings.Contains(result.Error, "consumed"), qt.IsTrue)
		} else {
			c.Assert(result.Success, qt.IsTrue)
		}
	}
}

// Two concurrent submissions with the same credential for the same question
// yield exactly one recorded vote.
func TestConcurrentDoubleVoteSingleWinner(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	cred := s.issueCredential(t, "alice@example.com")
	s.openVoting(t)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners int
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := s.pipeline.Submit(context.Background(), s.ballot(cred, s.questions[0].ID))
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if receipt.Success {
				winners++
			}
		}()
	}
	wg.Wait()
	c.Assert(winners, qt.Equals, 1)

	stats, err := s.pipeline.LedgerStats(s.election.ID, s.questions[0].ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stats.VoteCount, qt.Equals, uint64(1))
}

func TestSubmissionGuards(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	cred := s.issueCredential(t, "alice@example.com")

	// voting not open yet
	_, err := s.pipeline.Submit(context.Background(), s.ballot(cred, s.questions[0].ID))
	c.Assert(err, qt.ErrorIs, ErrVotingClosed)

	s.openVoting(t)

	// empty ballot
	_, err = s.pipeline.Submit(context.Background(), s.ballot(cred))
	c.Assert(err, qt.ErrorIs, ErrEmptyBallot)

	// unknown election
	badElection := s.ballot(cred, s.questions[0].ID)
	badElection.ElectionID = types.HexBytes{0xff}
	_, err = s.pipeline.Submit(context.Background(), badElection)
	c.Assert(err, qt.ErrorIs, credential.ErrElectionNotFound)

	// forged credential
	forged := *cred
	forged.Signature = util.RandomBytes(96)
	_, err = s.pipeline.Submit(context.Background(), s.ballot(&forged, s.questions[0].ID))
	c.Assert(err, qt.ErrorIs, credential.ErrInvalidCredential)

	// unknown question fails that answer only
	receipt, err := s.pipeline.Submit(context.Background(), s.ballot(cred, types.HexBytes{0x7f}, s.questions[0].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Success, qt.IsFalse)
	c.Assert(receipt.AnswersSubmitted, qt.Equals, 1)
	c.Assert(strings.Contains(receipt.Results[0].Error, "unknown"), qt.IsTrue)
}

func TestAnswerKindMismatch(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	cred := s.issueCredential(t, "alice@example.com")
	s.openVoting(t)

	ballot := s.ballot(cred, s.questions[0].ID)
	ballot.Answers[0].Kind = types.QuestionTypeMultiChoice
	receipt, err := s.pipeline.Submit(context.Background(), ballot)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Success, qt.IsFalse)
	c.Assert(receipt.Results[0].Error, qt.Contains, "does not match")
}

// Two different voters vote the same question; both land, the tree grows.
func TestDistinctVotersShareALedger(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	alice := s.issueCredential(t, "alice@example.com")
	bob := s.issueCredential(t, "bob@example.com")
	s.openVoting(t)

	r1, err := s.pipeline.Submit(context.Background(), s.ballot(alice, s.questions[0].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(r1.Success, qt.IsTrue)
	r2, err := s.pipeline.Submit(context.Background(), s.ballot(bob, s.questions[0].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(r2.Success, qt.IsTrue)
	c.Assert(r2.Results[0].Position, qt.Equals, uint64(1))

	stats, err := s.pipeline.LedgerStats(s.election.ID, s.questions[0].ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stats.VoteCount, qt.Equals, uint64(2))
}

// After a restart the pipeline replays the streams: consumed nullifiers
// still reject duplicates and the ledger continues from its position.
func TestSurvivesRestart(t *testing.T) {
	c := qt.New(t)
	s := newTestStack(t)
	alice := s.issueCredential(t, "alice@example.com")
	bob := s.issueCredential(t, "bob@example.com")
	s.openVoting(t)

	_, err := s.pipeline.Submit(context.Background(), s.ballot(alice, s.questions[0].ID))
	c.Assert(err, qt.IsNil)

	// a fresh pipeline over the same storage simulates the restart
	executor := workers.NewKeyedExecutor(4)
	executor.Start(context.Background())
	t.Cleanup(executor.Stop)
	reopened := NewPipeline(s.stor, s.authority, nullifier.NewRegistry(s.stor), executor)

	dup, err := reopened.Submit(context.Background(), s.ballot(alice, s.questions[0].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(dup.Success, qt.IsFalse)

	next, err := reopened.Submit(context.Background(), s.ballot(bob, s.questions[0].ID))
	c.Assert(err, qt.IsNil)
	c.Assert(next.Success, qt.IsTrue)
	c.Assert(next.Results[0].Position, qt.Equals, uint64(1))
}
