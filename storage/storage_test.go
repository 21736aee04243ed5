package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/veritasvote/veritas-node/db"
	"github.com/veritasvote/veritas-node/db/metadb"
	"github.com/veritasvote/veritas-node/types"
)

func testStorage(t *testing.T) *Storage {
	st := NewTest(metadb.NewTest(t))
	t.Cleanup(st.Close)
	return st
}

func TestElectionRoundTrip(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	election := &types.Election{
		ID:            types.HexBytes{0x01, 0x02},
		Name:          "general",
		Phase:         types.ElectionPhaseRegistration,
		Threshold:     3,
		TotalTrustees: 5,
		CreatedAt:     time.Now(),
	}
	c.Assert(st.SetElection(election), qt.IsNil)

	got, err := st.Election(election.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "general")
	c.Assert(got.Threshold, qt.Equals, 3)

	_, err = st.Election(types.HexBytes{0xff})
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(st.SetElectionPhase(election.ID, types.ElectionPhaseVoting), qt.IsNil)
	got, err = st.Election(election.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Phase, qt.Equals, types.ElectionPhaseVoting)
}

func TestBallotQuestions(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	eid := types.HexBytes{0xaa}
	for i := byte(0); i < 3; i++ {
		c.Assert(st.SetBallotQuestion(&types.BallotQuestion{
			ID:            types.HexBytes{i},
			ElectionID:    eid,
			Title:         "q",
			Type:          types.QuestionTypeYesNo,
			MaxSelections: 1,
		}), qt.IsNil)
	}
	// another election's question must not leak into the listing
	c.Assert(st.SetBallotQuestion(&types.BallotQuestion{
		ID:         types.HexBytes{0x09},
		ElectionID: types.HexBytes{0xbb},
		Type:       types.QuestionTypeYesNo,
	}), qt.IsNil)

	questions, err := st.ListBallotQuestions(eid)
	c.Assert(err, qt.IsNil)
	c.Assert(questions, qt.HasLen, 3)

	err = st.SetBallotQuestion(&types.BallotQuestion{
		ID:         types.HexBytes{0x10},
		ElectionID: eid,
		Type:       types.QuestionType("ranked"),
	})
	c.Assert(err, qt.IsNotNil)
}

func TestIdentityRegistrationIsExactlyOnce(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	eid := types.HexBytes{0x01}
	identity := types.HexBytes{0xde, 0xad}

	const goroutines = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.RegisterIdentity(eid, identity); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)
	c.Assert(len(successes), qt.Equals, 1)

	registered, err := st.IdentityRegistered(eid, identity)
	c.Assert(err, qt.IsNil)
	c.Assert(registered, qt.IsTrue)
}

func TestBlindSessionIsSingleUse(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	session := &BlindSession{
		ElectionID: types.HexBytes{0x01},
		R:          types.HexBytes{0x02},
		K:          types.HexBytes{0x03},
		CreatedAt:  time.Now(),
	}
	c.Assert(st.SetBlindSession(session), qt.IsNil)

	got, err := st.ConsumeBlindSession(session.ElectionID, session.R)
	c.Assert(err, qt.IsNil)
	c.Assert(got.K.Equal(session.K), qt.IsTrue)

	_, err = st.ConsumeBlindSession(session.ElectionID, session.R)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestConcurrentBlindSessionConsumersSingleWinner(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	eid := types.HexBytes{0x01}
	for i := byte(0); i < 50; i++ {
		session := &BlindSession{
			ElectionID: eid,
			R:          types.HexBytes{0xaa, i},
			K:          types.HexBytes{0xbb, i},
			CreatedAt:  time.Now(),
		}
		c.Assert(st.SetBlindSession(session), qt.IsNil)

		const goroutines = 8
		start := make(chan struct{})
		winners := make(chan struct{}, goroutines)
		var wg sync.WaitGroup
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := st.ConsumeBlindSession(eid, session.R); err == nil {
					winners <- struct{}{}
				}
			}()
		}
		close(start)
		wg.Wait()
		close(winners)
		c.Assert(len(winners), qt.Equals, 1)
	}
}

func TestCompositeKeysDoNotCollide(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	// (election 01, question 02 03) and (election 01 02, question 03)
	// concatenate to the same bytes but are distinct tuples
	nullifier := types.HexBytes{0xee}
	c.Assert(st.MarkNullifierConsumed(types.HexBytes{0x01}, &types.NullifierRecord{
		QuestionID: types.HexBytes{0x02, 0x03},
		Nullifier:  nullifier,
		Timestamp:  time.Now(),
	}), qt.IsNil)
	c.Assert(st.MarkNullifierConsumed(types.HexBytes{0x01, 0x02}, &types.NullifierRecord{
		QuestionID: types.HexBytes{0x03},
		Nullifier:  nullifier,
		Timestamp:  time.Now(),
	}), qt.IsNil)

	consumed, err := st.NullifierConsumed(types.HexBytes{0x01}, types.HexBytes{0x02, 0x03}, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(consumed, qt.IsTrue)
	consumed, err = st.NullifierConsumed(types.HexBytes{0x01}, types.HexBytes{0x02}, types.HexBytes{0x03, 0xee})
	c.Assert(err, qt.IsNil)
	c.Assert(consumed, qt.IsFalse)

	// listing an election whose ID is a prefix of another must not pick up
	// the other's records
	c.Assert(st.SetBallotQuestion(&types.BallotQuestion{
		ID:         types.HexBytes{0x99},
		ElectionID: types.HexBytes{0x01},
		Type:       types.QuestionTypeYesNo,
	}), qt.IsNil)
	c.Assert(st.SetBallotQuestion(&types.BallotQuestion{
		ID:         types.HexBytes{0x98},
		ElectionID: types.HexBytes{0x01, 0x02},
		Type:       types.QuestionTypeYesNo,
	}), qt.IsNil)
	questions, err := st.ListBallotQuestions(types.HexBytes{0x01})
	c.Assert(err, qt.IsNil)
	c.Assert(questions, qt.HasLen, 1)
	c.Assert(questions[0].ID.Equal(types.HexBytes{0x99}), qt.IsTrue)
}

func TestNullifierConsumptionIsExactlyOnce(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	eid := types.HexBytes{0x01}
	record := &types.NullifierRecord{
		QuestionID: types.HexBytes{0x02},
		Nullifier:  types.HexBytes{0x03, 0x04},
		Timestamp:  time.Now(),
	}
	c.Assert(st.MarkNullifierConsumed(eid, record), qt.IsNil)
	c.Assert(st.MarkNullifierConsumed(eid, record), qt.ErrorIs, ErrKeyAlreadyExists)

	consumed, err := st.NullifierConsumed(eid, record.QuestionID, record.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(consumed, qt.IsTrue)

	var replayed int
	c.Assert(st.ReplayNullifiers(eid, func(*types.NullifierRecord) bool {
		replayed++
		return true
	}), qt.IsNil)
	c.Assert(replayed, qt.Equals, 1)
}

func TestLedgerLeafStreamAndSnapshot(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	eid := types.HexBytes{0x01}
	qid := types.HexBytes{0x02}

	_, err := st.LedgerSnapshot(eid, qid)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	for i := uint64(0); i < 4; i++ {
		c.Assert(st.AppendLedgerLeaf(&types.LedgerLeaf{
			ElectionID:      eid,
			QuestionID:      qid,
			Kind:            types.QuestionTypeYesNo,
			EncryptedVote:   types.HexBytes{byte(i)},
			Nullifier:       types.HexBytes{byte(i), 0xff},
			Position:        i,
			RootAfterAppend: types.HexBytes{byte(i), 0x01},
			Timestamp:       time.Now(),
		}), qt.IsNil)
	}

	snapshot, err := st.LedgerSnapshot(eid, qid)
	c.Assert(err, qt.IsNil)
	c.Assert(snapshot.VoteCount, qt.Equals, uint64(4))
	c.Assert(snapshot.MerkleRoot.Equal(types.HexBytes{0x03, 0x01}), qt.IsTrue)

	var positions []uint64
	c.Assert(st.ReplayLedgerLeaves(eid, qid, func(leaf *types.LedgerLeaf) bool {
		positions = append(positions, leaf.Position)
		return true
	}), qt.IsNil)
	c.Assert(positions, qt.DeepEquals, []uint64{0, 1, 2, 3})
}

func TestNextShareIndex(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	eid := types.HexBytes{0x07}
	for want := 1; want <= 5; want++ {
		idx, err := st.NextShareIndex(eid)
		c.Assert(err, qt.IsNil)
		c.Assert(idx, qt.Equals, want)
	}
	// a different election starts from 1 again
	idx, err := st.NextShareIndex(types.HexBytes{0x08})
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 1)
}

// faultyDB wraps a database and fails transaction reads on demand.
type faultyDB struct {
	db.Database
	failTxGets bool
}

func (f *faultyDB) WriteTx() db.WriteTx {
	return &faultyTx{WriteTx: f.Database.WriteTx(), failGets: f.failTxGets}
}

type faultyTx struct {
	db.WriteTx
	failGets bool
}

func (f *faultyTx) Get(key []byte) ([]byte, error) {
	if f.failGets {
		return nil, fmt.Errorf("backend failure")
	}
	return f.WriteTx.Get(key)
}

func TestNextShareIndexSurfacesBackendErrors(t *testing.T) {
	c := qt.New(t)
	fdb := &faultyDB{Database: metadb.NewTest(t)}
	st := NewTest(fdb)
	t.Cleanup(st.Close)

	eid := types.HexBytes{0x07}
	idx, err := st.NextShareIndex(eid)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 1)

	// a failing counter read must surface, never restart numbering at 1
	fdb.failTxGets = true
	_, err = st.NextShareIndex(eid)
	c.Assert(err, qt.ErrorIs, ErrUnavailable)

	fdb.failTxGets = false
	idx, err = st.NextShareIndex(eid)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 2)
}

func TestReceiptRoundTrip(t *testing.T) {
	c := qt.New(t)
	st := testStorage(t)

	receipt := &types.SubmissionReceipt{
		ConfirmationCode: "abc-123",
		ElectionID:       types.HexBytes{0x01},
		Success:          true,
		AnswersSubmitted: 2,
		AnswersTotal:     3,
		Timestamp:        time.Now(),
	}
	c.Assert(st.SetReceipt(receipt), qt.IsNil)

	got, err := st.Receipt("abc-123")
	c.Assert(err, qt.IsNil)
	c.Assert(got.AnswersSubmitted, qt.Equals, 2)

	_, err = st.Receipt("missing")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}
