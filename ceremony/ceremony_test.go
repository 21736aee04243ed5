package ceremony

import (
	"fmt"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/veritasvote/veritas-node/crypto/ecc"
	"github.com/veritasvote/veritas-node/crypto/ecc/curves"
	"github.com/veritasvote/veritas-node/crypto/elgamal"
	"github.com/veritasvote/veritas-node/db/metadb"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
	"github.com/veritasvote/veritas-node/util"
)

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	stor := storage.NewTest(metadb.NewTest(t))
	t.Cleanup(stor.Close)
	return NewCoordinator(stor)
}

func testCurve(t *testing.T) ecc.Point {
	t.Helper()
	return curves.New(curves.CurveTypeBabyJubJub)
}

// runParticipants executes the trustee side of an n-of-m ceremony and
// returns the participants after share aggregation.
func runParticipants(t *testing.T, threshold, total int) []*Participant {
	t.Helper()
	c := qt.New(t)
	curve := testCurve(t)

	indexes := make([]int, total)
	for i := range indexes {
		indexes[i] = i + 1
	}
	participants := make([]*Participant, total)
	for i := range participants {
		participants[i] = NewParticipant(indexes[i], threshold, indexes, curve)
		c.Assert(participants[i].GenerateSecretPolynomial(), qt.IsNil)
	}
	for _, dealer := range participants {
		shares := dealer.DealShares()
		for _, receiver := range participants {
			err := receiver.ReceiveShare(dealer.Index, shares[receiver.Index], dealer.PublicCoeffs)
			c.Assert(err, qt.IsNil)
		}
	}
	for _, p := range participants {
		c.Assert(p.AggregateShares(), qt.IsNil)
	}
	return participants
}

func TestThreeOfFiveCeremony(t *testing.T) {
	c := qt.New(t)
	co := testCoordinator(t)
	eid := types.HexBytes{0x01}

	state, err := co.Create(eid, 3, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(state.Phase, qt.Equals, types.CeremonyPhaseCreated)

	// duplicate creation is rejected
	_, err = co.Create(eid, 3, 5)
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)

	// registrations are not accepted until registration opens
	_, err = co.RegisterTrustee(eid, "too-early", util.RandomBytes(32))
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)

	_, err = co.OpenRegistration(eid)
	c.Assert(err, qt.IsNil)
	// opening twice is a phase error
	_, err = co.OpenRegistration(eid)
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)

	participants := runParticipants(t, 3, 5)

	var trustees []*types.Trustee
	for i, p := range participants {
		trustee, err := co.RegisterTrustee(eid, fmt.Sprintf("trustee-%d", i), util.RandomBytes(32))
		c.Assert(err, qt.IsNil)
		c.Assert(trustee.ShareIndex, qt.Equals, p.Index)
		trustees = append(trustees, trustee)
	}

	// the sixth registration finds no free slot
	_, err = co.RegisterTrustee(eid, "trustee-5", util.RandomBytes(32))
	c.Assert(err, qt.ErrorIs, ErrCeremonyFull)

	state, err = co.State(eid)
	c.Assert(err, qt.IsNil)
	c.Assert(state.Phase, qt.Equals, types.CeremonyPhaseCommitment)

	for i, p := range participants {
		state, err = co.SubmitCommitment(eid, trustees[i].ID, MarshalCommitments(p.PublicCoeffs))
		c.Assert(err, qt.IsNil)
	}
	c.Assert(state.Phase, qt.Equals, types.CeremonyPhaseFinalized)
	c.Assert(state.ElectionPublicKey, qt.Not(qt.HasLen), 0)

	// a commitment after finalization is rejected
	_, err = co.SubmitCommitment(eid, trustees[0].ID, MarshalCommitments(participants[0].PublicCoeffs))
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)

	// the coordinator's key matches what every trustee derives locally
	coordinatorKey, err := co.ElectionPublicKey(eid)
	c.Assert(err, qt.IsNil)
	allCommitments := make(map[int][]ecc.Point)
	for _, p := range participants {
		allCommitments[p.Index] = p.PublicCoeffs
	}
	for _, p := range participants {
		key, err := p.AggregatePublicKey(allCommitments)
		c.Assert(err, qt.IsNil)
		c.Assert(key.Equal(coordinatorKey), qt.IsTrue)
	}
}

func TestCommitmentPhaseGuards(t *testing.T) {
	c := qt.New(t)
	co := testCoordinator(t)
	eid := types.HexBytes{0x02}

	_, err := co.Create(eid, 2, 3)
	c.Assert(err, qt.IsNil)
	_, err = co.OpenRegistration(eid)
	c.Assert(err, qt.IsNil)

	participants := runParticipants(t, 2, 3)

	trustee, err := co.RegisterTrustee(eid, "early", util.RandomBytes(32))
	c.Assert(err, qt.IsNil)

	// commitments are not accepted until all trustees registered
	_, err = co.SubmitCommitment(eid, trustee.ID, MarshalCommitments(participants[0].PublicCoeffs))
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)

	var trustees []*types.Trustee
	trustees = append(trustees, trustee)
	for _, name := range []string{"second", "third"} {
		tr, err := co.RegisterTrustee(eid, name, util.RandomBytes(32))
		c.Assert(err, qt.IsNil)
		trustees = append(trustees, tr)
	}

	// wrong commitment count
	_, err = co.SubmitCommitment(eid, trustees[0].ID, MarshalCommitments(participants[0].PublicCoeffs[:1]))
	c.Assert(err, qt.IsNotNil)

	// unknown trustee
	_, err = co.SubmitCommitment(eid, types.HexBytes{0xff}, MarshalCommitments(participants[0].PublicCoeffs))
	c.Assert(err, qt.ErrorIs, ErrTrusteeNotFound)

	_, err = co.SubmitCommitment(eid, trustees[0].ID, MarshalCommitments(participants[0].PublicCoeffs))
	c.Assert(err, qt.IsNil)

	// double commitment by the same trustee is a phase error
	_, err = co.SubmitCommitment(eid, trustees[0].ID, MarshalCommitments(participants[0].PublicCoeffs))
	c.Assert(err, qt.ErrorIs, ErrAlreadyCommitted)
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)

	// key is not available before finalization
	_, err = co.ElectionPublicKey(eid)
	c.Assert(err, qt.ErrorIs, ErrInvalidPhase)
}

func TestInvalidCeremonyParameters(t *testing.T) {
	c := qt.New(t)
	co := testCoordinator(t)

	_, err := co.Create(types.HexBytes{0x03}, 1, 5)
	c.Assert(err, qt.IsNotNil)
	_, err = co.Create(types.HexBytes{0x03}, 6, 5)
	c.Assert(err, qt.IsNotNil)
}

func TestTamperedShareIsRejected(t *testing.T) {
	c := qt.New(t)
	curve := testCurve(t)

	indexes := []int{1, 2}
	dealer := NewParticipant(1, 2, indexes, curve)
	receiver := NewParticipant(2, 2, indexes, curve)
	c.Assert(dealer.GenerateSecretPolynomial(), qt.IsNil)
	c.Assert(receiver.GenerateSecretPolynomial(), qt.IsNil)

	shares := dealer.DealShares()
	tampered := new(big.Int).Add(shares[2], big.NewInt(1))
	err := receiver.ReceiveShare(1, tampered, dealer.PublicCoeffs)
	c.Assert(err, qt.IsNotNil)
}

// The election key is a sum over dealers, so the order trustees participate
// in must not matter.
func TestAggregatedKeyIsOrderInvariant(t *testing.T) {
	c := qt.New(t)
	participants := runParticipants(t, 3, 5)
	curve := testCurve(t)

	forward := make(map[int][]ecc.Point)
	for _, p := range participants {
		forward[p.Index] = p.PublicCoeffs
	}
	reversed := make(map[int][]ecc.Point)
	for i := len(participants) - 1; i >= 0; i-- {
		reversed[participants[i].Index] = participants[i].PublicCoeffs
	}

	keyForward, err := AggregateElectionKey(curve, forward)
	c.Assert(err, qt.IsNil)
	keyReversed, err := AggregateElectionKey(curve, reversed)
	c.Assert(err, qt.IsNil)
	c.Assert(keyForward.Equal(keyReversed), qt.IsTrue)
}

// End to end: encrypt under the ceremony key, decrypt with exactly the
// threshold number of trustee shares.
func TestThresholdDecryptionWithCeremonyKey(t *testing.T) {
	c := qt.New(t)
	participants := runParticipants(t, 3, 5)
	curve := testCurve(t)

	allCommitments := make(map[int][]ecc.Point)
	for _, p := range participants {
		allCommitments[p.Index] = p.PublicCoeffs
	}
	publicKey, err := AggregateElectionKey(curve, allCommitments)
	c.Assert(err, qt.IsNil)

	const message = 42
	c1, c2, _, err := elgamal.Encrypt(publicKey, big.NewInt(message))
	c.Assert(err, qt.IsNil)

	// any 3 of the 5 trustees suffice; use 2, 4 and 5
	partials := make(map[int]ecc.Point)
	for _, p := range []*Participant{participants[1], participants[3], participants[4]} {
		partials[p.Index] = elgamal.PartialDecrypt(c1, p.PrivateShare)
	}
	decrypted, err := elgamal.CombinePartialDecryptions(c2, partials, 1000)
	c.Assert(err, qt.IsNil)
	c.Assert(decrypted.Uint64(), qt.Equals, uint64(message))
}
