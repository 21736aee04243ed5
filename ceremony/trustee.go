/*
Package ceremony implements the distributed key generation ceremony that
produces each election's encryption key.

The protocol is Feldman verifiable secret sharing: every trustee draws a
random polynomial of degree threshold-1, publishes curve commitments to its
coefficients, and deals one polynomial evaluation to every other trustee.
Each dealt share is checked against the dealer's commitments, so a trustee
that deals inconsistent shares is caught immediately. The election public
key is the sum of every dealer's constant-term commitment and is therefore
independent of the order in which trustees participate. No party ever holds
the matching private key whole.

The package splits into two halves: Participant is the trustee-side state
that holds secrets and never touches storage, and Coordinator is the
server-side state machine that tracks registrations and commitments and
finalizes the key.
*/
package ceremony

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/veritasvote/veritas-node/crypto/ecc"
	"github.com/veritasvote/veritas-node/types"
)

// Participant is one trustee's in-memory protocol state. The secret
// coefficients and received shares never leave the trustee process.
type Participant struct {
	Index          int
	Threshold      int
	Participants   []int
	secretCoeffs   []*big.Int
	PublicCoeffs   []ecc.Point
	dealtShares    map[int]*big.Int
	receivedShares map[int]*big.Int
	PrivateShare   *big.Int
	PublicKey      ecc.Point
	curve          ecc.Point
}

// NewParticipant initializes the trustee-side state for one ceremony.
// Index is this trustee's share index, participants lists every trustee's
// share index including this one.
func NewParticipant(index, threshold int, participants []int, curve ecc.Point) *Participant {
	return &Participant{
		Index:          index,
		Threshold:      threshold,
		Participants:   participants,
		dealtShares:    make(map[int]*big.Int),
		receivedShares: make(map[int]*big.Int),
		PrivateShare:   new(big.Int),
		curve:          curve,
	}
}

// GenerateSecretPolynomial draws the random polynomial of degree
// threshold-1 and computes the Feldman commitments to its coefficients.
func (p *Participant) GenerateSecretPolynomial() error {
	degree := p.Threshold - 1
	for i := 0; i <= degree; i++ {
		coeff, err := rand.Int(rand.Reader, p.curve.Order())
		if err != nil {
			return fmt.Errorf("draw polynomial coefficient: %w", err)
		}
		p.secretCoeffs = append(p.secretCoeffs, coeff)

		commitment := p.curve.New()
		commitment.ScalarBaseMult(coeff)
		p.PublicCoeffs = append(p.PublicCoeffs, commitment)
	}
	return nil
}

// DealShares evaluates the secret polynomial at every participant's index.
// The share for index i goes to trustee i over a private channel.
func (p *Participant) DealShares() map[int]*big.Int {
	for _, index := range p.Participants {
		p.dealtShares[index] = p.evaluatePolynomial(big.NewInt(int64(index)))
	}
	return p.dealtShares
}

func (p *Participant) evaluatePolynomial(x *big.Int) *big.Int {
	result := big.NewInt(0)
	xPower := big.NewInt(1)
	order := p.curve.Order()
	for _, coeff := range p.secretCoeffs {
		term := new(big.Int).Mul(coeff, xPower)
		term.Mod(term, order)
		result.Add(result, term)
		result.Mod(result, order)

		xPower.Mul(xPower, x)
		xPower.Mod(xPower, order)
	}
	return result
}

// ReceiveShare accepts a share dealt by another trustee, after checking it
// against the dealer's published commitments.
func (p *Participant) ReceiveShare(fromIndex int, share *big.Int, dealerCommitments []ecc.Point) error {
	if !p.verifyShare(share, dealerCommitments) {
		return fmt.Errorf("share from trustee %d does not match its commitments", fromIndex)
	}
	p.receivedShares[fromIndex] = share
	return nil
}

// verifyShare checks G*share == sum_i commitments[i] * index^i.
func (p *Participant) verifyShare(share *big.Int, dealerCommitments []ecc.Point) bool {
	lhs := p.curve.New()
	lhs.ScalarBaseMult(share)

	rhs := p.curve.New()
	x := big.NewInt(int64(p.Index))
	xPower := big.NewInt(1)
	order := p.curve.Order()
	for _, commitment := range dealerCommitments {
		term := p.curve.New()
		term.ScalarMult(commitment, xPower)
		rhs.Add(rhs, term)

		xPower.Mul(xPower, x)
		xPower.Mod(xPower, order)
	}
	return lhs.Equal(rhs)
}

// AggregateShares combines all received shares (own share included) into
// this trustee's private key share.
func (p *Participant) AggregateShares() error {
	if len(p.receivedShares) != len(p.Participants) {
		return fmt.Errorf("have %d shares, need %d", len(p.receivedShares), len(p.Participants))
	}
	sum := big.NewInt(0)
	order := p.curve.Order()
	for _, share := range p.receivedShares {
		sum.Add(sum, share)
		sum.Mod(sum, order)
	}
	p.PrivateShare = sum
	return nil
}

// AggregatePublicKey computes the election public key from every dealer's
// commitments. Only the constant-term commitments contribute, so the result
// is the same for every trustee and for the coordinator.
func (p *Participant) AggregatePublicKey(allCommitments map[int][]ecc.Point) (ecc.Point, error) {
	key, err := AggregateElectionKey(p.curve, allCommitments)
	if err != nil {
		return nil, err
	}
	p.PublicKey = key
	return key, nil
}

// AggregateElectionKey sums the constant-term commitments of every dealer.
func AggregateElectionKey(curve ecc.Point, allCommitments map[int][]ecc.Point) (ecc.Point, error) {
	key := curve.New()
	for index, commitments := range allCommitments {
		if len(commitments) == 0 {
			return nil, fmt.Errorf("trustee %d published no commitments", index)
		}
		key.Add(key, commitments[0])
	}
	return key, nil
}

// MarshalCommitments serializes Feldman commitments for publication.
func MarshalCommitments(commitments []ecc.Point) []types.HexBytes {
	out := make([]types.HexBytes, len(commitments))
	for i, commitment := range commitments {
		out[i] = commitment.Marshal()
	}
	return out
}

// UnmarshalCommitments deserializes published Feldman commitments.
func UnmarshalCommitments(curve ecc.Point, data []types.HexBytes) ([]ecc.Point, error) {
	out := make([]ecc.Point, len(data))
	for i, b := range data {
		point := curve.New()
		if err := point.Unmarshal(b); err != nil {
			return nil, fmt.Errorf("commitment %d: %w", i, err)
		}
		out[i] = point
	}
	return out, nil
}
