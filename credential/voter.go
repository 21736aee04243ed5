package credential

import (
	"fmt"
	"math/big"

	blindsecp256k1 "github.com/arnaucube/go-blindsecp256k1"

	"github.com/veritasvote/veritas-node/types"
	"github.com/veritasvote/veritas-node/util"
)

// nullifierSize is the byte length of the voter-chosen credential nullifier.
const nullifierSize = 32

// Request is the voter-held state of a credential request in flight. It
// lives only on the voter side; the authority never sees the nullifier or
// the blinding factors before the unblind step, and never sees the blinding
// factors at all.
type Request struct {
	ElectionID types.HexBytes
	Nullifier  types.HexBytes
	Message    string
	Blinded    *types.BlindedMessage

	secret *blindsecp256k1.UserSecretData
}

// NewRequest draws a random credential nullifier, builds the credential
// message and blinds its hash with the session's signer point R. The result
// carries the blinded message to send to the authority and the secret
// blinding state needed to unblind the reply.
func NewRequest(session *SigningSession) (*Request, error) {
	if session == nil || len(session.R) == 0 {
		return nil, fmt.Errorf("%w: empty signing session", ErrInvalidCredential)
	}
	signerR, err := blindsecp256k1.NewPointFromBytes(session.R)
	if err != nil {
		return nil, fmt.Errorf("malformed signer point: %w", err)
	}
	nullifier := types.HexBytes(util.RandomBytes(nullifierSize))
	message := CredentialMessage(session.ElectionID, nullifier)
	mBlinded, secret, err := blindsecp256k1.Blind(messageToInt(message), signerR)
	if err != nil {
		return nil, fmt.Errorf("blind message: %w", err)
	}
	return &Request{
		ElectionID: session.ElectionID,
		Nullifier:  nullifier,
		Message:    message,
		Blinded: &types.BlindedMessage{
			M: mBlinded.Bytes(),
			R: session.R,
		},
		secret: secret,
	}, nil
}

// Unblind turns the authority's blind signature into the final credential.
// The request's blinding state is single purpose and must be discarded with
// the request afterwards.
func (r *Request) Unblind(blindSignature types.HexBytes) (*types.Credential, error) {
	if r.secret == nil {
		return nil, fmt.Errorf("%w: request has no blinding state", ErrInvalidCredential)
	}
	sig := blindsecp256k1.Unblind(new(big.Int).SetBytes(blindSignature), r.secret)
	return &types.Credential{
		ElectionID: r.ElectionID,
		Nullifier:  r.Nullifier,
		Message:    r.Message,
		Signature:  sig.Bytes(),
	}, nil
}
