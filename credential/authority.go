/*
Package credential implements the blind-signature credential authority.

The authority separates voter eligibility from ballot content: a voter
proves identity once, during the election's registration phase, and walks
away with a signed credential the authority never saw in the clear. The
protocol is the classic blind signature flow over secp256k1:

 1. the voter requests a session; the authority generates (k, R) and hands
    back R while keeping k;
 2. the voter picks a random credential nullifier, builds the credential
    message and blinds its hash with R;
 3. the authority verifies eligibility, signs the blinded hash with k and
    deletes k;
 4. the voter unblinds the signature into a credential that verifies
    against the authority public key but is unlinkable to the session.

Registered identities are tracked only as keccak256 hashes. Losing the
registry after an election leaks nothing about who voted for what.
*/
package credential

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	blindsecp256k1 "github.com/arnaucube/go-blindsecp256k1"

	"github.com/veritasvote/veritas-node/crypto/hashing"
	"github.com/veritasvote/veritas-node/log"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
)

var (
	// ErrElectionNotFound is returned when the named election does not exist.
	ErrElectionNotFound = errors.New("election not found")
	// ErrRegistrationClosed is returned when the election is past its
	// registration phase.
	ErrRegistrationClosed = errors.New("registration phase is closed")
	// ErrAlreadyRegistered is returned when an identity tries to register a
	// second time for the same election.
	ErrAlreadyRegistered = errors.New("identity already registered")
	// ErrInvalidCredential is returned when a credential fails verification.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnknownSession is returned when a blind-signature session does not
	// exist or was already used.
	ErrUnknownSession = errors.New("unknown or already used signing session")
)

// Authority is the credential authority for all elections hosted by a node.
// It holds one blind-signature key pair per election, generated lazily on
// first use and pinned in storage so restarts never rotate the signer.
type Authority struct {
	stor *storage.Storage
}

// NewAuthority creates a credential authority over the given storage.
func NewAuthority(stor *storage.Storage) *Authority {
	return &Authority{stor: stor}
}

// PublicKey returns the authority's credential signing public key for an
// election, generating the key pair on first call.
func (a *Authority) PublicKey(electionID types.HexBytes) (types.HexBytes, error) {
	key, err := a.signerKey(electionID)
	if err != nil {
		return nil, err
	}
	return types.HexBytes(key.Public().Bytes()), nil
}

// signerKey loads the election's signing key, generating and persisting it
// if this is the first use.
func (a *Authority) signerKey(electionID types.HexBytes) (*blindsecp256k1.PrivateKey, error) {
	stored, err := a.stor.AuthorityKey(electionID)
	if err == nil {
		return privateKeyFromBytes(stored.PrivateKey), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	sk, err := blindsecp256k1.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate signer key: %w", err)
	}
	record := &storage.AuthorityKey{
		ElectionID: electionID,
		PrivateKey: (*big.Int)(sk).Bytes(),
		PublicKey:  sk.Public().Bytes(),
		CreatedAt:  time.Now(),
	}
	if err := a.stor.SetAuthorityKey(record); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			// lost the race to another goroutine, use the stored key
			stored, err := a.stor.AuthorityKey(electionID)
			if err != nil {
				return nil, err
			}
			return privateKeyFromBytes(stored.PrivateKey), nil
		}
		return nil, err
	}
	log.Infow("generated credential authority key", "electionId", electionID.String())
	return sk, nil
}

// RegisterVoter registers an identity for an election and opens a blind
// signing session. The identity is stored only as a hash, and at most one
// registration per identity per election ever succeeds. On success the
// returned session carries the signer point R the voter must blind with.
func (a *Authority) RegisterVoter(electionID types.HexBytes, identity string) (*SigningSession, error) {
	election, err := a.stor.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, err
	}
	if election.Phase != types.ElectionPhaseRegistration {
		return nil, ErrRegistrationClosed
	}
	identityHash := hashing.IdentityHash(electionID, identity)
	if err := a.stor.RegisterIdentity(electionID, identityHash); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}
	return a.newSigningSession(electionID)
}

// IssueCredential runs the whole issuance flow server side: registration,
// blinding, signing and unblinding in one call. The caller trades the
// unlinkability of the two-step flow for convenience, since the authority
// briefly holds the plaintext nullifier. Meant for operator tooling and
// tests; voters keep unlinkability with RegisterVoter plus a client-side
// Request.
func (a *Authority) IssueCredential(electionID types.HexBytes, identity string) (*types.Credential, error) {
	session, err := a.RegisterVoter(electionID, identity)
	if err != nil {
		return nil, err
	}
	request, err := NewRequest(session)
	if err != nil {
		return nil, err
	}
	blindSig, err := a.SignBlinded(electionID, request.Blinded)
	if err != nil {
		return nil, err
	}
	return request.Unblind(blindSig)
}

// SigningSession is the voter-visible half of one blind-signature session.
type SigningSession struct {
	ElectionID types.HexBytes `json:"electionId"`
	R          types.HexBytes `json:"r"`
}

// newSigningSession generates the signer-side parameters (k, R), stores k
// keyed by R, and returns R.
func (a *Authority) newSigningSession(electionID types.HexBytes) (*SigningSession, error) {
	k, signerR, err := blindsecp256k1.NewRequestParameters()
	if err != nil {
		return nil, fmt.Errorf("generate request parameters: %w", err)
	}
	session := &storage.BlindSession{
		ElectionID: electionID,
		R:          signerR.Bytes(),
		K:          k.Bytes(),
		CreatedAt:  time.Now(),
	}
	if err := a.stor.SetBlindSession(session); err != nil {
		return nil, err
	}
	return &SigningSession{ElectionID: electionID, R: session.R}, nil
}

// SignBlinded signs a blinded credential message. The session secret k is
// consumed atomically, so a session signs at most once even under concurrent
// requests with the same R.
func (a *Authority) SignBlinded(electionID types.HexBytes, blinded *types.BlindedMessage) (types.HexBytes, error) {
	if blinded == nil || len(blinded.M) == 0 || len(blinded.R) == 0 {
		return nil, fmt.Errorf("%w: empty blinded message", ErrInvalidCredential)
	}
	election, err := a.stor.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, err
	}
	if election.Phase != types.ElectionPhaseRegistration {
		return nil, ErrRegistrationClosed
	}
	session, err := a.stor.ConsumeBlindSession(electionID, blinded.R)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownSession
		}
		return nil, err
	}
	sk, err := a.signerKey(electionID)
	if err != nil {
		return nil, err
	}
	sBlind, err := sk.BlindSign(new(big.Int).SetBytes(blinded.M), new(big.Int).SetBytes(session.K))
	if err != nil {
		return nil, fmt.Errorf("blind sign: %w", err)
	}
	return sBlind.Bytes(), nil
}

// VerifyCredential checks a credential against the authority public key of
// its election. It verifies both the blind signature and that the message
// binds the credential's nullifier.
func (a *Authority) VerifyCredential(credential *types.Credential) error {
	if credential == nil || len(credential.Signature) == 0 {
		return ErrInvalidCredential
	}
	stored, err := a.stor.AuthorityKey(credential.ElectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidCredential
		}
		return err
	}
	return VerifyCredentialWithKey(credential, stored.PublicKey)
}

// VerifyCredentialWithKey checks a credential against an explicit authority
// public key. It is the pure form auditors can run offline.
func VerifyCredentialWithKey(credential *types.Credential, authorityPubKey types.HexBytes) error {
	if credential == nil || len(credential.Signature) == 0 {
		return ErrInvalidCredential
	}
	if credential.Message != CredentialMessage(credential.ElectionID, credential.Nullifier) {
		return fmt.Errorf("%w: message does not bind the nullifier", ErrInvalidCredential)
	}
	sig, err := blindsecp256k1.NewSignatureFromBytes(credential.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrInvalidCredential)
	}
	pubKey, err := blindsecp256k1.NewPublicKeyFromBytes(authorityPubKey)
	if err != nil {
		return fmt.Errorf("%w: malformed authority key", ErrInvalidCredential)
	}
	if !blindsecp256k1.Verify(messageToInt(credential.Message), sig, pubKey) {
		return ErrInvalidCredential
	}
	return nil
}

// CredentialMessage builds the canonical message a credential commits to.
// The fixed tag prevents cross-protocol replay and the nullifier binds the
// voter's question-nullifier derivation secret into the signature.
func CredentialMessage(electionID, nullifier types.HexBytes) string {
	return fmt.Sprintf("%s:%s:%s", types.CredentialMessageTag, electionID.Hex(), nullifier.Hex())
}

// messageToInt maps a credential message to the integer the signature scheme
// operates on.
func messageToInt(message string) *big.Int {
	return new(big.Int).SetBytes(hashing.Hash([]byte(message)))
}

func privateKeyFromBytes(b types.HexBytes) *blindsecp256k1.PrivateKey {
	return (*blindsecp256k1.PrivateKey)(new(big.Int).SetBytes(b))
}
