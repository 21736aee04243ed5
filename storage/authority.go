package storage

import (
	"fmt"
	"time"

	"github.com/veritasvote/veritas-node/types"
)

// AuthorityKey is the persisted signer key pair of the credential authority
// for one election. The private scalar never leaves storage except into the
// authority process itself.
type AuthorityKey struct {
	ElectionID types.HexBytes `json:"electionId"`
	PrivateKey types.HexBytes `json:"privateKey"`
	PublicKey  types.HexBytes `json:"publicKey"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// BlindSession is the signer-side secret k of one blind-signature session,
// keyed by the request point R handed to the voter. It is single use: the
// signing step deletes it.
type BlindSession struct {
	ElectionID types.HexBytes `json:"electionId"`
	R          types.HexBytes `json:"r"`
	K          types.HexBytes `json:"k"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// SetAuthorityKey stores the authority signer key for an election. It fails
// with ErrKeyAlreadyExists if a key was already generated, so a restart can
// never silently rotate the signer and orphan issued credentials.
func (s *Storage) SetAuthorityKey(key *AuthorityKey) error {
	if key == nil || len(key.ElectionID) == 0 {
		return fmt.Errorf("invalid authority key record")
	}
	data, err := EncodeArtifact(key)
	if err != nil {
		return err
	}
	return s.insertOnce(authorityKeyPrefix, key.ElectionID, data)
}

// AuthorityKey retrieves the authority signer key for an election.
func (s *Storage) AuthorityKey(electionID types.HexBytes) (*AuthorityKey, error) {
	key := new(AuthorityKey)
	if err := s.getArtifact(authorityKeyPrefix, electionID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// SetBlindSession stores the signer-side secret of a blind-signature session.
func (s *Storage) SetBlindSession(session *BlindSession) error {
	if session == nil || len(session.R) == 0 {
		return fmt.Errorf("invalid blind session record")
	}
	return s.setArtifact(blindSessionPrefix, joinKey(session.ElectionID, session.R), session)
}

// ConsumeBlindSession retrieves and deletes a blind-signature session. Get
// and delete run under the insert-once lock: of any number of concurrent
// consumers of the same R exactly one gets the session, the rest get
// ErrNotFound. Signing two different messages with the same session secret k
// would expose the signer key.
func (s *Storage) ConsumeBlindSession(electionID, r types.HexBytes) (*BlindSession, error) {
	s.lockForUpdate()
	defer s.unlockForUpdate()
	key := joinKey(electionID, r)
	session := new(BlindSession)
	if err := s.getArtifact(blindSessionPrefix, key, session); err != nil {
		return nil, err
	}
	if err := s.deleteArtifact(blindSessionPrefix, key); err != nil {
		return nil, err
	}
	return session, nil
}

// RegisterIdentity atomically marks an identity hash as registered for an
// election. The check and the insert happen inside one write transaction, so
// exactly one of any number of concurrent registrations for the same
// identity succeeds; the rest get ErrKeyAlreadyExists.
func (s *Storage) RegisterIdentity(electionID, identityHash types.HexBytes) error {
	ts, err := EncodeArtifact(time.Now())
	if err != nil {
		return err
	}
	return s.insertOnce(identityPrefix, joinKey(electionID, identityHash), ts)
}

// IdentityRegistered reports whether an identity hash is already registered.
func (s *Storage) IdentityRegistered(electionID, identityHash types.HexBytes) (bool, error) {
	return s.hasKey(identityPrefix, joinKey(electionID, identityHash))
}

// CountRegisteredIdentities returns the number of registered identities for
// an election.
func (s *Storage) CountRegisteredIdentities(electionID types.HexBytes) (int, error) {
	keys, err := s.listArtifactKeys(identityPrefix)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, k := range keys {
		if matchesKeyParts(k, electionID) {
			count++
		}
	}
	return count, nil
}
