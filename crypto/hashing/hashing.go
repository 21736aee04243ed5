// Package hashing groups the hash functions used across the trust core:
// SHA-256 for ledger nodes, Keccak256 for identity hashes and Poseidon for
// nullifier derivation and ceremony commitment digests.
package hashing

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/veritasvote/veritas-node/types"
)

// Hash returns the SHA-256 digest of the concatenation of the given chunks.
func Hash(chunks ...[]byte) types.HexBytes {
	h := sha256.New()
	for _, chunk := range chunks {
		h.Write(chunk)
	}
	return h.Sum(nil)
}

// IdentityHash returns the one-way hash stored in the per-election
// registered-identity set. The plaintext identity is never persisted: it is
// hashed together with the election id immediately on receipt, so the same
// identity yields unrelated hashes across elections.
func IdentityHash(electionID types.HexBytes, identity string) types.HexBytes {
	return ethcrypto.Keccak256(electionID, []byte(identity))
}

// BigToFF reduces a big integer into the BabyJubJub base field, so it is a
// valid Poseidon input.
func BigToFF(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, constants.Q)
}

// MultiPoseidon hashes an arbitrary number of field elements by chunking
// them into Poseidon-sized groups of 16 and hashing the chunk digests.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) > 256 {
		return nil, fmt.Errorf("too many inputs")
	}
	var hashes []*big.Int
	var chunk []*big.Int
	for _, input := range inputs {
		if len(chunk) == 16 {
			hash, err := poseidon.Hash(chunk)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, hash)
			chunk = nil
		}
		chunk = append(chunk, input)
	}
	if len(chunk) > 0 {
		hash, err := poseidon.Hash(chunk)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}

// DeriveQuestionNullifier derives the per-question nullifier from a
// credential nullifier. The derivation is a public function: anyone holding
// the credential nullifier can recompute it, and distinct questions yield
// unlinkable values.
func DeriveQuestionNullifier(credentialNullifier, questionID types.HexBytes) (types.HexBytes, error) {
	qScalar := BigToFF(new(big.Int).SetBytes(Hash(questionID)))
	nScalar := BigToFF(new(big.Int).SetBytes(credentialNullifier))
	out, err := MultiPoseidon(nScalar, qScalar)
	if err != nil {
		return nil, fmt.Errorf("could not derive question nullifier: %w", err)
	}
	return out.Bytes(), nil
}

// CommitmentDigest hashes a list of serialized curve points into a single
// field element, used as the trustee commitment hash.
func CommitmentDigest(commitments []types.HexBytes) (types.HexBytes, error) {
	inputs := make([]*big.Int, len(commitments))
	for i, c := range commitments {
		inputs[i] = BigToFF(new(big.Int).SetBytes(c))
	}
	out, err := MultiPoseidon(inputs...)
	if err != nil {
		return nil, fmt.Errorf("could not hash commitments: %w", err)
	}
	return out.Bytes(), nil
}
