package types

// CredentialMessageTag is the fixed message every credential commits to. The
// tag is part of the signed payload so a credential signature cannot be
// replayed as a signature over arbitrary data.
const CredentialMessageTag = "veritas-credential-v1"

// Credential is the anonymous voting credential held by a voter. It is
// created once per voter per election by the unblinding step of the
// credential authority protocol and is immutable after creation. The
// authority retains no copy.
type Credential struct {
	ElectionID HexBytes `json:"electionId"`
	Nullifier  HexBytes `json:"nullifier"`
	Message    string   `json:"message"`
	Signature  HexBytes `json:"signature"`
}

// BlindedMessage is the voter-blinded credential payload sent to the
// authority for signing, together with the request point R that identifies
// the signer-side session secret. The authority never observes the plaintext
// behind M.
type BlindedMessage struct {
	M HexBytes `json:"m"`
	R HexBytes `json:"r"`
}

// BlindingContext is the ephemeral voter-held state between the blinding
// request and the unblind step. It is never persisted by the authority and
// is discarded after the credential is derived.
type BlindingContext struct {
	Blinded        *BlindedMessage `json:"blinded"`
	BlindingFactor HexBytes        `json:"blindingFactor"`
}
