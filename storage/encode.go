package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is the deterministic CBOR encoding mode used for all stored
// artifacts. Determinism matters: leaf hashes are computed over the encoded
// payload, so the same payload must always encode to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cannot build deterministic cbor encoder: %v", err))
	}
	cborEncMode = em
}

// EncodeArtifact encodes an artifact into deterministic CBOR.
func EncodeArtifact(a any) ([]byte, error) {
	data, err := cborEncMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifact decodes a CBOR-encoded artifact into the provided output
// variable.
func DecodeArtifact(data []byte, out any) error {
	if err := cbor.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}
