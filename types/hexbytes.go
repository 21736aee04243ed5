package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to the
// base64 default.
type HexBytes []byte

// Bytes returns the underlying byte slice of the HexBytes.
func (b HexBytes) Bytes() []byte {
	return b
}

// Hex returns the hexadecimal string representation of the HexBytes.
func (b HexBytes) Hex() string {
	return hex.EncodeToString(b)
}

// String returns the hexadecimal string representation of the HexBytes,
// prefixed with "0x".
func (b HexBytes) String() string {
	return "0x" + b.Hex()
}

// Equal method compares the current HexBytes with the provided one. First
// checks if both have the same length, and compare them byte per byte.
func (b HexBytes) Equal(other HexBytes) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if b[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalJSON implements the json.Marshaler interface for HexBytes. It encodes
// the byte slice as a hexadecimal string prefixed with "0x".
func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	enc[0] = '"'
	enc[1] = '0'
	enc[2] = 'x'
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for HexBytes. It
// accepts both 0x-prefixed and bare hexadecimal strings.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	data = data[1 : len(data)-1]
	s := strings.TrimPrefix(string(data), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes converts a hex string to a HexBytes. It strips a leading
// '0x' prefix if present. It panics if the string is not valid hexadecimal.
func HexStringToHexBytes(s string) HexBytes {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %v", err))
	}
	return b
}
