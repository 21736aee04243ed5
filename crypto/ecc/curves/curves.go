// Package curves instantiates ecc.Point implementations by type name.
package curves

import (
	"fmt"

	"github.com/veritasvote/veritas-node/crypto/ecc"
	"github.com/veritasvote/veritas-node/crypto/ecc/bjj"
)

// CurveTypeBabyJubJub is the default curve for ceremony key material.
const CurveTypeBabyJubJub = bjj.CurveType

// New creates a new instance of a Point implementation based on the provided
// type string. If the type is not supported, it panics.
func New(curveType string) ecc.Point {
	switch curveType {
	case bjj.CurveType:
		return bjj.New()
	default:
		panic(fmt.Sprintf("unsupported curve type: %s", curveType))
	}
}
