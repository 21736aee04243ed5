// Package ecc abstracts the elliptic curve group operations used by the key
// ceremony and the threshold ElGamal helpers, so the curve implementation can
// be swapped without touching protocol code.
package ecc

import "math/big"

// Point defines the common operations on elliptic curve group elements. It
// represents the affine coordinates of a point and provides arithmetic,
// serialization and comparison.
type Point interface {
	// New returns a new point of the same curve (identity element).
	New() Point

	// Order returns the order of the elliptic curve group.
	Order() *big.Int

	// Add adds two group elements and stores the result in the receiver.
	Add(a, b Point)

	// SafeAdd is Add with exclusive access to the receiver.
	SafeAdd(a, b Point)

	// ScalarMult sets the receiver to scalar * a.
	ScalarMult(a Point, scalar *big.Int)

	// ScalarBaseMult sets the receiver to scalar * G, where G is the group
	// generator.
	ScalarBaseMult(scalar *big.Int)

	// Marshal serializes the point into a byte slice.
	Marshal() []byte

	// Unmarshal deserializes a byte slice into the receiver. The input must
	// represent a valid point.
	Unmarshal(buf []byte) error

	// Equal reports whether the receiver and a are the same point.
	Equal(a Point) bool

	// Neg sets the receiver to the negation of a.
	Neg(a Point)

	// SetZero sets the receiver to the identity element.
	SetZero()

	// Set copies a into the receiver.
	Set(a Point)

	// SetGenerator sets the receiver to the group generator.
	SetGenerator()

	// String returns a human-readable representation of the point.
	String() string

	// Point returns the affine X and Y coordinates.
	Point() (*big.Int, *big.Int)

	// SetPoint sets the affine X and Y coordinates and returns the receiver.
	SetPoint(x, y *big.Int) Point
}
