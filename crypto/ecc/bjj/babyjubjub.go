// Package bjj implements the ecc.Point interface over the BabyJubJub curve
// using the iden3 arithmetic.
package bjj

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	babyjubjub "github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/veritasvote/veritas-node/crypto/ecc"
	"github.com/veritasvote/veritas-node/types"
)

// CurveType identifies this implementation in the curves factory.
const CurveType = "bjj_iden3"

// BJJ is the affine representation of a BabyJubJub group element.
type BJJ struct {
	inner *babyjubjub.Point
	lock  sync.Mutex
}

// New creates a new BJJ point (identity element by default).
func New() ecc.Point {
	return &BJJ{inner: babyjubjub.NewPoint()}
}

func (p *BJJ) New() ecc.Point {
	return &BJJ{inner: babyjubjub.NewPoint()}
}

// Order returns the order of the BabyJubJub prime subgroup.
func (p *BJJ) Order() *big.Int {
	return new(big.Int).Set(babyjubjub.SubOrder)
}

func (p *BJJ) Add(a, b ecc.Point) {
	p.inner = p.inner.Projective().Add(
		a.(*BJJ).inner.Projective(),
		b.(*BJJ).inner.Projective(),
	).Affine()
}

func (p *BJJ) SafeAdd(a, b ecc.Point) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.Add(a, b)
}

func (p *BJJ) ScalarMult(a ecc.Point, scalar *big.Int) {
	p.inner = p.inner.Mul(scalar, a.(*BJJ).inner)
}

func (p *BJJ) ScalarBaseMult(scalar *big.Int) {
	p.inner = p.inner.Mul(scalar, babyjubjub.B8)
}

// Marshal serializes the point in its 32-byte compressed form.
func (p *BJJ) Marshal() []byte {
	compressed := p.inner.Compress()
	return compressed[:]
}

// Unmarshal deserializes a 32-byte compressed point.
func (p *BJJ) Unmarshal(buf []byte) error {
	if len(buf) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(buf))
	}
	var b32 [32]byte
	copy(b32[:], buf)
	_, err := p.inner.Decompress(b32)
	return err
}

// MarshalJSON encodes the point as its affine coordinate pair.
func (p *BJJ) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{p.inner.X.String(), p.inner.Y.String()})
}

// UnmarshalJSON decodes the point from an affine coordinate pair.
func (p *BJJ) UnmarshalJSON(buf []byte) error {
	if p.inner == nil {
		p.inner = babyjubjub.NewPoint()
	}
	var coords []string
	if err := json.Unmarshal(buf, &coords); err != nil {
		return err
	}
	if len(coords) != 2 {
		return fmt.Errorf("expected 2 coordinates, got %d", len(coords))
	}
	var okX, okY bool
	p.inner.X, okX = new(big.Int).SetString(coords[0], 10)
	p.inner.Y, okY = new(big.Int).SetString(coords[1], 10)
	if !okX || !okY {
		return fmt.Errorf("invalid coordinate encoding")
	}
	return nil
}

func (p *BJJ) Equal(a ecc.Point) bool {
	other := a.(*BJJ).inner
	return p.inner.X.Cmp(other.X) == 0 && p.inner.Y.Cmp(other.Y) == 0
}

// Neg sets the receiver to the negation of a. On a twisted Edwards curve the
// negation of (x, y) is (-x, y).
func (p *BJJ) Neg(a ecc.Point) {
	p.Set(a)
	proj := p.inner.Projective()
	proj.X = proj.X.Neg(proj.X)
	p.inner.X = p.inner.X.Set(proj.Affine().X)
}

func (p *BJJ) SetZero() {
	proj := p.inner.Projective()
	proj.X.SetZero()
	proj.Y.SetOne()
	proj.Z.SetOne()
	p.inner = proj.Affine()
}

func (p *BJJ) Set(a ecc.Point) {
	p.inner.X = p.inner.X.Set(a.(*BJJ).inner.X)
	p.inner.Y = p.inner.Y.Set(a.(*BJJ).inner.Y)
}

func (p *BJJ) SetGenerator() {
	gen := babyjubjub.B8
	p.inner.X = p.inner.X.Set(gen.X)
	p.inner.Y = p.inner.Y.Set(gen.Y)
}

func (p *BJJ) String() string {
	return fmt.Sprintf("%s,%s", p.inner.X.String(), p.inner.Y.String())
}

func (p *BJJ) Point() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.inner.X), new(big.Int).Set(p.inner.Y)
}

func (p *BJJ) SetPoint(x, y *big.Int) ecc.Point {
	p.inner = babyjubjub.NewPoint()
	p.inner.X = p.inner.X.Set(x)
	p.inner.Y = p.inner.Y.Set(y)
	return p
}

// Type returns the curve type identifier.
func (p *BJJ) Type() string {
	return CurveType
}

// HexBytes returns the compressed point as a types.HexBytes.
func (p *BJJ) HexBytes() types.HexBytes {
	return p.Marshal()
}
