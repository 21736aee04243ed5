// Package elgamal implements exponential ElGamal over the ecc.Point
// abstraction, including the partial-decryption and Lagrange-combination
// operations used to exercise the threshold property of a ceremony key.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/veritasvote/veritas-node/crypto/ecc"
)

// GenerateKey generates a new public/private ElGamal encryption key pair on
// the given curve.
func GenerateKey(curve ecc.Point) (publicKey ecc.Point, privateKey *big.Int, err error) {
	order := curve.Order()
	d, err := rand.Int(rand.Reader, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key scalar: %w", err)
	}
	if d.Sign() == 0 {
		d = big.NewInt(1) // avoid zero private keys
	}
	publicKey = curve.New()
	publicKey.SetGenerator()
	publicKey.ScalarMult(publicKey, d)
	return publicKey, d, nil
}

// Encrypt encrypts a message scalar under the public key. It returns the two
// ciphertext points and the random k used.
func Encrypt(publicKey ecc.Point, msg *big.Int) (c1, c2 ecc.Point, k *big.Int, err error) {
	k, err = rand.Int(rand.Reader, publicKey.Order())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate random k: %w", err)
	}
	c1, c2, err = EncryptWithK(publicKey, msg, k)
	if err != nil {
		return nil, nil, nil, err
	}
	return c1, c2, k, nil
}

// EncryptWithK encrypts a message scalar under the public key with a fixed
// random k. The message is encoded as the point msg*G, so decryption ends
// with a bounded discrete logarithm search.
func EncryptWithK(publicKey ecc.Point, msg, k *big.Int) (ecc.Point, ecc.Point, error) {
	order := publicKey.Order()
	m := new(big.Int).Mod(msg, order)
	// C1 = k * G
	c1 := publicKey.New()
	c1.ScalarBaseMult(k)
	// s = k * publicKey
	s := publicKey.New()
	s.ScalarMult(publicKey, k)
	// C2 = m*G + s
	mPoint := publicKey.New()
	mPoint.ScalarBaseMult(m)
	c2 := publicKey.New()
	c2.Add(mPoint, s)
	return c1, c2, nil
}

// Decrypt decrypts the ciphertext (c1, c2) with a full private key and
// recovers the message scalar, searching up to maxMessage.
func Decrypt(publicKey ecc.Point, privateKey *big.Int, c1, c2 ecc.Point, maxMessage uint64) (*big.Int, error) {
	dC1 := c1.New()
	dC1.ScalarMult(c1, privateKey)
	dC1.Neg(dC1)

	m := c2.New()
	m.Set(c2)
	m.Add(m, dC1) // M = c2 - d*c1

	return babyStepGiantStep(m, maxMessage)
}

// PartialDecrypt computes one trustee's decryption share s_i = share * c1.
func PartialDecrypt(c1 ecc.Point, share *big.Int) ecc.Point {
	si := c1.New()
	si.ScalarMult(c1, share)
	return si
}

// CombinePartialDecryptions combines the decryption shares of a qualified set
// of trustees (identified by their share indexes) and recovers the message
// scalar. The number of shares must be at least the ceremony threshold; with
// fewer shares the Lagrange interpolation yields garbage, not an error.
func CombinePartialDecryptions(c2 ecc.Point, partials map[int]ecc.Point, maxMessage uint64) (*big.Int, error) {
	indexes := make([]int, 0, len(partials))
	for idx := range partials {
		indexes = append(indexes, idx)
	}
	coeffs := lagrangeCoefficients(indexes, c2.Order())

	// s = sum over i of lambda_i * s_i
	s := c2.New()
	s.SetZero()
	for _, idx := range indexes {
		term := c2.New()
		term.ScalarMult(partials[idx], coeffs[idx])
		s.Add(s, term)
	}

	// M = c2 - s
	s.Neg(s)
	m := c2.New()
	m.Set(c2)
	m.Add(m, s)

	return babyStepGiantStep(m, maxMessage)
}

// lagrangeCoefficients computes the Lagrange interpolation coefficients at
// zero for the given share indexes, modulo the group order.
func lagrangeCoefficients(indexes []int, order *big.Int) map[int]*big.Int {
	coeffs := make(map[int]*big.Int, len(indexes))
	for _, i := range indexes {
		num := big.NewInt(1)
		den := big.NewInt(1)
		xi := big.NewInt(int64(i))
		for _, j := range indexes {
			if i == j {
				continue
			}
			xj := big.NewInt(int64(j))
			// num *= -x_j ; den *= (x_i - x_j)
			num.Mul(num, new(big.Int).Neg(xj))
			num.Mod(num, order)
			den.Mul(den, new(big.Int).Sub(xi, xj))
			den.Mod(den, order)
		}
		denInv := new(big.Int).ModInverse(den, order)
		lambda := new(big.Int).Mul(num, denInv)
		lambda.Mod(lambda, order)
		coeffs[i] = lambda
	}
	return coeffs
}

// babyStepGiantStep solves M = x*G for x in [0, maxMessage].
func babyStepGiantStep(m ecc.Point, maxMessage uint64) (*big.Int, error) {
	sqrt := uint64(math.Sqrt(float64(maxMessage))) + 1

	// Baby steps: j*G for j in [0, sqrt).
	babySteps := make(map[string]uint64, sqrt)
	cur := m.New()
	cur.SetZero()
	g := m.New()
	g.SetGenerator()
	for j := uint64(0); j < sqrt; j++ {
		babySteps[string(cur.Marshal())] = j
		cur.Add(cur, g)
	}

	// Giant step: -sqrt*G.
	giant := m.New()
	giant.ScalarBaseMult(new(big.Int).SetUint64(sqrt))
	giant.Neg(giant)

	// gamma = M - i*sqrt*G, check against the baby table.
	gamma := m.New()
	gamma.Set(m)
	for i := uint64(0); i <= sqrt; i++ {
		if j, ok := babySteps[string(gamma.Marshal())]; ok {
			return new(big.Int).SetUint64(i*sqrt + j), nil
		}
		gamma.Add(gamma, giant)
	}
	return nil, fmt.Errorf("discrete log not found within %d", maxMessage)
}
