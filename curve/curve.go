// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package curve is the uniform scalar sampler and group-arithmetic seam
// described by the cryptographic core: it is the only package that imports
// filippo.io/edwards25519, and every other package in this module talks to
// the group exclusively through the operations exported here (scalar
// reduction, base/variable point multiplication, double-scalar
// multiplication, negation, and cofactor-aware equality).
//
// Scalar and Point are fixed-size wire types, not the group library's
// internal representations: Scalar is a 32-byte little-endian
// integer mod q, and Point is a 64-byte encoded point — the
// edwards25519 package's native 32-byte compressed encoding followed by 32
// reserved bytes that must be zero. Keeping the reserved tail gives this
// package room to carry a different or larger group encoding later without
// changing the wire size any caller has already persisted.
package curve

import (
	"crypto/subtle"
	"errors"

	"filippo.io/edwards25519"

	"github.com/sixafter/aegis/internal/zeroize"
	"github.com/sixafter/aegis/prng"
)

const (
	// ScalarSize is the wire size of a Scalar: 32 bytes, little-endian, mod q.
	ScalarSize = 32

	// PointSize is the wire size of a Point: a 32-byte compressed point plus
	// 32 reserved bytes, always zero in this implementation.
	PointSize = 64
)

// Scalar is a 256-bit integer in [0, q-1], little-endian encoded.
type Scalar [ScalarSize]byte

// Point is a 64-byte encoded curve point: 32-byte compressed form plus a
// 32-byte reserved tail.
type Point [PointSize]byte

var (
	// ErrZeroScalar is returned when an operation that requires a nonzero
	// scalar (e.g. as a private key) is given zero.
	ErrZeroScalar = errors.New("curve: scalar is zero")

	// ErrInvalidPoint is returned when a point encoding does not decode to
	// a valid group element, or its reserved tail is non-zero.
	ErrInvalidPoint = errors.New("curve: invalid point encoding")

	// ErrInvalidScalar is returned when a scalar encoding is malformed.
	ErrInvalidScalar = errors.New("curve: invalid scalar encoding")
)

// IsZero reports whether s encodes the zero scalar.
func (s Scalar) IsZero() bool {
	var acc byte
	for _, b := range s {
		acc |= b
	}
	return acc == 0
}

func (s Scalar) toLib() (*edwards25519.Scalar, error) {
	ls, err := edwards25519.NewScalar().SetCanonicalBytes(s[:])
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return ls, nil
}

func fromLibScalar(ls *edwards25519.Scalar) Scalar {
	var s Scalar
	copy(s[:], ls.Bytes())
	return s
}

func (p Point) toLib() (*edwards25519.Point, error) {
	var zero [32]byte
	if subtle.ConstantTimeCompare(p[32:], zero[:]) != 1 {
		return nil, ErrInvalidPoint
	}
	lp, err := edwards25519.NewIdentityPoint().SetBytes(p[:32])
	if err != nil {
		return nil, ErrInvalidPoint
	}
	return lp, nil
}

func fromLibPoint(lp *edwards25519.Point) Point {
	var p Point
	copy(p[:32], lp.Bytes())
	return p
}

// Sample draws a scalar uniform in [1, q-1] together with its matching
// point S = s*G, per the uniform scalar sampler contract: 64 random
// bytes reduced mod q, retried only on the pathological s == 0 case (which
// BaseMult reports as ErrZeroScalar). Bit-masking shortcuts are avoided
// in favor of this wide-reduction approach because the long-term
// key is later combined linearly with an ephemeral scalar, and a biased
// sampler's bias would be amplified by that combination.
func Sample(rng *prng.State) (Scalar, Point, error) {
	for {
		var wide [64]byte
		if err := rng.Random(wide[:]); err != nil {
			return Scalar{}, Point{}, err
		}
		s := ReduceScalar(wide)
		zeroize.Bytes(wide[:])

		p, err := BaseMult(s)
		if err != nil {
			if errors.Is(err, ErrZeroScalar) {
				continue
			}
			return Scalar{}, Point{}, err
		}
		return s, p, nil
	}
}

// ReduceScalar reduces 64 bytes modulo q. The reduction is unbiased because
// q is close to 2^252 and the input space is 2^512: folding a uniform
// 512-bit value modulo q leaves a residue bias far below any measurable
// threshold, which is why the protocol description requires drawing 64 random bytes (not 32)
// before reduction.
func ReduceScalar(wide [64]byte) Scalar {
	ls, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		// SetUniformBytes only errors on wrong input length; 64 is fixed here.
		panic("curve: SetUniformBytes rejected a 64-byte input")
	}
	return fromLibScalar(ls)
}

// BaseMult computes s*G. It returns ErrZeroScalar when s is zero, since
// the group library's base-point multiplication signals invalid input in
// that case, and callers (the uniform scalar sampler) are expected to
// retry with a fresh draw on this error.
func BaseMult(s Scalar) (Point, error) {
	if s.IsZero() {
		return Point{}, ErrZeroScalar
	}
	ls, err := s.toLib()
	if err != nil {
		return Point{}, err
	}
	lp := edwards25519.NewIdentityPoint().ScalarBaseMult(ls)
	return fromLibPoint(lp), nil
}

// ScalarMult computes s*P for an arbitrary point P.
func ScalarMult(s Scalar, p Point) (Point, error) {
	ls, err := s.toLib()
	if err != nil {
		return Point{}, err
	}
	lp, err := p.toLib()
	if err != nil {
		return Point{}, err
	}
	out := edwards25519.NewIdentityPoint().ScalarMult(ls, lp)
	return fromLibPoint(out), nil
}

// DoubleScalarMult computes a*A + b*B for two arbitrary points. The group
// library's optimized simultaneous double-scalar routine only accelerates
// the case where one operand is the fixed base point; since both handshake
// operands here are ephemeral/long-term points, this computes the sum as
// two independent scalar multiplications followed by a point addition —
// functionally identical to the protocol description's
// simultaneous_double_scalar_mul(a, P, b, Q), just without the shared-base
// optimization.
func DoubleScalarMult(a Scalar, pa Point, b Scalar, pb Point) (Point, error) {
	left, err := ScalarMult(a, pa)
	if err != nil {
		return Point{}, err
	}
	right, err := ScalarMult(b, pb)
	if err != nil {
		return Point{}, err
	}
	ll, err := left.toLib()
	if err != nil {
		return Point{}, err
	}
	rl, err := right.toLib()
	if err != nil {
		return Point{}, err
	}
	sum := edwards25519.NewIdentityPoint().Add(ll, rl)
	return fromLibPoint(sum), nil
}

// Negate returns -P.
func Negate(p Point) (Point, error) {
	lp, err := p.toLib()
	if err != nil {
		return Point{}, err
	}
	out := edwards25519.NewIdentityPoint().Negate(lp)
	return fromLibPoint(out), nil
}

// MulAddMod computes a*b + c mod q.
func MulAddMod(a, b, c Scalar) (Scalar, error) {
	la, err := a.toLib()
	if err != nil {
		return Scalar{}, err
	}
	lb, err := b.toLib()
	if err != nil {
		return Scalar{}, err
	}
	lc, err := c.toLib()
	if err != nil {
		return Scalar{}, err
	}
	out := edwards25519.NewScalar().MultiplyAdd(la, lb, lc)
	return fromLibScalar(out), nil
}

// cofactorFour is the Scalar encoding of the small integer 4, used by
// EqualTimesFour to clear small-subgroup ambiguity before comparing two
// points, per the "×4 equality" contract.
var cofactorFour = Scalar{4}

// EqualTimesFour reports whether 4*a equals 4*b as group elements. This is
// the cofactor-ambiguity-clearing comparison the protocol description requires when
// verifying a signature equation: points that differ only by a component
// of order 2 or 4 compare equal here, where a plain Equal would reject
// them.
func EqualTimesFour(a, b Point) (bool, error) {
	la, err := ScalarMult(cofactorFour, a)
	if err != nil {
		return false, err
	}
	lb, err := ScalarMult(cofactorFour, b)
	if err != nil {
		return false, err
	}
	lla, err := la.toLib()
	if err != nil {
		return false, err
	}
	llb, err := lb.toLib()
	if err != nil {
		return false, err
	}
	return lla.Equal(llb) == 1, nil
}

// Bytes returns the 32-byte wire encoding of s.
func (s Scalar) Bytes() [ScalarSize]byte { return [ScalarSize]byte(s) }

// Bytes returns the 64-byte wire encoding of p.
func (p Point) Bytes() [PointSize]byte { return [PointSize]byte(p) }
