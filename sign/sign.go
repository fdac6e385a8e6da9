// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package sign is the deterministic-nonce EdDSA-like signature engine
// bound to a long-term server identity key. It reuses curve for all group
// arithmetic and blake2b for the transcript hash, exactly as the protocol description's
// Component C describes.
package sign

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/sixafter/aegis/curve"
)

// Size is the wire size of a signature: a 64-byte point R followed by a
// 32-byte scalar s.
const Size = curve.PointSize + curve.ScalarSize

// Signature is the wire encoding of an EdDSA-like signature: R (64) || s (32).
type Signature [Size]byte

var (
	// ErrEmptyMessage is returned by Sign when the message is zero-length.
	ErrEmptyMessage = errors.New("sign: message must not be empty")

	// ErrVerifyFailed is returned by Verify when the signature equation
	// does not hold, the signature's encoded scalar or point is invalid,
	// or the embedded scalar reduces to zero.
	ErrVerifyFailed = errors.New("sign: verification failed")
)

// Signer holds the long-term key material needed to produce signatures:
// the server's 32-byte deterministic-nonce key, its private scalar SS, and
// its public point SP.
type Signer struct {
	NonceKey [32]byte
	Scalar   curve.Scalar
	Public   curve.Point
}

// Sign produces a deterministic-nonce signature over m:
//
//  1. r = H(m, keyed with the signer's nonce key) mod q
//  2. R = r*G
//  3. t = H(public || R || m) mod q
//  4. s = r + t*SS mod q
//  5. signature = R || s
func (sgn *Signer) Sign(m []byte) (Signature, error) {
	if len(m) == 0 {
		return Signature{}, ErrEmptyMessage
	}

	h, err := blake2b.New512(sgn.NonceKey[:])
	if err != nil {
		return Signature{}, fmt.Errorf("sign: keyed hash init: %w", err)
	}
	h.Write(m)
	var wide [64]byte
	copy(wide[:], h.Sum(nil))
	r := curve.ReduceScalar(wide)

	R, err := curve.BaseMult(r)
	if err != nil {
		return Signature{}, fmt.Errorf("sign: nonce reduced to zero: %w", err)
	}

	t, err := transcriptScalar(sgn.Public, R, m)
	if err != nil {
		return Signature{}, err
	}

	s, err := curve.MulAddMod(t, sgn.Scalar, r)
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}

	var sig Signature
	rb := R.Bytes()
	sb := s.Bytes()
	copy(sig[:curve.PointSize], rb[:])
	copy(sig[curve.PointSize:], sb[:])

	zeroScalar(&r)
	zeroScalar(&t)
	return sig, nil
}

// Verify checks sig against m and the signer's public point, per
// the protocol: t = H(public||R||m) mod q; u = s*G + t*(-public); accept
// iff 4R equals 4u as group elements.
func Verify(m []byte, public curve.Point, sig Signature) error {
	if len(m) == 0 {
		return ErrEmptyMessage
	}

	var R curve.Point
	copy(R[:], sig[:curve.PointSize])
	var sBytes curve.Scalar
	copy(sBytes[:], sig[curve.PointSize:])

	t, err := transcriptScalar(public, R, m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}

	negPublic, err := curve.Negate(public)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}

	// s == 0 is a degenerate signature, not a distinct error class: fold
	// it into the equality test below (0*G is the identity point) so it
	// is rejected the same way any other forged signature is.
	var one curve.Scalar
	one[0] = 1
	sG, err := curve.BaseMult(sBytes)
	if errors.Is(err, curve.ErrZeroScalar) {
		// Encoding of the identity element: y = 1, x = 0.
		sG = curve.Point{1}
	} else if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}

	u, err := curve.DoubleScalarMult(one, sG, t, negPublic)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}

	ok, err := curve.EqualTimesFour(R, u)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	if !ok {
		return ErrVerifyFailed
	}
	return nil
}

func transcriptScalar(public, R curve.Point, m []byte) (curve.Scalar, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return curve.Scalar{}, fmt.Errorf("sign: transcript hash init: %w", err)
	}
	pb := public.Bytes()
	rb := R.Bytes()
	h.Write(pb[:])
	h.Write(rb[:])
	h.Write(m)
	var wide [64]byte
	copy(wide[:], h.Sum(nil))
	return curve.ReduceScalar(wide), nil
}

func zeroScalar(s *curve.Scalar) {
	for i := range s {
		s[i] = 0
	}
}
