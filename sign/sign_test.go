// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package sign

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixafter/aegis/curve"
)

func newSigner(t *testing.T) *Signer {
	t.Helper()
	var wide [64]byte
	_, err := rand.Read(wide[:])
	require.NoError(t, err)
	ss := curve.ReduceScalar(wide)
	sp, err := curve.BaseMult(ss)
	require.NoError(t, err)

	var nonceKey [32]byte
	_, err = rand.Read(nonceKey[:])
	require.NoError(t, err)

	return &Signer{NonceKey: nonceKey, Scalar: ss, Public: sp}
}

// Test_SignVerify_RoundTrip checks that a signature over a message
// verifies against the same message and public key, across message
// lengths 1..10000 (sampled, not exhaustive).
func Test_SignVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	sgn := newSigner(t)
	for _, n := range []int{1, 3, 64, 255, 1000, 10000} {
		m := make([]byte, n)
		_, err := rand.Read(m)
		require.NoError(err)

		sig, err := sgn.Sign(m)
		require.NoError(err)

		is.NoError(Verify(m, sgn.Public, sig))
	}
}

// Test_Verify_TamperMessage checks that flipping a bit of the message
// makes verification fail.
func Test_Verify_TamperMessage(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	sgn := newSigner(t)
	m := []byte("abc")
	sig, err := sgn.Sign(m)
	require.NoError(err)

	tampered := []byte("abd")
	is.ErrorIs(Verify(tampered, sgn.Public, sig), ErrVerifyFailed)
}

// Test_Verify_TamperR checks that flipping a bit of the signature's R
// component makes verification fail.
func Test_Verify_TamperR(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	sgn := newSigner(t)
	m := []byte("abc")
	sig, err := sgn.Sign(m)
	require.NoError(err)

	sig[0] ^= 0xFF
	is.Error(Verify(m, sgn.Public, sig))
}

// Test_Verify_TamperS checks that flipping a bit of the signature's s
// component makes verification fail.
func Test_Verify_TamperS(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	sgn := newSigner(t)
	m := []byte("abc")
	sig, err := sgn.Sign(m)
	require.NoError(err)

	sig[curve.PointSize] ^= 0xFF
	is.ErrorIs(Verify(m, sgn.Public, sig), ErrVerifyFailed)
}

// Test_Sign_RejectsEmptyMessage covers the edge case: zero-length m.
func Test_Sign_RejectsEmptyMessage(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	sgn := newSigner(t)
	_, err := sgn.Sign(nil)
	is.ErrorIs(err, ErrEmptyMessage)
}

// Test_Verify_RejectsEmptyMessage covers the edge case for verify.
func Test_Verify_RejectsEmptyMessage(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	sgn := newSigner(t)
	var sig Signature
	is.ErrorIs(Verify(nil, sgn.Public, sig), ErrEmptyMessage)
}

// Test_Sign_Verify_DeterministicVector checks the round trip with a
// fixed, small private scalar: a signature over "abc" verifies, and the
// same signature does not verify against the altered message "abd".
func Test_Sign_Verify_DeterministicVector(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	var ssBytes curve.Scalar
	ssBytes[0] = 0x02
	sp, err := curve.BaseMult(ssBytes)
	require.NoError(err)

	var nonceKey [32]byte
	sgn := &Signer{NonceKey: nonceKey, Scalar: ssBytes, Public: sp}

	sig, err := sgn.Sign([]byte("abc"))
	require.NoError(err)
	is.NoError(Verify([]byte("abc"), sp, sig))
	is.Error(Verify([]byte("abd"), sp, sig))
}
