// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package password is the salted, memory-hard password proof protocol
// described by the Component E: an augmented PAKE in the same
// prime-order group the rest of this module uses, stretched through
// Argon2id so an offline attacker who steals the verifier database still
// pays the KDF's memory cost per guess.
//
// Wire sizes (Verifier, Challenge, ChallengeSecret, ClientProof,
// server_verifier, server_proof) are fixed by the protocol; the exact
// transcript binding those bytes together is left to the implementer
// (the open question on this point), and the one fixed here is an
// SRP-shaped augmented exchange: the server blinds its stored verifier V
// into its ephemeral point B = b*G + k*V, the client blinds its own
// ephemeral A = a*G with a scrambling scalar u = H(A, B), and both sides
// independently fold A, B, and V down to the same shared point
// (a + u*x)*b*G = b*(A + u*V) without either side ever transmitting V or x.
package password

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"golang.org/x/crypto/argon2"

	"github.com/sixafter/aegis/curve"
	"github.com/sixafter/aegis/internal/zeroize"
	"github.com/sixafter/aegis/prng"
)

const (
	// VerifierSize is the wire size of a password verifier: a 64-byte
	// point plus an 8-byte framing tag.
	VerifierSize = curve.PointSize + 8

	// ChallengeSize is the wire size of a server challenge: a 64-byte
	// point plus an 8-byte framing tag.
	ChallengeSize = curve.PointSize + 8

	// ChallengeSecretSize is the wire size of the server's retained
	// challenge state: b[32] || V[72] || username-hash[32] || transcript[24].
	ChallengeSecretSize = curve.ScalarSize + VerifierSize + 32 + 24

	// ClientProofSize is the wire size of a client proof: a 64-byte point
	// plus an 8-byte framing tag.
	ClientProofSize = curve.PointSize + 8

	// ProofSize is the wire size of server_verifier and server_proof.
	ProofSize = 32

	argonSaltSize = 16
)

var (
	verifierTag    = [8]byte{'P', 'W', 'D', 'V', '0', '0', '0', '1'}
	challengeTag   = [8]byte{'P', 'W', 'D', 'C', '0', '0', '0', '1'}
	clientProofTag = [8]byte{'P', 'W', 'D', 'P', '0', '0', '0', '1'}
)

var (
	// ErrInvalidVerifier is returned when a Verifier's framing tag or
	// embedded point is malformed.
	ErrInvalidVerifier = errors.New("password: invalid verifier encoding")

	// ErrInvalidChallenge is returned when a Challenge's framing tag or
	// embedded point is malformed.
	ErrInvalidChallenge = errors.New("password: invalid challenge encoding")

	// ErrInvalidClientProof is returned when a ClientProof's framing tag
	// or embedded point is malformed.
	ErrInvalidClientProof = errors.New("password: invalid client proof encoding")

	// ErrVerifierMismatch is returned by ClientProve when the re-derived
	// x*G does not match the supplied verifier V — either the wrong
	// password was supplied or V was tampered with in transit.
	ErrVerifierMismatch = errors.New("password: re-derived key does not match verifier")

	// ErrProofMismatch is returned by CheckServerProof (via the caller) to
	// describe a failed mutual-authentication check. CheckServerProof
	// itself returns a bool; this sentinel is exposed for callers that
	// prefer an error-shaped result.
	ErrProofMismatch = errors.New("password: server proof mismatch")
)

// Verifier is the long-term, password-derived value stored server-side
// alongside a username.
type Verifier [VerifierSize]byte

// Challenge is the server's per-login ephemeral message.
type Challenge [ChallengeSize]byte

// ChallengeSecret is the server-side state retained between Challenge_ and
// ServerProve.
type ChallengeSecret [ChallengeSecretSize]byte

// ClientProof is the client's per-login response to a Challenge.
type ClientProof [ClientProofSize]byte

func basePoint() (curve.Point, error) {
	return curve.BaseMult(curve.Scalar{1})
}

// deriveX re-derives the blinding scalar x from (password, username, realm,
// clientSecret) via Argon2id. clientSecret is mixed into
// the salt alongside username and realm: it is a client-held value never
// transmitted to the server, so it also works as a local pepper — without
// it, an attacker who compromises the server's verifier database still
// cannot mount an offline dictionary attack using only username and realm.
func deriveX(cfg Config, username, realm []byte, clientSecret [32]byte, password []byte) curve.Scalar {
	saltInput := make([]byte, 0, len(username)+len(realm)+len(clientSecret))
	saltInput = append(saltInput, username...)
	saltInput = append(saltInput, realm...)
	saltInput = append(saltInput, clientSecret[:]...)
	saltWide := blake2b.Sum512(saltInput)

	stretched := argon2.IDKey(password, saltWide[:argonSaltSize], cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLen)

	var wide [64]byte
	if len(stretched) >= 64 {
		copy(wide[:], stretched[:64])
	} else {
		h := blake2b.Sum512(stretched)
		copy(wide[:], h[:])
	}
	zeroize.Bytes(stretched)

	return curve.ReduceScalar(wide)
}

func encodePoint(p curve.Point, tag [8]byte) [72]byte {
	var out [72]byte
	pb := p.Bytes()
	copy(out[:curve.PointSize], pb[:])
	copy(out[curve.PointSize:], tag[:])
	return out
}

func decodePoint(b []byte, tag [8]byte) (curve.Point, error) {
	if subtle.ConstantTimeCompare(b[curve.PointSize:], tag[:]) != 1 {
		return curve.Point{}, fmt.Errorf("password: framing tag mismatch")
	}
	var p curve.Point
	copy(p[:], b[:curve.PointSize])
	return p, nil
}

// multiplier computes k = H(G || V), the public value binding V into the
// server's ephemeral point so it cannot be swapped for a different
// account's verifier without detection.
func multiplier(g, v curve.Point) curve.Scalar {
	gb := g.Bytes()
	vb := v.Bytes()
	wide := blake2b.Sum512(append(append([]byte{}, gb[:]...), vb[:]...))
	return curve.ReduceScalar(wide)
}

// scramble computes u = H(A || B), binding the client and server ephemeral
// points together so a captured A cannot be replayed against a different
// challenge.
func scramble(a, b curve.Point) curve.Scalar {
	ab := a.Bytes()
	bb := b.Bytes()
	wide := blake2b.Sum512(append(append([]byte{}, ab[:]...), bb[:]...))
	return curve.ReduceScalar(wide)
}

// transcriptProof computes M = H(K || A || B || V || usernameHash), the
// value both sides must agree on iff they derived the same shared point.
func transcriptProof(k [64]byte, a, b, v curve.Point, usernameHash [32]byte) [32]byte {
	ab := a.Bytes()
	bb := b.Bytes()
	vb := v.Bytes()

	buf := make([]byte, 0, len(k)+len(ab)+len(bb)+len(vb)+len(usernameHash))
	buf = append(buf, k[:]...)
	buf = append(buf, ab[:]...)
	buf = append(buf, bb[:]...)
	buf = append(buf, vb[:]...)
	buf = append(buf, usernameHash[:]...)

	full := blake2b.Sum512(buf)
	var out [32]byte
	copy(out[:], full[:32])
	return out
}

// GenerateVerifier derives a fresh client secret and the long-term verifier
// V = x*G for (username, realm, password). clientSecret
// must be retained by the caller (not the server) and supplied again to
// every future ClientProve call for this account.
func GenerateVerifier(rng *prng.State, cfg Config, username, realm, password []byte) (clientSecret [32]byte, v Verifier, err error) {
	if err := rng.Random(clientSecret[:]); err != nil {
		return clientSecret, v, fmt.Errorf("password: draw client secret: %w", err)
	}

	x := deriveX(cfg, username, realm, clientSecret, password)
	defer zeroScalar(&x)

	vp, err := curve.BaseMult(x)
	if err != nil {
		return clientSecret, v, fmt.Errorf("password: verifier point: %w", err)
	}

	v = Verifier(encodePoint(vp, verifierTag))
	return clientSecret, v, nil
}

// Challenge_ builds a server challenge for a login attempt given the
// stored Verifier for username. (Named with a trailing
// underscore because "Challenge" is the message type's name.)
func Challenge_(rng *prng.State, v Verifier, username []byte) (Challenge, ChallengeSecret, error) {
	var challenge Challenge
	var secret ChallengeSecret

	vp, err := decodePoint(v[:], verifierTag)
	if err != nil {
		return challenge, secret, fmt.Errorf("%w: %v", ErrInvalidVerifier, err)
	}

	g, err := basePoint()
	if err != nil {
		return challenge, secret, fmt.Errorf("password: base point: %w", err)
	}

	k := multiplier(g, vp)

	b, _, err := curve.Sample(rng)
	if err != nil {
		return challenge, secret, fmt.Errorf("password: sample ephemeral b: %w", err)
	}

	bp, err := curve.DoubleScalarMult(b, g, k, vp)
	if err != nil {
		return challenge, secret, fmt.Errorf("password: server ephemeral point: %w", err)
	}

	challengeBytes := encodePoint(bp, challengeTag)
	challenge = Challenge(challengeBytes)

	usernameWide := blake2b.Sum512(username)
	var usernameHash [32]byte
	copy(usernameHash[:], usernameWide[:32])

	bBytes := b.Bytes()
	copy(secret[:curve.ScalarSize], bBytes[:])
	copy(secret[curve.ScalarSize:curve.ScalarSize+VerifierSize], v[:])
	copy(secret[curve.ScalarSize+VerifierSize:curve.ScalarSize+VerifierSize+32], usernameHash[:])
	copy(secret[curve.ScalarSize+VerifierSize+32:], challengeBytes[:24])

	return challenge, secret, nil
}

// ClientProve re-derives x, samples a fresh ephemeral (a, A), and computes
// the shared point the server will independently reconstruct, per
// the protocol It returns the proof to send the server and the
// server_verifier the caller must later compare (constant-time, via
// CheckServerProof) against the server's returned server_proof.
func ClientProve(rng *prng.State, cfg Config, challenge Challenge, clientSecret [32]byte, v Verifier, username, realm, password []byte) (serverVerifier [32]byte, proof ClientProof, err error) {
	vp, err := decodePoint(v[:], verifierTag)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("%w: %v", ErrInvalidVerifier, err)
	}

	bp, err := decodePoint(challenge[:], challengeTag)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}

	x := deriveX(cfg, username, realm, clientSecret, password)
	defer zeroScalar(&x)

	xG, err := curve.BaseMult(x)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: re-derived key point: %w", err)
	}
	ok, err := curve.EqualTimesFour(xG, vp)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: verifier comparison: %w", err)
	}
	if !ok {
		return serverVerifier, proof, ErrVerifierMismatch
	}

	a, ap, err := curve.Sample(rng)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: sample ephemeral a: %w", err)
	}
	defer zeroScalar(&a)

	g, err := basePoint()
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: base point: %w", err)
	}
	k0 := multiplier(g, vp)
	negV, err := curve.Negate(vp)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: negate verifier point: %w", err)
	}

	// d = B - k*V; since the server built B as b*G + k*V, d always equals
	// b*G regardless of k or V, letting both sides fold down to the same
	// shared point without either ever transmitting b*G directly.
	var one curve.Scalar
	one[0] = 1
	d, err := curve.DoubleScalarMult(one, bp, k0, negV)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: recover blinded base: %w", err)
	}

	u := scramble(ap, bp)

	m, err := curve.MulAddMod(u, x, a)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: combine scalar: %w", err)
	}
	defer zeroScalar(&m)

	shared, err := curve.ScalarMult(m, d)
	if err != nil {
		return serverVerifier, proof, fmt.Errorf("password: shared point: %w", err)
	}

	k := blake2b.Sum512(func() []byte { sb := shared.Bytes(); return sb[:] }())
	defer zeroize.Bytes(k[:])

	usernameWide := blake2b.Sum512(username)
	var usernameHash [32]byte
	copy(usernameHash[:], usernameWide[:32])

	serverVerifier = transcriptProof(k, ap, bp, vp, usernameHash)

	proofBytes := encodePoint(ap, clientProofTag)
	proof = ClientProof(proofBytes)

	return serverVerifier, proof, nil
}

// ServerProve completes the server side of the exchange using the state
// retained by Challenge_ and the client's proof, 
func ServerProve(secret ChallengeSecret, proof ClientProof) (serverProof [32]byte, err error) {
	var b curve.Scalar
	copy(b[:], secret[:curve.ScalarSize])

	var v Verifier
	copy(v[:], secret[curve.ScalarSize:curve.ScalarSize+VerifierSize])

	var usernameHash [32]byte
	copy(usernameHash[:], secret[curve.ScalarSize+VerifierSize:curve.ScalarSize+VerifierSize+32])

	vp, err := decodePoint(v[:], verifierTag)
	if err != nil {
		return serverProof, fmt.Errorf("%w: %v", ErrInvalidVerifier, err)
	}

	ap, err := decodePoint(proof[:], clientProofTag)
	if err != nil {
		return serverProof, fmt.Errorf("%w: %v", ErrInvalidClientProof, err)
	}

	g, err := basePoint()
	if err != nil {
		return serverProof, fmt.Errorf("password: base point: %w", err)
	}
	k0 := multiplier(g, vp)
	bp, err := curve.DoubleScalarMult(b, g, k0, vp)
	if err != nil {
		return serverProof, fmt.Errorf("password: recompute challenge point: %w", err)
	}

	u := scramble(ap, bp)

	var one curve.Scalar
	one[0] = 1
	combined, err := curve.DoubleScalarMult(one, ap, u, vp)
	if err != nil {
		return serverProof, fmt.Errorf("password: combine points: %w", err)
	}

	shared, err := curve.ScalarMult(b, combined)
	if err != nil {
		return serverProof, fmt.Errorf("password: shared point: %w", err)
	}

	k := blake2b.Sum512(func() []byte { sb := shared.Bytes(); return sb[:] }())
	defer zeroize.Bytes(k[:])

	serverProof = transcriptProof(k, ap, bp, vp, usernameHash)
	return serverProof, nil
}

// CheckServerProof compares a client-held server_verifier against the
// server's returned server_proof in constant time.
func CheckServerProof(serverVerifier, serverProof [32]byte) bool {
	return subtle.ConstantTimeCompare(serverVerifier[:], serverProof[:]) == 1
}

func zeroScalar(s *curve.Scalar) {
	for i := range s {
		s[i] = 0
	}
}
