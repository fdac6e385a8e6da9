// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package aegis is the root facade composing the entropy pool, uniform
// scalar sampler, signature engine, handshake engine, and password engine
// into the two opaque objects the data model describes: Client and
// Server. Each leaf package remains independently usable; this package
// exists so a caller never has to wire prng/curve/sign/handshake/password
// together by hand.
package aegis

import (
	"fmt"

	"github.com/sixafter/aegis/curve"
	"github.com/sixafter/aegis/handshake"
	"github.com/sixafter/aegis/prng"
	"github.com/sixafter/aegis/sign"
)

// SecretBlobSize is the wire size of a server's persisted long-term secret,
// : SS (32) || signing_nonce_key (32).
const SecretBlobSize = curve.ScalarSize + 32

// Client is a caller-facing handle around one client's PRNG and ephemeral
// handshake identity.
type Client struct {
	rng *prng.State
	hs  *handshake.ClientState
}

// NewClient allocates a Client: a freshly-seeded PRNG and a sampled
// ephemeral handshake key.
func NewClient(opts ...Option) (*Client, error) {
	cfg := NewConfig(opts...)
	if err := CheckVersion(cfg.Version); err != nil {
		return nil, err
	}

	rng, err := prng.New(cfg.Extra)
	if err != nil {
		return nil, fmt.Errorf("aegis: seed client prng: %w", err)
	}

	hs, err := handshake.NewClient(rng)
	if err != nil {
		return nil, fmt.Errorf("aegis: new client handshake state: %w", err)
	}

	return &Client{rng: rng, hs: hs}, nil
}

// Request returns the client's 96-byte handshake request, for sending to a
// Server.
func (c *Client) Request() ([handshake.RequestSize]byte, error) {
	return c.hs.Request()
}

// Handshake completes the client side of a handshake against a server's
// known public key and response, returning the shared 32-byte session
// secret.
func (c *Client) Handshake(serverPublic [curve.PointSize]byte, response [handshake.ResponseSize]byte) ([32]byte, error) {
	return c.hs.Handshake(serverPublic, response)
}

// Server is a caller-facing handle around a server's PRNG, long-term
// identity, live/staged ephemeral handshake state, and signing key.
type Server struct {
	rng    *prng.State
	hs     *handshake.ServerState
	signer *sign.Signer
}

// NewServer allocates a fresh Server: a new long-term identity, a new
// signing nonce key, and an initial ephemeral handshake key, all sampled
// from a freshly-seeded PRNG.
func NewServer(opts ...Option) (*Server, error) {
	cfg := NewConfig(opts...)
	if err := CheckVersion(cfg.Version); err != nil {
		return nil, err
	}

	rng, err := prng.New(cfg.Extra)
	if err != nil {
		return nil, fmt.Errorf("aegis: seed server prng: %w", err)
	}

	hs, err := handshake.NewServer(rng)
	if err != nil {
		return nil, fmt.Errorf("aegis: new server handshake state: %w", err)
	}

	return newServer(rng, hs)
}

// LoadServerSecret rebuilds a Server around a previously persisted 64-byte
// long-term secret blob (SS || signing_nonce_key), sampling a fresh
// ephemeral handshake key from a newly-seeded PRNG. This is the process
// restart path: the long-term identity survives, the ephemeral key does
// not, lifecycle note.
func LoadServerSecret(blob [SecretBlobSize]byte, opts ...Option) (*Server, error) {
	cfg := NewConfig(opts...)
	if err := CheckVersion(cfg.Version); err != nil {
		return nil, err
	}

	var ss curve.Scalar
	copy(ss[:], blob[:curve.ScalarSize])
	var nonceKey [32]byte
	copy(nonceKey[:], blob[curve.ScalarSize:])

	rng, err := prng.New(cfg.Extra)
	if err != nil {
		return nil, fmt.Errorf("aegis: seed server prng: %w", err)
	}

	hs, err := handshake.NewServerFromIdentity(rng, ss, nonceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretBlob, err)
	}

	return newServer(rng, hs)
}

func newServer(rng *prng.State, hs *handshake.ServerState) (*Server, error) {
	pub, err := hs.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("aegis: read server public key: %w", err)
	}
	var public curve.Point
	copy(public[:], pub[:])

	return &Server{
		rng: rng,
		hs:  hs,
		signer: &sign.Signer{
			NonceKey: hs.NonceKey(),
			Scalar:   hs.Scalar(),
			Public:   public,
		},
	}, nil
}

// PublicKey returns the server's 64-byte long-term public point.
func (s *Server) PublicKey() ([curve.PointSize]byte, error) {
	return s.hs.PublicKey()
}

// SaveSecret returns the server's 64-byte persistable long-term secret:
// SS || signing_nonce_key. The caller is responsible for
// storing it in a protected keystore.
func (s *Server) SaveSecret() [SecretBlobSize]byte {
	var blob [SecretBlobSize]byte
	ssBytes := s.hs.Scalar().Bytes()
	nonceKey := s.hs.NonceKey()
	copy(blob[:curve.ScalarSize], ssBytes[:])
	copy(blob[curve.ScalarSize:], nonceKey[:])
	return blob
}

// Sign produces a 96-byte deterministic-nonce signature over m under the
// server's long-term identity.
func (s *Server) Sign(m []byte) (sign.Signature, error) {
	return s.signer.Sign(m)
}

// Verify checks a signature produced by some server's Sign against that
// server's public key. It is a package-level function, not a Server
// method, because verification never requires a server's private state.
func Verify(m []byte, serverPublic [curve.PointSize]byte, sig sign.Signature) error {
	var public curve.Point
	copy(public[:], serverPublic[:])
	return sign.Verify(m, public, sig)
}

// Handshake completes the server side of a handshake given a client's
// 96-byte request, returning the 128-byte response to send back and the
// shared 32-byte session secret.
func (s *Server) Handshake(request [handshake.RequestSize]byte) ([handshake.ResponseSize]byte, [32]byte, error) {
	return s.hs.Handshake(request)
}

// Rekey stages a fresh ephemeral handshake key, intended to be called from
// a single background worker no more than once a minute 
func (s *Server) Rekey(extra []byte) error {
	return s.hs.Rekey(extra)
}
