// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package handshake is the mutually-authenticated ephemeral Diffie-Hellman
// handshake engine (the Component D): one 96-byte client request and
// one 128-byte server response yield a shared 32-byte session secret. The
// server additionally supports a background rekey worker that stages a
// fresh ephemeral key behind a lock-free handoff: the worker publishes the
// new key with an atomic.Value store, and a CAS-guarded rekey flag moves
// between a NEED_REKEY and REKEY_DONE state so Handshake picks up staged
// material exactly once.
package handshake

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	"github.com/sixafter/aegis/curve"
	"github.com/sixafter/aegis/internal/zeroize"
	"github.com/sixafter/aegis/prng"
)

const (
	// RequestSize is the wire size of a client request: CP[64] || CN[32].
	RequestSize = curve.PointSize + 32

	// ResponseSize is the wire size of a server response: EP[64] || SN[32]
	// || proof[32].
	ResponseSize = curve.PointSize + 32 + 32

	initializedSentinel uint32 = 0x48534B31 // "HSK1"

	// needRekey and rekeyDone are the two legal values of ServerState's
	// rekey flag. The transition NEED_REKEY -> REKEY_DONE is made only by
	// Rekey; REKEY_DONE -> NEED_REKEY is made only by Handshake after it
	// consumes the staged material.
	needRekey int32 = 0
	rekeyDone int32 = 1
)

var (
	// ErrNotInitialized is returned by any operation on a zero-value state.
	ErrNotInitialized = errors.New("handshake: state is not initialized")

	// ErrZeroTranscriptScalar is returned when the transcript hash reduces
	// to a zero scalar, which the protocol description treats as a retry signal on the
	// server side and a hard rejection on the client side (the client has
	// no retry loop available: the server already committed to SN).
	ErrZeroTranscriptScalar = errors.New("handshake: transcript reduced to zero")

	// ErrProofMismatch is returned by the client when the server's proof
	// does not match the locally computed value.
	ErrProofMismatch = errors.New("handshake: server proof mismatch")

	// ErrRekeyInProgress is returned by Rekey if called concurrently with
	// another Rekey call; a single background rekey worker is assumed, so
	// this guards misuse rather than modeling real contention.
	ErrRekeyInProgress = errors.New("handshake: rekey already in progress")

	// ErrZeroIdentity is returned by NewServerFromIdentity when the
	// persisted long-term scalar is zero.
	ErrZeroIdentity = errors.New("handshake: persisted identity scalar is zero")
)

// ClientState holds one client's ephemeral identity: a PRNG, an ephemeral
// scalar/point pair (CS, CP) that plays the role of both the DH key and a
// nonce, and a 32-byte client nonce.
type ClientState struct {
	rng         *prng.State
	cs          curve.Scalar
	cp          curve.Point
	cn          [32]byte
	initialized uint32
}

// NewClient allocates a ClientState, sampling a fresh ephemeral key and
// nonce from rng.
func NewClient(rng *prng.State) (*ClientState, error) {
	cs, cp, err := curve.Sample(rng)
	if err != nil {
		return nil, fmt.Errorf("handshake: sample client ephemeral: %w", err)
	}

	var cn [32]byte
	if err := rng.Random(cn[:]); err != nil {
		return nil, fmt.Errorf("handshake: draw client nonce: %w", err)
	}

	return &ClientState{
		rng:         rng,
		cs:          cs,
		cp:          cp,
		cn:          cn,
		initialized: initializedSentinel,
	}, nil
}

// Request encodes the client's handshake request: CP || CN.
func (c *ClientState) Request() ([RequestSize]byte, error) {
	var out [RequestSize]byte
	if c.initialized != initializedSentinel {
		return out, ErrNotInitialized
	}
	cpb := c.cp.Bytes()
	copy(out[:curve.PointSize], cpb[:])
	copy(out[curve.PointSize:], c.cn[:])
	return out, nil
}

// Handshake completes the client side of the handshake given the server's
// known long-term public key and its response, returning the shared
// 32-byte session secret. Per the protocol, a lost response must be
// replayed by the caller from cache rather than re-derived by calling
// Handshake a second time, since a second call would not change CP or CN
// but the server would have moved on to a different SN.
func (c *ClientState) Handshake(serverPublic [curve.PointSize]byte, response [ResponseSize]byte) (secret [32]byte, err error) {
	if c.initialized != initializedSentinel {
		return secret, ErrNotInitialized
	}

	var sp curve.Point
	copy(sp[:], serverPublic[:])

	var ep curve.Point
	copy(ep[:], response[:curve.PointSize])
	sn := response[curve.PointSize : curve.PointSize+32]
	proof := response[curve.PointSize+32:]

	hFull := transcript(c.cp, c.cn[:], ep, sp, sn)
	h := curve.ReduceScalar(hFull)
	if h.IsZero() {
		return secret, ErrZeroTranscriptScalar
	}

	var zero curve.Scalar
	d, err := curve.MulAddMod(h, c.cs, zero)
	if err != nil {
		return secret, fmt.Errorf("handshake: client combine scalar: %w", err)
	}
	if d.IsZero() {
		return secret, ErrZeroTranscriptScalar
	}

	t, err := curve.DoubleScalarMult(c.cs, ep, d, sp)
	if err != nil {
		return secret, fmt.Errorf("handshake: client shared point: %w", err)
	}

	k := sessionKey(t, hFull)
	defer zeroize.Bytes(k[:])
	defer zeroize.Bytes(hFull[:])
	defer zeroScalar(&h)
	defer zeroScalar(&d)

	if subtle.ConstantTimeCompare(k[32:], proof) != 1 {
		return secret, ErrProofMismatch
	}
	copy(secret[:], k[:32])
	return secret, nil
}

// stagedMaterial is the rekey worker's handoff payload: a fresh ephemeral
// scalar/point pair and the PRNG that produced it, promoted into a
// ServerState's live slots by the next Handshake call.
type stagedMaterial struct {
	rng    *prng.State
	scalar curve.Scalar
	point  curve.Point
}

// ServerState holds the server's long-term identity (SS, SP), signing
// nonce key, live ephemeral key (ES, EP), its PRNG, and the rekey staging
// slot used by the background rekey worker.
type ServerState struct {
	rng         *prng.State
	ss          curve.Scalar
	sp          curve.Point
	es          curve.Scalar
	ep          curve.Point
	nonceKey    [32]byte
	initialized uint32

	// staged holds the most recently published *stagedMaterial, written
	// with a release store by Rekey and read with an acquire load by
	// Handshake — the only intentional cross-goroutine interaction this
	// package has, using the same atomic.Value swap pattern as a
	// background cipher-rotation slot.
	staged atomic.Value

	// rekeyFlag is needRekey or rekeyDone, transitioned as described on
	// those constants. rekeying additionally guards against two concurrent
	// Rekey calls racing on the same staged slot.
	rekeyFlag int32
	rekeying  uint32
}

// NewServer allocates a ServerState: a long-term identity key, a signing
// nonce key, and an initial live ephemeral key, all sampled from rng.
func NewServer(rng *prng.State) (*ServerState, error) {
	ss, sp, err := curve.Sample(rng)
	if err != nil {
		return nil, fmt.Errorf("handshake: sample server identity: %w", err)
	}

	es, ep, err := curve.Sample(rng)
	if err != nil {
		return nil, fmt.Errorf("handshake: sample server ephemeral: %w", err)
	}

	var nonceKey [32]byte
	if err := rng.Random(nonceKey[:]); err != nil {
		return nil, fmt.Errorf("handshake: draw signing nonce key: %w", err)
	}

	s := &ServerState{
		rng:         rng,
		ss:          ss,
		sp:          sp,
		es:          es,
		ep:          ep,
		nonceKey:    nonceKey,
		initialized: initializedSentinel,
		rekeyFlag:   needRekey,
	}
	return s, nil
}

// NewServerFromIdentity rebuilds a ServerState around a previously
// persisted long-term identity (SS, signing nonce key), sampling a fresh
// ephemeral key from rng. This is the restart path for the "server
// persistence blob": the long-term scalar survives a process restart, but
// the ephemeral key never does.
func NewServerFromIdentity(rng *prng.State, ss curve.Scalar, nonceKey [32]byte) (*ServerState, error) {
	if ss.IsZero() {
		return nil, ErrZeroIdentity
	}
	sp, err := curve.BaseMult(ss)
	if err != nil {
		return nil, fmt.Errorf("handshake: rebuild identity point: %w", err)
	}

	es, ep, err := curve.Sample(rng)
	if err != nil {
		return nil, fmt.Errorf("handshake: sample server ephemeral: %w", err)
	}

	return &ServerState{
		rng:         rng,
		ss:          ss,
		sp:          sp,
		es:          es,
		ep:          ep,
		nonceKey:    nonceKey,
		initialized: initializedSentinel,
		rekeyFlag:   needRekey,
	}, nil
}

// PublicKey returns the server's long-term public point SP.
func (s *ServerState) PublicKey() ([curve.PointSize]byte, error) {
	if s.initialized != initializedSentinel {
		return [curve.PointSize]byte{}, ErrNotInitialized
	}
	return s.sp.Bytes(), nil
}

// NonceKey returns the server's 32-byte signing nonce key, for handing off
// to a sign.Signer constructed from the same identity.
func (s *ServerState) NonceKey() [32]byte {
	return s.nonceKey
}

// Scalar returns the server's long-term private scalar SS, for handing off
// to a sign.Signer constructed from the same identity.
func (s *ServerState) Scalar() curve.Scalar {
	return s.ss
}

// promoteStaged moves any REKEY_DONE staged material into the live
// ephemeral slot,  step 1. It is the only place staged
// values become live, and runs at the top of every Handshake call.
func (s *ServerState) promoteStaged() {
	if atomic.LoadInt32(&s.rekeyFlag) != rekeyDone {
		return
	}
	if m, _ := s.staged.Load().(*stagedMaterial); m != nil {
		s.rng = m.rng
		s.es = m.scalar
		s.ep = m.point
	}
	atomic.CompareAndSwapInt32(&s.rekeyFlag, rekeyDone, needRekey)
}

// Handshake completes the server side of the handshake, 
func (s *ServerState) Handshake(request [RequestSize]byte) (response [ResponseSize]byte, secret [32]byte, err error) {
	if s.initialized != initializedSentinel {
		return response, secret, ErrNotInitialized
	}

	s.promoteStaged()

	var cp curve.Point
	copy(cp[:], request[:curve.PointSize])
	cn := request[curve.PointSize:]

	var sn [32]byte
	var hFull [64]byte
	var h curve.Scalar
	var e curve.Scalar

	for {
		if err = s.rng.Random(sn[:]); err != nil {
			return response, secret, fmt.Errorf("handshake: draw server nonce: %w", err)
		}

		hFull = transcript(cp, cn, s.ep, s.sp, sn[:])
		h = curve.ReduceScalar(hFull)

		e, err = curve.MulAddMod(h, s.ss, s.es)
		if err != nil {
			return response, secret, fmt.Errorf("handshake: server combine scalar: %w", err)
		}

		if !h.IsZero() && !e.IsZero() {
			break
		}
	}

	t, err := curve.ScalarMult(e, cp)
	if err != nil {
		return response, secret, fmt.Errorf("handshake: server shared point: %w", err)
	}

	k := sessionKey(t, hFull)
	defer zeroize.Bytes(k[:])
	defer zeroize.Bytes(hFull[:])
	defer zeroScalar(&h)
	defer zeroScalar(&e)

	copy(secret[:], k[:32])

	epb := s.ep.Bytes()
	copy(response[:curve.PointSize], epb[:])
	copy(response[curve.PointSize:curve.PointSize+32], sn[:])
	copy(response[curve.PointSize+32:], k[32:])

	return response, secret, nil
}

// Rekey samples a fresh ephemeral key into the staging slot, intended to be
// called from a single background worker no more than once a minute per
// the protocol If the slot is already REKEY_DONE, this is a no-op: the
// next handshake will consume the already-staged material. The fresh key
// is sampled from a child PRNG forked (via prng.Derive, with extra as the
// caller-supplied context) from a copy of the live PRNG, so the rekey path
// only reads the live PRNG used by handshakes and never writes to it.
func (s *ServerState) Rekey(extra []byte) error {
	if s.initialized != initializedSentinel {
		return ErrNotInitialized
	}
	if !atomic.CompareAndSwapUint32(&s.rekeying, 0, 1) {
		return ErrRekeyInProgress
	}
	defer atomic.StoreUint32(&s.rekeying, 0)

	if atomic.LoadInt32(&s.rekeyFlag) == rekeyDone {
		return nil
	}

	live := *s.rng
	defer live.Erase()
	var staged prng.State
	if err := live.Derive(&staged, extra); err != nil {
		return fmt.Errorf("handshake: derive staged prng: %w", err)
	}

	es, ep, err := curve.Sample(&staged)
	if err != nil {
		return fmt.Errorf("handshake: sample staged ephemeral: %w", err)
	}

	s.staged.Store(&stagedMaterial{rng: &staged, scalar: es, point: ep})
	atomic.StoreInt32(&s.rekeyFlag, rekeyDone)
	return nil
}

// transcript computes H(CP || CN || EP || SP || SN), the shared
// binding hash both sides of the handshake derive h from.
func transcript(cp curve.Point, cn []byte, ep, sp curve.Point, sn []byte) [64]byte {
	cpb := cp.Bytes()
	epb := ep.Bytes()
	spb := sp.Bytes()

	var buf []byte
	buf = append(buf, cpb[:]...)
	buf = append(buf, cn...)
	buf = append(buf, epb[:]...)
	buf = append(buf, spb[:]...)
	buf = append(buf, sn...)
	return blake2b.Sum512(buf)
}

// sessionKey computes k = H(T || H_full); the low 32 bytes are the session
// secret and the high 32 bytes are the mutual authentication proof.
func sessionKey(t curve.Point, hFull [64]byte) [64]byte {
	tb := t.Bytes()
	buf := make([]byte, 0, len(tb)+len(hFull))
	buf = append(buf, tb[:]...)
	buf = append(buf, hFull[:]...)
	return blake2b.Sum512(buf)
}

func zeroScalar(s *curve.Scalar) {
	for i := range s {
		s[i] = 0
	}
}
