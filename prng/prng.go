// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package prng

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

const (
	// ChainingSize is the size, in bytes, of the rolling chaining value.
	ChainingSize = 64

	// TagSize is the size, in bytes, of the seeded-state sentinel tag.
	TagSize = 4

	// StateSize is the full wire size of a State: chaining value plus tag.
	StateSize = ChainingSize + TagSize
)

// seedTag is the ASCII sentinel "SEED" written to State.tag once Seed
// succeeds. Any other value in that field means the state is uninitialized
// and every operation on it must refuse, per the data-model invariant.
var seedTag = [TagSize]byte{'S', 'E', 'E', 'D'}

var (
	// ErrNotSeeded is returned by Random and Derive when called on a State
	// whose tag is not "SEED".
	ErrNotSeeded = errors.New("prng: state is not seeded")

	// ErrEntropyFloor is returned by Seed when the composed entropy
	// estimate does not clear Config.MinEntropyBits.
	ErrEntropyFloor = errors.New("prng: insufficient entropy to seed")

	// ErrRandomSource is returned when the configured entropy source fails
	// after the configured number of retries.
	ErrRandomSource = errors.New("prng: OS random source exhausted retries")
)

// globalCounter is the single module-global mutable state the protocol description allows:
// a process-wide, monotonically-incrementing 32-bit counter mixed into
// every Seed call so that two near-simultaneous calls never compose
// identical states.
var globalCounter atomic.Uint32

// State is a seeded entropy pool and stream-cipher-backed PRNG. The zero
// value is a valid but unseeded State; call Seed (or New) before Random or
// Derive.
type State struct {
	chaining [ChainingSize]byte
	tag      [TagSize]byte
	cfg      Config
}

// New allocates a State and seeds it immediately, composing the caller's
// extra entropy (if any) with the platform sources described in the protocol description.
func New(extra []byte, opts ...Option) (*State, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.setDefaults()

	s := &State{cfg: cfg}
	if err := s.Seed(extra); err != nil {
		return nil, err
	}
	return s, nil
}

// Seeded reports whether the state carries the "SEED" sentinel tag.
func (s *State) Seeded() bool {
	return s.tag == seedTag
}

// Erase overwrites the chaining value and tag with zero, per the protocol description's
// "destroyed by explicit constant-time erase" lifecycle requirement.
func (s *State) Erase() {
	for i := range s.chaining {
		s.chaining[i] = 0
	}
	for i := range s.tag {
		s.tag[i] = 0
	}
}

// osRandom draws n bytes from the configured entropy source, retrying up
// to cfg.OSRandomRetries times on a transient read failure.
func osRandom(cfg *Config, n int) ([]byte, error) {
	src := cfg.EntropySource
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, n)
	var lastErr error
	for attempt := 0; attempt <= cfg.OSRandomRetries; attempt++ {
		if _, err := io.ReadFull(src, buf); err == nil {
			return buf, nil
		} else {
			lastErr = err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRandomSource, lastErr)
}

// entropySample is one contributor to a Seed call: a byte string plus the
// estimated number of bits of entropy it is worth composing.
type entropySample struct {
	bytes []byte
	bits  int
}

// timingSample stands in for the high-resolution cycle-counter
// sample: Go exposes no portable cycle-counter intrinsic, so a
// nanosecond-resolution wall-clock read is used instead, documented as an
// approximation at each call site.
func timingSample() []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(time.Now().UnixNano()))
	return b[:]
}

// collectEntropy composes the sources the seed() operation lists,
// returning the concatenated sample bytes and a conservative lower-bound
// bit estimate for each. The true cycle counter, which Go does not expose,
// is modeled by a timing stand-in contributing zero estimated bits; the
// "thread id" and "thread-handle structure" share one stand-in sample
// (the State's address) credited 16 bits.
func collectEntropy(cfg *Config, extra []byte, self *State) ([]entropySample, error) {
	samples := make([]entropySample, 0, 10)

	if len(extra) > 0 {
		samples = append(samples, entropySample{bytes: extra, bits: len(extra) * 8})
	}

	// First cycle-counter sample, taken before the OS-random draw.
	samples = append(samples, entropySample{bytes: timingSample(), bits: 0})

	blocking, err := osRandom(cfg, cfg.BlockingBytes)
	if err != nil {
		return nil, err
	}
	nonBlocking, err := osRandom(cfg, cfg.NonBlockingBytes)
	if err != nil {
		return nil, err
	}
	osBits := (cfg.BlockingBytes + cfg.NonBlockingBytes) * 8
	samples = append(samples, entropySample{bytes: append(blocking, nonBlocking...), bits: osBits})

	var pidBuf [8]byte
	binary.LittleEndian.PutUint64(pidBuf[:], uint64(os.Getpid()))
	samples = append(samples, entropySample{bytes: pidBuf[:], bits: 8})

	// Go exposes no goroutine-id API; the State's own address stands in
	// for the "thread id" and "thread-handle structure" samples.
	handle := fmt.Sprintf("%p", self)
	samples = append(samples, entropySample{bytes: []byte(handle), bits: 16})

	wallClock := timingSample()
	samples = append(samples, entropySample{bytes: wallClock, bits: 20})

	// Two draws from a non-cryptographic PRNG reseeded with prev^time,
	// per the protocol description. math/rand/v2 has no global reseed hook, so a local
	// generator is seeded directly from the mixed value.
	var mix [8]byte
	for i := range mix {
		mix[i] = wallClock[i] ^ self.chaining[i]
	}
	legacy := mrand.New(mrand.NewPCG(binary.LittleEndian.Uint64(mix[:]), globalCounter.Load()+1))
	var legacyBuf [8]byte
	binary.LittleEndian.PutUint64(legacyBuf[:4], uint64(legacy.Uint32()))
	binary.LittleEndian.PutUint64(legacyBuf[4:], uint64(legacy.Uint32()))
	samples = append(samples, entropySample{bytes: legacyBuf[:], bits: 32})

	counter := globalCounter.Add(1)
	var counterBuf [4]byte
	binary.LittleEndian.PutUint32(counterBuf[:], counter)
	samples = append(samples, entropySample{bytes: counterBuf[:], bits: 32})

	// Second cycle-counter sample, taken at the end of composition.
	samples = append(samples, entropySample{bytes: timingSample(), bits: 0})

	return samples, nil
}

// Seed composes a fresh 512-bit chaining value by keyed-hashing the
// previous chaining value (as key material) with caller-supplied extra
// entropy and the platform sources enumerated in the seed()
// operation. It fails without mutating the state if the composed entropy
// estimate does not clear Config.MinEntropyBits.
func (s *State) Seed(extra []byte) error {
	s.cfg.setDefaults()

	samples, err := collectEntropy(&s.cfg, extra, s)
	if err != nil {
		return err
	}

	totalBits := 0
	h, err := blake2b.New512(s.chaining[:])
	if err != nil {
		return fmt.Errorf("prng: keyed hash init: %w", err)
	}
	for _, sample := range samples {
		h.Write(sample.bytes)
		totalBits += sample.bits
	}

	if totalBits < s.cfg.MinEntropyBits {
		return fmt.Errorf("%w: composed %d bits, need %d", ErrEntropyFloor, totalBits, s.cfg.MinEntropyBits)
	}

	sum := h.Sum(nil)
	copy(s.chaining[:], sum)
	s.tag = seedTag
	return nil
}

// Random requires the state to be seeded. It derives a ChaCha20 key from
// bytes 0..31 of the chaining value and a nonce from bytes 32..39 (mixed
// with a timing sample, the pseudo-thread-id, and the global counter, per
// the protocol description), expands len(out) bytes of keystream XORed over whatever was in
// out, and then ratchets the chaining value forward by hashing it to
// itself — a forward-secrecy step ensuring compromise of the state does
// not reveal past output.
func (s *State) Random(out []byte) error {
	if !s.Seeded() {
		return ErrNotSeeded
	}
	if len(out) == 0 {
		return nil
	}

	key := make([]byte, chacha20.KeySize)
	copy(key, s.chaining[:32])

	nonce := make([]byte, chacha20.NonceSize)
	copy(nonce[:8], s.chaining[32:40])
	mixIVMaterial(nonce[:8], s)

	cipher, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return fmt.Errorf("prng: cipher init: %w", err)
	}
	cipher.XORKeyStream(out, out)

	for i := range key {
		key[i] = 0
	}

	ratcheted := blake2b.Sum512(s.chaining[:])
	s.chaining = ratcheted
	return nil
}

// mixIVMaterial folds a cycle-counter-style timing sample, the pseudo
// thread id, and a counter increment into the 8-byte IV material drawn
// from the chaining value, per the random() operation.
func mixIVMaterial(iv []byte, s *State) {
	t := timingSample()
	handle := fmt.Sprintf("%p", s)
	counter := globalCounter.Add(1)
	var counterBuf [4]byte
	binary.LittleEndian.PutUint32(counterBuf[:], counter)

	for i := range iv {
		iv[i] ^= t[i]
	}
	for i := 0; i < len(iv) && i < len(handle); i++ {
		iv[i] ^= handle[i]
	}
	for i := 0; i < len(iv) && i < len(counterBuf); i++ {
		iv[i] ^= counterBuf[i]
	}
}

// Derive draws 64 bytes from parent's Random, keyed-hashes them together
// with the caller's extra entropy and child's pre-existing chaining bytes
// into a fresh chaining value for child, and marks child seeded. This lets
// a caller fork a per-goroutine PRNG without waiting on fresh OS entropy,
// per the derive() operation.
func (parent *State) Derive(child *State, extra []byte) error {
	if !parent.Seeded() {
		return ErrNotSeeded
	}
	if child == nil {
		return errors.New("prng: derive: child must not be nil")
	}

	var drawn [64]byte
	if err := parent.Random(drawn[:]); err != nil {
		return err
	}

	h, err := blake2b.New512(child.chaining[:])
	if err != nil {
		return fmt.Errorf("prng: keyed hash init: %w", err)
	}
	h.Write(drawn[:])
	h.Write(extra)

	sum := h.Sum(nil)
	copy(child.chaining[:], sum)
	child.tag = seedTag

	for i := range drawn {
		drawn[i] = 0
	}
	return nil
}
