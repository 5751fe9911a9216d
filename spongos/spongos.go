// Package spongos implements the duplex-sponge construction that threads
// cryptographic state through a message and from one message to the next:
// absorb, squeeze, encrypt, commit, and fork-before-commit for
// branch-local divergence. It is built on BLAKE2b-256 as the permutation
// core and HKDF as the squeeze key schedule, the same primitives the
// teacher's noise and async packages reach for (crypto.NoiseHandshake's
// session object, async/obfs.go's HKDF-derived pseudonyms) generalized into
// a standalone, cloneable state machine.
package spongos

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

// State is the duplex-sponge state. The zero value is not usable; use New
// or Fork. Not safe for concurrent use — callers own a State exclusively,
// the same way a User value owns its engine state.
type State struct {
	chain   [32]byte // accumulated chaining value
	counter uint64   // squeeze/encrypt call counter, mixed into every derivation
}

// New starts a fresh sponge state seeded with an initial context string
// (e.g. the channel id), used once at Announce to root the chain.
func New(seed []byte) *State {
	s := &State{chain: blake2b.Sum256(append([]byte("tanglestream-spongos-init"), seed...))}
	logrus.WithFields(logrus.Fields{"function": "spongos.New"}).Debug("sponge state initialized")
	return s
}

// Fork clones the current state before committing, so a peek or a
// branch-local computation can diverge from the shared chain without
// mutating it.
func (s *State) Fork() *State {
	clone := *s
	return &clone
}

// Absorb mixes plaintext bytes into the state (header fields, for
// instance).
func (s *State) Absorb(data []byte) {
	h := blake2b.Sum256(append(append([]byte{}, s.chain[:]...), data...))
	s.chain = h
}

// Squeeze extracts n pseudorandom bytes derived from the current state
// without absorbing anything. Each call advances the internal counter so
// repeated squeezes never repeat output even if called back to back.
func (s *State) Squeeze(n int) []byte {
	out := make([]byte, n)
	reader := hkdf.New(sha256.New, s.chain[:], s.counterSalt(), []byte("tanglestream-squeeze"))
	if _, err := io.ReadFull(reader, out); err != nil {
		// hkdf.Expand only fails if n exceeds 255*hash-size; our callers
		// never request that much from a single squeeze.
		panic("spongos: squeeze exceeded hkdf output limit: " + err.Error())
	}
	s.counter++
	return out
}

// Nonce24 squeezes a 24-byte value suitable for a NaCl secretbox/box
// nonce. Distinct from Squeeze only in name, to make call sites that need
// an AEAD nonce self-documenting.
func (s *State) Nonce24() [24]byte {
	var n [24]byte
	copy(n[:], s.Squeeze(24))
	return n
}

// Encrypt XORs data with a squeezed keystream of equal length and absorbs
// the resulting ciphertext back into the state. The returned slice is a
// new allocation; data is left untouched.
func (s *State) Encrypt(data []byte) []byte {
	keystream := s.Squeeze(len(data))
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ keystream[i]
	}
	s.Absorb(out)
	return out
}

// Decrypt reverses Encrypt: XORs ciphertext with the same keystream the
// sender would have produced at this point in the chain, then absorbs the
// ciphertext (not the plaintext) so both sides stay synchronized.
func (s *State) Decrypt(ciphertext []byte) []byte {
	keystream := s.Squeeze(len(ciphertext))
	out := make([]byte, len(ciphertext))
	for i := range ciphertext {
		out[i] = ciphertext[i] ^ keystream[i]
	}
	s.Absorb(ciphertext)
	return out
}

// Commit cycles the permutation, finalizing the state used to seal the
// current message and producing the state the next message in the chain
// will start from: the state sealing message m is always deterministically
// derived from the state at the end of its predecessor.
func (s *State) Commit() {
	s.chain = blake2b.Sum256(append(append([]byte{}, s.chain[:]...), []byte("tanglestream-commit")...))
	s.counter = 0
}

// Squeeze32 is a convenience for squeezing a MAC-sized (32-byte) tag.
func (s *State) Squeeze32() [32]byte {
	var out [32]byte
	copy(out[:], s.Squeeze(32))
	return out
}

func (s *State) counterSalt() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.counter)
	return buf[:]
}

// Export returns the raw chaining value and squeeze counter, letting a
// caller (snapshot backup) persist a branch's latest chain link without
// this package knowing anything about the serialization format.
func (s *State) Export() (chain [32]byte, counter uint64) {
	return s.chain, s.counter
}

// Import rebuilds a State from values previously returned by Export, as
// used by snapshot restore to resume a branch's chain exactly where a
// backup left off.
func Import(chain [32]byte, counter uint64) *State {
	return &State{chain: chain, counter: counter}
}
