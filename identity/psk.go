package identity

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivePSKID derives the 16-byte pre-shared-key id from a PSK seed via
// KDF(psk_seed, "psk-id") → 16-byte id.
func DerivePSKID(seed []byte) ([16]byte, error) {
	return derivePSKFixed(seed, "psk-id")
}

// DerivePSKKey derives the 32-byte pre-shared symmetric content key from a
// PSK seed via KDF(psk_seed, "psk-key") → 32-byte key.
func DerivePSKKey(seed []byte) ([32]byte, error) {
	var out [32]byte
	b, err := derivePSK(seed, "psk-key", 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func derivePSKFixed(seed []byte, info string) ([16]byte, error) {
	var out [16]byte
	b, err := derivePSK(seed, info, 16)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func derivePSK(seed []byte, info string, size int) ([]byte, error) {
	if len(seed) == 0 {
		return nil, errors.New("identity: empty psk seed")
	}
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PreSharedKey is an Identity representing a group of subscribers who all
// hold the same symmetric seed. It grants ReadOnly to every holder of that
// seed; it cannot sign or key-exchange since there is no individual
// keypair behind it.
type PreSharedKey struct {
	id  [16]byte
	key [32]byte
}

// NewPreSharedKey derives a PreSharedKey identity from a shared seed.
func NewPreSharedKey(seed []byte) (*PreSharedKey, error) {
	id, err := DerivePSKID(seed)
	if err != nil {
		return nil, err
	}
	key, err := DerivePSKKey(seed)
	if err != nil {
		return nil, err
	}
	return &PreSharedKey{id: id, key: key}, nil
}

// PublicIdentifier implements Identity.
func (p *PreSharedKey) PublicIdentifier() Identifier {
	return NewPSKIdentifier(p.id[:])
}

// Key returns the derived 32-byte symmetric content key.
func (p *PreSharedKey) Key() [32]byte { return p.key }

// Sign implements Identity. PSK holders cannot sign; their read access is
// established entirely through Keyload membership.
func (p *PreSharedKey) Sign(data []byte) ([]byte, error) {
	return nil, errors.New("identity: pre-shared-key identities cannot sign")
}

// Verify implements Identity. PSK identities are never signature verifiers.
func (p *PreSharedKey) Verify(identifier Identifier, data, sig []byte) (bool, error) {
	return false, errors.New("identity: pre-shared-key identities cannot verify signatures")
}

// KeyExchange is not supported; PSK groups exchange no ephemeral secrets,
// they share the seed out-of-band.
func (p *PreSharedKey) KeyExchange(theirPublic [32]byte) ([32]byte, error) {
	var zero [32]byte
	return zero, errors.New("identity: pre-shared-key identities do not support key exchange")
}
