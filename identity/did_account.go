package identity

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// SecureSigner is the narrow interface a secure-storage backend (a
// stronghold-style vault, hardware wallet, etc.) must expose for
// DIDAccount to delegate signing to it. It is deliberately smaller than
// Identity: the vault never hands out raw key material.
type SecureSigner interface {
	// Sign produces a signature over data using the key material named by
	// fragment (the DID verification-method fragment, e.g. "#key-1").
	Sign(fragment string, data []byte) ([]byte, error)
	// PublicKey returns the public key bytes for fragment.
	PublicKey(fragment string) ([]byte, error)
}

// DIDAccount is an Identity whose signing operations are delegated to a
// secure-storage backend addressed by a DID verification-method fragment,
// rather than holding key material in process memory.
type DIDAccount struct {
	did      string
	fragment string
	backend  SecureSigner
}

// NewDIDAccount builds a DIDAccount delegating to backend for the given DID
// and verification-method fragment.
func NewDIDAccount(did, fragment string, backend SecureSigner) *DIDAccount {
	return &DIDAccount{did: did, fragment: fragment, backend: backend}
}

// PublicIdentifier implements Identity.
func (d *DIDAccount) PublicIdentifier() Identifier {
	return NewDIDURLIdentifier(d.did + d.fragment)
}

// Sign implements Identity by delegating to the secure-storage backend.
func (d *DIDAccount) Sign(data []byte) ([]byte, error) {
	logrus.WithFields(logrus.Fields{
		"function": "DIDAccount.Sign",
		"did":      d.did,
		"fragment": d.fragment,
	}).Debug("delegating signature to secure-storage backend")
	return d.backend.Sign(d.fragment, data)
}

// Verify implements Identity. DIDAccount can only verify identifiers whose
// public key it can resolve through its own backend (i.e. itself); peer
// verification of other DID-URL identifiers is the caller's responsibility
// via a DID resolver, which is outside this engine's scope.
func (d *DIDAccount) Verify(identifier Identifier, data, sig []byte) (bool, error) {
	if identifier.Tag != TagDIDURL || identifier.URL != d.did+d.fragment {
		return false, errors.New("identity: DIDAccount cannot resolve foreign DID-URLs")
	}
	pub, err := d.backend.PublicKey(d.fragment)
	if err != nil {
		return false, err
	}
	return verifyEd25519Raw(pub, data, sig)
}

// KeyExchange is not supported: DID accounts in this engine are used for
// signing (Announce/SignedPacket authorship), not key agreement.
func (d *DIDAccount) KeyExchange(theirPublic [32]byte) ([32]byte, error) {
	var zero [32]byte
	return zero, errors.New("identity: DIDAccount does not support key exchange")
}
