package identity

import (
	"crypto/ed25519"
	"errors"
)

// DIDPrivateKey is an Identity backed by raw Ed25519 key material that is
// named by a DID verification-method URL rather than by the bare public
// key bytes — the signature math is identical to Ed25519Keypair, but the
// public Identifier carries the DID-URL tag so ACL entries can reference
// subscribers by DID rather than by key.
type DIDPrivateKey struct {
	url  string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewDIDPrivateKey builds a DIDPrivateKey identity from raw Ed25519 key
// material and the DID-URL it should be addressed by.
func NewDIDPrivateKey(url string, priv ed25519.PrivateKey) (*DIDPrivateKey, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("identity: malformed ed25519 private key")
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &DIDPrivateKey{url: url, pub: pub, priv: priv}, nil
}

// PublicIdentifier implements Identity.
func (d *DIDPrivateKey) PublicIdentifier() Identifier {
	return NewDIDURLIdentifier(d.url)
}

// Sign implements Identity.
func (d *DIDPrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(d.priv, data), nil
}

// Verify implements Identity for this identity's own DID-URL.
func (d *DIDPrivateKey) Verify(identifier Identifier, data, sig []byte) (bool, error) {
	if identifier.Tag != TagDIDURL || identifier.URL != d.url {
		return false, errors.New("identity: DIDPrivateKey cannot resolve foreign DID-URLs")
	}
	return verifyEd25519Raw(d.pub, data, sig)
}

// KeyExchange is not supported by DIDPrivateKey; see DIDAccount.
func (d *DIDPrivateKey) KeyExchange(theirPublic [32]byte) ([32]byte, error) {
	var zero [32]byte
	return zero, errors.New("identity: DIDPrivateKey does not support key exchange")
}

func verifyEd25519Raw(pub ed25519.PublicKey, data, sig []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.New("identity: malformed ed25519 public key")
	}
	return ed25519.Verify(pub, data, sig), nil
}
