package identity

import "errors"

// ErrVerificationFailed indicates a signature or MAC did not validate.
var ErrVerificationFailed = errors.New("identity: verification failed")

// Identity is the capability boundary for signing, verifying and key
// exchange: sign, verify, public_identifier and key_exchange. Four
// concrete backends implement it: Ed25519Keypair, DIDAccount,
// DIDPrivateKey and PreSharedKey. Callers never branch on concrete type;
// every consumer in this module only ever sees the interface.
type Identity interface {
	// PublicIdentifier returns the Identifier others use to address this
	// identity (and to resolve its effective permission on a branch).
	PublicIdentifier() Identifier

	// Sign produces a detached signature over data. PreSharedKey always
	// returns an error (not ErrVerificationFailed): a PSK group cannot sign.
	Sign(data []byte) ([]byte, error)

	// Verify checks a signature produced by the holder of identifier over
	// data.
	Verify(identifier Identifier, data, sig []byte) (bool, error)

	// KeyExchange derives a shared secret with a peer's X25519 public key.
	KeyExchange(theirPublic [32]byte) ([32]byte, error)
}
