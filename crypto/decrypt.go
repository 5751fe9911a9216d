package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrAuthenticationFailed is returned when a box/secretbox open fails
// authentication: the signature or MAC did not match, and the message
// must be dropped without being incorporated into any state.
var ErrAuthenticationFailed = errors.New("crypto: authentication failed")

// UnwrapForRecipient opens a Keyload's per-recipient wrapped branch key.
func UnwrapForRecipient(sealed []byte, nonce Nonce, senderPK [32]byte, recipientSK [32]byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	out, ok := box.Open(nil, sealed, (*[24]byte)(&nonce), (*[32]byte)(&senderPK), (*[32]byte)(&recipientSK))
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return out, nil
}

// DecryptSymmetric opens data sealed with EncryptSymmetric.
func DecryptSymmetric(ciphertext []byte, nonce Nonce, key [32]byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	out, ok := secretbox.Open(nil, ciphertext, (*[24]byte)(&nonce), (*[32]byte)(&key))
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return out, nil
}
