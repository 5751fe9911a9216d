package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Nonce is a 24-byte value used for box/secretbox encryption.
type Nonce [24]byte

// MaxMessageSize bounds a single sealed payload (1MB) to prevent
// excessive memory usage when parsing untrusted envelopes.
const MaxMessageSize = 1024 * 1024

// GenerateNonce creates a cryptographically secure random nonce for
// WrapForRecipient or EncryptSymmetric.
func GenerateNonce() (Nonce, error) {
	logger := NewLogger("GenerateNonce")
	logger.Entry("generating new nonce")
	defer logger.Exit()

	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		logger.WithError(err, "random_generation_failed", "rand.Read").Error("failed to generate nonce")
		return Nonce{}, err
	}
	return nonce, nil
}

// WrapForRecipient seals a branch's symmetric content key to one Keyload
// recipient using X25519-derived box encryption: each recipient gets an
// independently wrapped copy of the key, sealed under their own public key.
func WrapForRecipient(key []byte, nonce Nonce, recipientPK [32]byte, senderSK [32]byte) ([]byte, error) {
	logger := NewLogger("WrapForRecipient")
	logger.WithFields(SecureFieldHash(recipientPK[:], "recipient_pk")).Debug("sealing key to recipient")
	defer logger.Exit()

	if len(key) == 0 {
		return nil, errors.New("empty key material")
	}
	if len(key) > MaxMessageSize {
		return nil, errors.New("key material too large")
	}

	sealed := box.Seal(nil, key, (*[24]byte)(&nonce), (*[32]byte)(&recipientPK), (*[32]byte)(&senderSK))
	out := make([]byte, len(sealed))
	copy(out, sealed)
	return out, nil
}

// EncryptSymmetric seals data under a 32-byte symmetric key using NaCl
// secretbox. Used for PSK-group Keyload wrapping.
func EncryptSymmetric(data []byte, nonce Nonce, key [32]byte) ([]byte, error) {
	logger := NewLogger("EncryptSymmetric")
	defer logger.Exit()

	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	if len(data) > MaxMessageSize {
		return nil, errors.New("plaintext too large")
	}

	out := secretbox.Seal(nil, data, (*[24]byte)(&nonce), (*[32]byte)(&key))
	outCopy := make([]byte, len(out))
	copy(outCopy, out)
	return outCopy, nil
}
