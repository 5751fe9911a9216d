package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"

	"github.com/opd-ai/tanglestream/crypto"
)

// Ed25519Keypair is an Identity backed by local Ed25519 signing key
// material plus an independent X25519 static keypair used for key
// agreement (Keyload recipient wrapping, Subscribe sealing). It carries two
// independent keypairs because a NaCl box keypair cannot double as a
// signature key.
type Ed25519Keypair struct {
	signPub  ed25519.PublicKey
	signPriv ed25519.PrivateKey
	kxPub    [32]byte
	kxPriv   [32]byte
}

// GenerateEd25519Keypair creates a fresh random identity: an Ed25519
// signing keypair and an X25519 key-exchange keypair.
func GenerateEd25519Keypair() (*Ed25519Keypair, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "GenerateEd25519Keypair", "package": "identity"})
	logger.Debug("generating signing and key-exchange key material")

	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithError(err).Error("failed to generate ed25519 signing key")
		return nil, err
	}

	var kxPriv [32]byte
	if _, err := rand.Read(kxPriv[:]); err != nil {
		logger.WithError(err).Error("failed to generate x25519 scalar")
		return nil, err
	}
	clamp(&kxPriv)

	var kxPub [32]byte
	curve25519.ScalarBaseMult(&kxPub, &kxPriv)

	kp := &Ed25519Keypair{signPub: signPub, signPriv: signPriv, kxPub: kxPub, kxPriv: kxPriv}

	logger.WithFields(logrus.Fields{
		"public_key_preview": kp.PublicIdentifier().String(),
	}).Info("identity key pair generated")

	return kp, nil
}

// FromSeed rebuilds an Ed25519Keypair from a 32-byte Ed25519 seed and a
// 32-byte X25519 scalar, as used by snapshot restore. The two parameters
// are value copies local to this call (the caller's own arrays are
// untouched), wiped once the keypair they derive is built.
func FromSeed(ed25519Seed [32]byte, kxScalar [32]byte) *Ed25519Keypair {
	defer crypto.ZeroBytes(ed25519Seed[:])

	signPriv := ed25519.NewKeyFromSeed(ed25519Seed[:])
	signPub := signPriv.Public().(ed25519.PublicKey)

	clamp(&kxScalar)
	var kxPub [32]byte
	curve25519.ScalarBaseMult(&kxPub, &kxScalar)
	kp := &Ed25519Keypair{signPub: signPub, signPriv: signPriv, kxPub: kxPub, kxPriv: kxScalar}
	crypto.ZeroBytes(kxScalar[:])
	return kp
}

// Seed returns the 32-byte Ed25519 seed and X25519 scalar this keypair was
// built from (or derived-equivalent, for GenerateEd25519Keypair-created
// keys), the inverse of FromSeed. Used by snapshot backup to persist an
// identity without serializing derived public key material.
func (k *Ed25519Keypair) Seed() (ed25519Seed [32]byte, kxScalar [32]byte) {
	copy(ed25519Seed[:], k.signPriv.Seed())
	kxScalar = k.kxPriv
	return ed25519Seed, kxScalar
}

func clamp(scalar *[32]byte) {
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
}

// PublicIdentifier implements Identity.
func (k *Ed25519Keypair) PublicIdentifier() Identifier {
	return NewEd25519Identifier(k.signPub)
}

// XPublic returns the static X25519 public key used for key agreement.
func (k *Ed25519Keypair) XPublic() [32]byte { return k.kxPub }

// KXPrivate returns the raw X25519 scalar backing this identity's key
// agreement. Exposed (rather than only the KeyExchange shared-secret
// method) because NaCl's box.Seal/box.Open take a raw private scalar
// directly rather than a precomputed shared secret — callers in the user
// package use it for Keyload per-recipient key wrapping and for opening
// Subscribe requests.
func (k *Ed25519Keypair) KXPrivate() [32]byte { return k.kxPriv }

// Sign implements Identity.
func (k *Ed25519Keypair) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.signPriv, data), nil
}

// Verify implements Identity. Only TagEd25519PublicKey and TagAlias
// identifiers carry signable public keys.
func (k *Ed25519Keypair) Verify(identifier Identifier, data, sig []byte) (bool, error) {
	if identifier.Tag != TagEd25519PublicKey && identifier.Tag != TagAlias {
		return false, errors.New("identity: identifier does not carry a verifiable key")
	}
	if len(identifier.Bytes) != ed25519.PublicKeySize {
		return false, errors.New("identity: malformed ed25519 public key")
	}
	return ed25519.Verify(ed25519.PublicKey(identifier.Bytes), data, sig), nil
}

// KeyExchange implements Identity using X25519.
func (k *Ed25519Keypair) KeyExchange(theirPublic [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(k.kxPriv[:], theirPublic[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], out)
	return shared, nil
}
