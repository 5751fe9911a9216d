package user

import "golang.org/x/crypto/curve25519"

// curve25519ScalarBaseMult derives the X25519 public key for a clamped
// private scalar, mirroring identity.Ed25519Keypair's own key-exchange
// keypair derivation for the one-off ephemeral keypair each Subscribe
// generates.
func curve25519ScalarBaseMult(priv [32]byte) ([32]byte, error) {
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return pub, nil
}
