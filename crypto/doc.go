// Package crypto implements the cryptographic primitives adapter: AEAD
// sealing built on NaCl box/secretbox. The duplex-sponge construction and
// identity/signature material live in the sibling spongos and identity
// packages; this package supplies the raw asymmetric/symmetric seal
// operations both of those call into.
//
// # Sealing
//
// WrapForRecipient seals data to a single recipient's X25519 public key
// (used for Keyload's per-recipient branch-key wrapping):
//
//	nonce, _ := crypto.GenerateNonce()
//	sealed, _ := crypto.WrapForRecipient(branchKey, nonce, recipientPK, senderSK)
//	branchKey, _ := crypto.UnwrapForRecipient(sealed, nonce, senderPK, recipientSK)
//
// EncryptSymmetric/DecryptSymmetric seal data under a shared 32-byte key
// (PSK-group Keyload wrapping):
//
//	ciphertext, _ := crypto.EncryptSymmetric(data, nonce, key)
//	data, _ := crypto.DecryptSymmetric(ciphertext, nonce, key)
//
// # Secure memory
//
// SecureWipe and ZeroBytes zero sensitive byte slices using a constant-time
// XOR the compiler cannot optimize away.
//
// # Deterministic testing
//
// TimeProvider abstracts time.Now/time.Since so callers elsewhere in the
// module (the user package's backup timestamp) can inject a fixed
// clock in tests via SetDefaultTimeProvider.
package crypto
