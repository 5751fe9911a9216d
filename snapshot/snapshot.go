// Package snapshot implements the password-protected backup/restore
// envelope for a UserState: magic, version, scrypt salt, AEAD nonce, and
// a sealed opaque payload. Grounded on the teacher's crypto.EncryptedKeyStore
// (password → derived key → encrypt-at-rest, versioned format, bad-password
// detection via AEAD open failure), adapted to use scrypt in place of
// PBKDF2 and NaCl secretbox in place of AES-GCM to match the rest of the
// engine's AEAD choice. The payload itself (identity material, branch and
// permission state, accepted-subscriber set) is encoded by the user
// package; this package only knows how to seal and open opaque bytes.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/opd-ai/tanglestream/crypto"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrBadPassword is returned when the AEAD fails to open, meaning
	// either the password is wrong or the snapshot is corrupt.
	ErrBadPassword = errors.New("snapshot: bad password or corrupt snapshot")
	// ErrVersionMismatch is returned when the snapshot's version field
	// names a format this package does not implement.
	ErrVersionMismatch = errors.New("snapshot: unsupported version")
	// ErrCorruptSnapshot is returned when the blob is too short or its
	// magic does not match.
	ErrCorruptSnapshot = errors.New("snapshot: corrupt snapshot")
)

var magic = [4]byte{'S', 'T', 'R', 'M'}

// Version1 is the only snapshot format this package currently implements.
const Version1 = 1

const (
	saltSize  = 16
	nonceSize = 24 // secretbox requires 24 bytes, unlike the 12-byte AES-GCM nonce this format's literal description assumes
)

// scryptN/scryptR/scryptP are scrypt's cost parameters, chosen to match
// the interactive-login tuning scrypt's own documentation recommends.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Backup seals payload under a key derived from password, producing a
// self-contained snapshot blob.
func Backup(password []byte, payload []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("snapshot: empty password")
	}

	var salt [saltSize]byte
	if err := randomFill(salt[:]); err != nil {
		return nil, err
	}
	key, err := deriveKey(password, salt[:])
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(key[:])

	var nonce [nonceSize]byte
	if err := randomFill(nonce[:]); err != nil {
		return nil, err
	}

	sealed := secretbox.Seal(nil, payload, &nonce, &key)

	buf := make([]byte, 0, 4+2+saltSize+nonceSize+len(sealed))
	buf = append(buf, magic[:]...)
	var versionBuf [2]byte
	binary.BigEndian.PutUint16(versionBuf[:], Version1)
	buf = append(buf, versionBuf[:]...)
	buf = append(buf, salt[:]...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, sealed...)
	return buf, nil
}

// Restore opens a snapshot blob produced by Backup, returning the
// original payload bytes.
func Restore(password []byte, blob []byte) ([]byte, error) {
	if len(blob) < 4+2+saltSize+nonceSize {
		return nil, ErrCorruptSnapshot
	}
	if !bytes.Equal(blob[:4], magic[:]) {
		return nil, ErrCorruptSnapshot
	}
	version := binary.BigEndian.Uint16(blob[4:6])
	if version != Version1 {
		return nil, ErrVersionMismatch
	}

	offset := 6
	salt := blob[offset : offset+saltSize]
	offset += saltSize
	var nonce [nonceSize]byte
	copy(nonce[:], blob[offset:offset+nonceSize])
	offset += nonceSize
	sealed := blob[offset:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(key[:])

	payload, ok := secretbox.Open(nil, sealed, &nonce, &key)
	if !ok {
		return nil, ErrBadPassword
	}
	return payload, nil
}

func deriveKey(password, salt []byte) ([32]byte, error) {
	var key [32]byte
	derived, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return key, err
	}
	copy(key[:], derived)
	return key, nil
}
