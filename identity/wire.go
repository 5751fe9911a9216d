package identity

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedIdentifier is returned by DecodeIdentifier when the bytes do
// not form a valid tagged identifier.
var ErrMalformedIdentifier = errors.New("identity: malformed identifier encoding")

// EncodeIdentifier serializes an Identifier to the tag+length-prefixed-bytes
// form carried inside envelope publisher fields and content ACL/recipient
// entries: tag(1) | len(4) | bytes. DID-URL identifiers round-trip through
// their Bytes field (already set to []byte(URL) by NewDIDURLIdentifier).
func EncodeIdentifier(id Identifier) []byte {
	buf := make([]byte, 0, 1+4+len(id.Bytes))
	buf = append(buf, byte(id.Tag))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id.Bytes)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, id.Bytes...)
}

// DecodeIdentifier parses the encoding produced by EncodeIdentifier.
func DecodeIdentifier(data []byte) (Identifier, error) {
	if len(data) < 5 {
		return Identifier{}, ErrMalformedIdentifier
	}
	tag := Tag(data[0])
	n := binary.BigEndian.Uint32(data[1:5])
	rest := data[5:]
	if uint64(len(rest)) != uint64(n) {
		return Identifier{}, ErrMalformedIdentifier
	}
	b := make([]byte, n)
	copy(b, rest)

	id := Identifier{Tag: tag, Bytes: b}
	if tag == TagDIDURL {
		id.URL = string(b)
	}
	return id, nil
}

// Key returns the canonical map key used throughout this module (branch
// cursors, permission ACLs, accepted-subscriber sets) to identify id: the
// raw bytes of its tagged wire encoding, used as a Go map key rather than
// rendered to hex since it is never shown to a user.
func Key(id Identifier) string {
	return string(EncodeIdentifier(id))
}
