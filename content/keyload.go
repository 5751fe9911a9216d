package content

import "encoding/binary"

// ACLEntry is one (identifier, level) pair in a branch's access-control
// list, as carried by a Keyload.
type ACLEntry struct {
	Identifier []byte
	Level      Level
}

// WrappedKey is one recipient's independently-encrypted copy of a
// branch's new symmetric content key.
type WrappedKey struct {
	RecipientIdentifier []byte
	Wrapped             []byte // crypto.WrapForRecipient or EncryptSymmetric output
}

// Keyload rotates a branch's content key and republishes its ACL. It is
// published by the author or a branch admin. IssuerXPublic carries the
// issuer's static X25519 public key, so every WrappedKey recipient can
// compute the box-opening shared secret without a separate lookup: the
// issuer of a Keyload is not always the author (a branch admin can issue
// one too), so there is no single well-known key to fall back to the way
// Announce's AuthorXPublic serves the root branch.
type Keyload struct {
	Topic         string
	ACL           []ACLEntry
	WrappedKeys   []WrappedKey
	KeyloadNonce  [24]byte
	IssuerXPublic [32]byte
}

func (Keyload) Type() Type { return TypeKeyload }

func (k *Keyload) Encode() []byte {
	var buf []byte
	buf = appendString(buf, k.Topic)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(k.ACL)))
	buf = append(buf, countBuf[:]...)
	for _, e := range k.ACL {
		buf = appendBytes(buf, e.Identifier)
		buf = append(buf, byte(e.Level))
	}

	binary.BigEndian.PutUint32(countBuf[:], uint32(len(k.WrappedKeys)))
	buf = append(buf, countBuf[:]...)
	for _, w := range k.WrappedKeys {
		buf = appendBytes(buf, w.RecipientIdentifier)
		buf = appendBytes(buf, w.Wrapped)
	}

	buf = append(buf, k.KeyloadNonce[:]...)
	buf = append(buf, k.IssuerXPublic[:]...)
	return buf
}

func DecodeKeyload(data []byte) (*Keyload, error) {
	topic, rest, err := readString(data)
	if err != nil {
		return nil, err
	}

	if len(rest) < 4 {
		return nil, ErrMalformedContent
	}
	aclCount := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	acl := make([]ACLEntry, 0, aclCount)
	for i := uint32(0); i < aclCount; i++ {
		var id []byte
		id, rest, err = readBytes(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) < 1 {
			return nil, ErrMalformedContent
		}
		level := Level(rest[0])
		rest = rest[1:]
		acl = append(acl, ACLEntry{Identifier: id, Level: level})
	}

	if len(rest) < 4 {
		return nil, ErrMalformedContent
	}
	keyCount := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	keys := make([]WrappedKey, 0, keyCount)
	for i := uint32(0); i < keyCount; i++ {
		var recipient, wrapped []byte
		recipient, rest, err = readBytes(rest)
		if err != nil {
			return nil, err
		}
		wrapped, rest, err = readBytes(rest)
		if err != nil {
			return nil, err
		}
		keys = append(keys, WrappedKey{RecipientIdentifier: recipient, Wrapped: wrapped})
	}

	if len(rest) != 24+32 {
		return nil, ErrMalformedContent
	}
	var nonce [24]byte
	copy(nonce[:], rest[:24])
	var issuerXPub [32]byte
	copy(issuerXPub[:], rest[24:])

	return &Keyload{Topic: topic, ACL: acl, WrappedKeys: keys, KeyloadNonce: nonce, IssuerXPublic: issuerXPub}, nil
}
