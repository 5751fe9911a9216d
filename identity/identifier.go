// Package identity implements the tagged-union Identifier type and the
// Identity capability interface (sign, verify, public_identifier,
// key_exchange) used throughout the channel engine, along with four
// concrete identity backends: Ed25519 keypairs, DID accounts delegating to
// secure storage, DID-named raw private keys, and pre-shared symmetric keys.
package identity

import (
	"bytes"
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// Tag distinguishes the kinds of Identifier.
type Tag uint8

const (
	// TagEd25519PublicKey identifies a bare Ed25519 public key.
	TagEd25519PublicKey Tag = iota
	// TagDIDURL identifies a decentralized-identifier verification-method URL.
	TagDIDURL
	// TagPreSharedKeyID identifies a pre-shared symmetric key group.
	TagPreSharedKeyID
	// TagAlias identifies a public key used as a pseudonym.
	TagAlias
)

func (t Tag) String() string {
	switch t {
	case TagEd25519PublicKey:
		return "ed25519"
	case TagDIDURL:
		return "did-url"
	case TagPreSharedKeyID:
		return "psk-id"
	case TagAlias:
		return "alias"
	default:
		return "unknown"
	}
}

// Identifier is a tagged union: an Ed25519 public key, a DID-URL, a
// pre-shared-key id, or an alias (a public key used as a pseudonym).
// Identifiers are compared by tag+bytes.
type Identifier struct {
	Tag   Tag
	Bytes []byte
	// URL holds the DID-URL text when Tag == TagDIDURL; empty otherwise.
	URL string
}

// NewEd25519Identifier builds an Identifier for a raw Ed25519 public key.
func NewEd25519Identifier(pub []byte) Identifier {
	b := make([]byte, len(pub))
	copy(b, pub)
	return Identifier{Tag: TagEd25519PublicKey, Bytes: b}
}

// NewAliasIdentifier builds an Identifier for a pseudonymous public key.
func NewAliasIdentifier(pub []byte) Identifier {
	b := make([]byte, len(pub))
	copy(b, pub)
	return Identifier{Tag: TagAlias, Bytes: b}
}

// NewDIDURLIdentifier builds an Identifier naming a DID verification method.
func NewDIDURLIdentifier(url string) Identifier {
	return Identifier{Tag: TagDIDURL, URL: url, Bytes: []byte(url)}
}

// NewPSKIdentifier builds an Identifier for a pre-shared-key group, keyed by
// the 16-byte id derived from the PSK seed (see identity.DerivePSKID).
func NewPSKIdentifier(id []byte) Identifier {
	b := make([]byte, len(id))
	copy(b, id)
	return Identifier{Tag: TagPreSharedKeyID, Bytes: b}
}

// Equal reports whether two identifiers name the same tag and bytes.
func (id Identifier) Equal(other Identifier) bool {
	return id.Tag == other.Tag && bytes.Equal(id.Bytes, other.Bytes)
}

// String renders a short, loggable form of the identifier (hex bytes, or
// the DID-URL verbatim). Never logs more than a preview of key material.
func (id Identifier) String() string {
	if id.Tag == TagDIDURL {
		return id.URL
	}
	preview := id.Bytes
	if len(preview) > 8 {
		preview = preview[:8]
	}
	return id.Tag.String() + ":" + hex.EncodeToString(preview)
}

func logFields(id Identifier) logrus.Fields {
	return logrus.Fields{
		"identifier_tag": id.Tag.String(),
		"identifier":     id.String(),
	}
}
