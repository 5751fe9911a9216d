package content

// Announce is the first message of a channel. Predecessor is always the
// all-zero message id; it is authenticated by the author's Ed25519
// signature (a 64-byte envelope.Frame.AuthTag). AuthorXPublic carries the
// author's static X25519 public key (independent of their Ed25519 signing
// key) so every subscriber can resolve it once, from the one message
// every subscriber is guaranteed to fetch, instead of needing a separate
// key-discovery round trip before their first Keyload can be unwrapped.
type Announce struct {
	AuthorIdentifier []byte
	AuthorXPublic    [32]byte
	Mode             ChannelMode
	RootTopic        string
}

// Type implements the typed-body/ContentType pairing.
func (Announce) Type() Type { return TypeAnnounce }

// Encode serializes the Announce body.
func (a *Announce) Encode() []byte {
	buf := make([]byte, 0, 4+len(a.AuthorIdentifier)+32+1+4+len(a.RootTopic))
	buf = appendBytes(buf, a.AuthorIdentifier)
	buf = append(buf, a.AuthorXPublic[:]...)
	buf = append(buf, byte(a.Mode))
	buf = appendString(buf, a.RootTopic)
	return buf
}

// DecodeAnnounce parses an Announce body.
func DecodeAnnounce(data []byte) (*Announce, error) {
	author, rest, err := readBytes(data)
	if err != nil {
		return nil, err
	}
	if len(author) == 0 {
		return nil, ErrMalformedContent
	}
	if len(rest) < 32+1 {
		return nil, ErrMalformedContent
	}
	var xpub [32]byte
	copy(xpub[:], rest[:32])
	rest = rest[32:]

	mode := ChannelMode(rest[0])
	rest = rest[1:]

	topic, rest, err := readString(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrMalformedContent
	}

	return &Announce{AuthorIdentifier: author, AuthorXPublic: xpub, Mode: mode, RootTopic: topic}, nil
}
