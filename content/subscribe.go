package content

// Subscribe is sent by a prospective subscriber. The sealed ephemeral key
// is produced by crypto.SealSubscribeToAuthor and is opaque to this
// package; it is opened by the author with their own static X25519 key
// (the one Announce publishes), not by any state this package tracks.
type Subscribe struct {
	SubscriberIdentifier []byte
	SealedEphemeralKey   []byte
}

func (Subscribe) Type() Type { return TypeSubscribe }

func (s *Subscribe) Encode() []byte {
	buf := make([]byte, 0, 4+len(s.SubscriberIdentifier)+4+len(s.SealedEphemeralKey))
	buf = appendBytes(buf, s.SubscriberIdentifier)
	buf = appendBytes(buf, s.SealedEphemeralKey)
	return buf
}

func DecodeSubscribe(data []byte) (*Subscribe, error) {
	id, rest, err := readBytes(data)
	if err != nil {
		return nil, err
	}
	if len(id) == 0 {
		return nil, ErrMalformedContent
	}
	sealed, rest, err := readBytes(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrMalformedContent
	}
	return &Subscribe{SubscriberIdentifier: id, SealedEphemeralKey: sealed}, nil
}

// Unsubscribe mirrors Subscribe: it names the identifier leaving a
// subscription, with no additional payload.
type Unsubscribe struct {
	SubscriberIdentifier []byte
}

func (Unsubscribe) Type() Type { return TypeUnsubscribe }

func (u *Unsubscribe) Encode() []byte {
	return appendBytes(nil, u.SubscriberIdentifier)
}

func DecodeUnsubscribe(data []byte) (*Unsubscribe, error) {
	id, rest, err := readBytes(data)
	if err != nil {
		return nil, err
	}
	if len(id) == 0 {
		return nil, ErrMalformedContent
	}
	if len(rest) != 0 {
		return nil, ErrMalformedContent
	}
	return &Unsubscribe{SubscriberIdentifier: id}, nil
}
