// Package content implements the typed message payloads carried inside an
// envelope body: Announce, Subscribe, Unsubscribe, Keyload, SignedPacket,
// TaggedPacket, BranchAnnouncement and Sequence. Grounded on the teacher's
// transport.PacketType enum (one byte tag organizing many message kinds)
// and messaging.Message (delivery-relevant payload shape), generalized
// from a flat chat message to this engine's typed administrative and data
// payloads.
package content

import (
	"encoding/binary"
	"errors"

	"github.com/opd-ai/tanglestream/envelope"
)

// ErrMalformedContent is returned when a typed body cannot be parsed from
// its envelope.Frame.Body bytes.
var ErrMalformedContent = errors.New("content: malformed body")

// Type identifies which typed payload a frame's body holds. It is stored
// in envelope.Frame.ContentType.
type Type byte

const (
	TypeAnnounce Type = iota + 1
	TypeSubscribe
	TypeUnsubscribe
	TypeKeyload
	TypeSignedPacket
	TypeTaggedPacket
	TypeBranchAnnouncement
	TypeSequence
)

func (t Type) String() string {
	switch t {
	case TypeAnnounce:
		return "Announce"
	case TypeSubscribe:
		return "Subscribe"
	case TypeUnsubscribe:
		return "Unsubscribe"
	case TypeKeyload:
		return "Keyload"
	case TypeSignedPacket:
		return "SignedPacket"
	case TypeTaggedPacket:
		return "TaggedPacket"
	case TypeBranchAnnouncement:
		return "BranchAnnouncement"
	case TypeSequence:
		return "Sequence"
	default:
		return "Unknown"
	}
}

// ChannelMode describes how many branches a channel is expected to carry,
// declared once at Announce time.
type ChannelMode byte

const (
	ModeSingleBranch ChannelMode = iota
	ModeSingleDepth
	ModeMultiBranch
)

// Level is a subscriber's effective access level on a branch.
type Level byte

const (
	LevelReadOnly Level = iota
	LevelReadWrite
	LevelAdmin
)

func appendBytes(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readBytes(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, ErrMalformedContent
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, ErrMalformedContent
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

func appendString(buf []byte, s string) []byte {
	return envelope.EncodeString(buf, s)
}

func readString(data []byte) (string, []byte, error) {
	s, rest, err := envelope.DecodeString(data)
	if err != nil {
		return "", nil, ErrMalformedContent
	}
	return s, rest, nil
}
