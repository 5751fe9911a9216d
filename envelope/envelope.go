// Package envelope implements the binary message frame codec: the
// self-describing wrapper every message on the ledger is stored as,
// independent of its typed content. Adapted from the teacher's
// transport.Packet/NodePacket Serialize/Parse pair, generalized from a
// single-type-byte-plus-blob shape to the engine's fixed multi-field frame.
package envelope

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/opd-ai/tanglestream/address"
)

// ErrMalformedFrame is returned on any length mismatch or unknown version
// while parsing a frame.
var ErrMalformedFrame = errors.New("envelope: malformed frame")

// Version is the only wire version this codec understands.
const Version = 1

// AuthTagMAC and AuthTagSignature are the two valid auth_tag lengths:
// a sponge-squeezed MAC for TaggedPacket/Keyload/etc, or an Ed25519
// signature for SignedPacket and Announce.
const (
	AuthTagMAC       = 32
	AuthTagSignature = 64
)

// Frame is the parsed form of the on-wire envelope.
type Frame struct {
	Version             byte
	ContentType         byte
	Channel             address.ChannelID
	PredecessorMsg      address.MsgID
	PublisherIdentifier []byte // tagged identifier bytes, opaque to this package
	Seq                 uint64
	TopicRef            [32]byte // hash of the topic string this message belongs to
	Body                []byte
	AuthTag             []byte // 32 (MAC) or 64 (signature) bytes
}

// Encode serializes f into its binary wire form.
func Encode(f *Frame) ([]byte, error) {
	if f.Version != Version {
		return nil, ErrMalformedFrame
	}
	if len(f.AuthTag) != AuthTagMAC && len(f.AuthTag) != AuthTagSignature {
		return nil, ErrMalformedFrame
	}
	if len(f.PublisherIdentifier) == 0 {
		return nil, ErrMalformedFrame
	}

	buf := make([]byte, 0, 1+1+address.ChannelLen+address.MsgIDLen+4+len(f.PublisherIdentifier)+10+32+4+len(f.Body)+1+len(f.AuthTag))

	buf = append(buf, f.Version, f.ContentType)
	buf = append(buf, f.Channel[:]...)
	buf = append(buf, f.PredecessorMsg[:]...)

	buf = appendLenPrefixed(buf, f.PublisherIdentifier)

	var seqBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(seqBuf[:], f.Seq)
	buf = append(buf, seqBuf[:n]...)

	buf = append(buf, f.TopicRef[:]...)
	buf = appendLenPrefixed(buf, f.Body)

	buf = append(buf, byte(len(f.AuthTag)))
	buf = append(buf, f.AuthTag...)

	return buf, nil
}

// Decode parses a binary frame, failing with ErrMalformedFrame on any
// length mismatch or unrecognized version.
func Decode(data []byte) (*Frame, error) {
	r := &reader{data: data}

	version, ok := r.byte()
	if !ok || version != Version {
		return nil, ErrMalformedFrame
	}
	contentType, ok := r.byte()
	if !ok {
		return nil, ErrMalformedFrame
	}

	var channel address.ChannelID
	if !r.fixed(channel[:]) {
		return nil, ErrMalformedFrame
	}
	var pred address.MsgID
	if !r.fixed(pred[:]) {
		return nil, ErrMalformedFrame
	}

	publisher, ok := r.lenPrefixed()
	if !ok || len(publisher) == 0 {
		return nil, ErrMalformedFrame
	}

	seq, ok := r.uvarint()
	if !ok {
		return nil, ErrMalformedFrame
	}

	var topicRef [32]byte
	if !r.fixed(topicRef[:]) {
		return nil, ErrMalformedFrame
	}

	body, ok := r.lenPrefixed()
	if !ok {
		return nil, ErrMalformedFrame
	}

	tagLen, ok := r.byte()
	if !ok || (int(tagLen) != AuthTagMAC && int(tagLen) != AuthTagSignature) {
		return nil, ErrMalformedFrame
	}
	authTag, ok := r.take(int(tagLen))
	if !ok {
		return nil, ErrMalformedFrame
	}

	if !r.exhausted() {
		return nil, ErrMalformedFrame
	}

	return &Frame{
		Version:             version,
		ContentType:         contentType,
		Channel:             channel,
		PredecessorMsg:      pred,
		PublisherIdentifier: publisher,
		Seq:                 seq,
		TopicRef:            topicRef,
		Body:                body,
		AuthTag:             authTag,
	}, nil
}

// EncodeString appends a length-prefixed UTF-8 string, as used by typed
// content bodies that embed topic names.
func EncodeString(buf []byte, s string) []byte {
	return appendLenPrefixed(buf, []byte(s))
}

// DecodeString reads a length-prefixed UTF-8 string, validating it as
// well-formed UTF-8.
func DecodeString(data []byte) (string, []byte, error) {
	r := &reader{data: data}
	b, ok := r.lenPrefixed()
	if !ok {
		return "", nil, ErrMalformedFrame
	}
	if !utf8.Valid(b) {
		return "", nil, ErrMalformedFrame
	}
	return string(b), r.data, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

type reader struct {
	data []byte
}

func (r *reader) exhausted() bool { return len(r.data) == 0 }

func (r *reader) byte() (byte, bool) {
	if len(r.data) < 1 {
		return 0, false
	}
	b := r.data[0]
	r.data = r.data[1:]
	return b, true
}

func (r *reader) fixed(dst []byte) bool {
	if len(r.data) < len(dst) {
		return false
	}
	copy(dst, r.data[:len(dst)])
	r.data = r.data[len(dst):]
	return true
}

func (r *reader) take(n int) ([]byte, bool) {
	if len(r.data) < n {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.data[:n])
	r.data = r.data[n:]
	return out, true
}

func (r *reader) lenPrefixed() ([]byte, bool) {
	if len(r.data) < 4 {
		return nil, false
	}
	n := binary.BigEndian.Uint32(r.data[:4])
	r.data = r.data[4:]
	if uint64(len(r.data)) < uint64(n) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.data[:n])
	r.data = r.data[n:]
	return out, true
}

func (r *reader) uvarint() (uint64, bool) {
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		return 0, false
	}
	r.data = r.data[n:]
	return v, true
}
