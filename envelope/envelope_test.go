package envelope

import (
	"bytes"
	"testing"

	"github.com/opd-ai/tanglestream/address"
)

func sampleFrame(authTagLen int) *Frame {
	var channel address.ChannelID
	for i := range channel {
		channel[i] = byte(i)
	}
	var pred address.MsgID
	for i := range pred {
		pred[i] = byte(i + 1)
	}
	var topicRef [32]byte
	for i := range topicRef {
		topicRef[i] = byte(i + 2)
	}
	return &Frame{
		Version:             Version,
		ContentType:         7,
		Channel:             channel,
		PredecessorMsg:      pred,
		PublisherIdentifier: []byte{0x01, 0xAA, 0xBB, 0xCC},
		Seq:                 42,
		TopicRef:            topicRef,
		Body:                []byte("hello world"),
		AuthTag:             bytes.Repeat([]byte{0xEE}, authTagLen),
	}
}

func TestEncodeDecodeRoundTripMAC(t *testing.T) {
	f := sampleFrame(AuthTagMAC)
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.ContentType != f.ContentType || got.Seq != f.Seq {
		t.Errorf("Decode() = %+v, want %+v", got, f)
	}
	if !bytes.Equal(got.Body, f.Body) {
		t.Errorf("Decode() body = %q, want %q", got.Body, f.Body)
	}
	if !bytes.Equal(got.AuthTag, f.AuthTag) {
		t.Errorf("Decode() auth tag mismatch")
	}
	if !bytes.Equal(got.PublisherIdentifier, f.PublisherIdentifier) {
		t.Errorf("Decode() publisher mismatch")
	}
}

func TestEncodeDecodeRoundTripSignature(t *testing.T) {
	f := sampleFrame(AuthTagSignature)
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(got.AuthTag) != AuthTagSignature {
		t.Errorf("Decode() auth tag len = %d, want %d", len(got.AuthTag), AuthTagSignature)
	}
}

func TestEncodeRejectsBadVersion(t *testing.T) {
	f := sampleFrame(AuthTagMAC)
	f.Version = 2
	if _, err := Encode(f); err != ErrMalformedFrame {
		t.Errorf("Encode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestEncodeRejectsBadAuthTagLength(t *testing.T) {
	f := sampleFrame(10)
	if _, err := Encode(f); err != ErrMalformedFrame {
		t.Errorf("Encode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	f := sampleFrame(AuthTagMAC)
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	data[0] = 99
	if _, err := Decode(data); err != ErrMalformedFrame {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	f := sampleFrame(AuthTagMAC)
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if _, err := Decode(data[:len(data)-5]); err != ErrMalformedFrame {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeRejectsTrailingGarbage(t *testing.T) {
	f := sampleFrame(AuthTagMAC)
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	data = append(data, 0xFF)
	if _, err := Decode(data); err != ErrMalformedFrame {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestEncodeStringDecodeStringRoundTrip(t *testing.T) {
	buf := EncodeString(nil, "weather")
	buf = EncodeString(buf, "dept/eng")

	s1, rest, err := DecodeString(buf)
	if err != nil {
		t.Fatalf("DecodeString() error: %v", err)
	}
	if s1 != "weather" {
		t.Errorf("DecodeString() = %q, want %q", s1, "weather")
	}

	s2, rest, err := DecodeString(rest)
	if err != nil {
		t.Fatalf("DecodeString() error: %v", err)
	}
	if s2 != "dept/eng" {
		t.Errorf("DecodeString() = %q, want %q", s2, "dept/eng")
	}
	if len(rest) != 0 {
		t.Errorf("DecodeString() leftover = %d bytes, want 0", len(rest))
	}
}
