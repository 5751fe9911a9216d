package content

import (
	"bytes"
	"testing"
)

func TestAnnounceRoundTrip(t *testing.T) {
	a := &Announce{AuthorIdentifier: []byte{0x01, 0xAA}, Mode: ModeMultiBranch, RootTopic: "weather"}
	got, err := DecodeAnnounce(a.Encode())
	if err != nil {
		t.Fatalf("DecodeAnnounce() error: %v", err)
	}
	if got.RootTopic != a.RootTopic || got.Mode != a.Mode || !bytes.Equal(got.AuthorIdentifier, a.AuthorIdentifier) {
		t.Errorf("DecodeAnnounce() = %+v, want %+v", got, a)
	}
}

func TestAnnounceRejectsEmptyAuthor(t *testing.T) {
	if _, err := DecodeAnnounce((&Announce{RootTopic: "x"}).Encode()); err != ErrMalformedContent {
		t.Errorf("DecodeAnnounce() error = %v, want ErrMalformedContent", err)
	}
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	s := &Subscribe{SubscriberIdentifier: []byte{0x01, 0x02}, SealedEphemeralKey: []byte("sealed")}
	got, err := DecodeSubscribe(s.Encode())
	if err != nil {
		t.Fatalf("DecodeSubscribe() error: %v", err)
	}
	if !bytes.Equal(got.SealedEphemeralKey, s.SealedEphemeralKey) {
		t.Errorf("DecodeSubscribe() mismatch")
	}

	u := &Unsubscribe{SubscriberIdentifier: []byte{0x01, 0x02}}
	gotU, err := DecodeUnsubscribe(u.Encode())
	if err != nil {
		t.Fatalf("DecodeUnsubscribe() error: %v", err)
	}
	if !bytes.Equal(gotU.SubscriberIdentifier, u.SubscriberIdentifier) {
		t.Errorf("DecodeUnsubscribe() mismatch")
	}
}

func TestKeyloadRoundTrip(t *testing.T) {
	k := &Keyload{
		Topic: "dept/eng",
		ACL: []ACLEntry{
			{Identifier: []byte{0x01}, Level: LevelAdmin},
			{Identifier: []byte{0x02}, Level: LevelReadWrite},
		},
		WrappedKeys: []WrappedKey{
			{RecipientIdentifier: []byte{0x01}, Wrapped: []byte("key-for-1")},
			{RecipientIdentifier: []byte{0x02}, Wrapped: []byte("key-for-2")},
		},
		KeyloadNonce: [24]byte{1, 2, 3},
	}
	got, err := DecodeKeyload(k.Encode())
	if err != nil {
		t.Fatalf("DecodeKeyload() error: %v", err)
	}
	if got.Topic != k.Topic || len(got.ACL) != 2 || len(got.WrappedKeys) != 2 {
		t.Fatalf("DecodeKeyload() = %+v, want %+v", got, k)
	}
	if got.ACL[1].Level != LevelReadWrite {
		t.Errorf("DecodeKeyload() ACL[1].Level = %v, want %v", got.ACL[1].Level, LevelReadWrite)
	}
	if got.KeyloadNonce != k.KeyloadNonce {
		t.Errorf("DecodeKeyload() nonce mismatch")
	}
}

func TestSignedAndTaggedPacketRoundTrip(t *testing.T) {
	sp := &SignedPacket{PublicPayload: []byte("pub"), MaskedPayload: []byte("masked")}
	gotSP, err := DecodeSignedPacket(sp.Encode())
	if err != nil {
		t.Fatalf("DecodeSignedPacket() error: %v", err)
	}
	if !bytes.Equal(gotSP.MaskedPayload, sp.MaskedPayload) {
		t.Errorf("DecodeSignedPacket() mismatch")
	}

	tp := &TaggedPacket{PublicPayload: []byte("pub"), MaskedPayload: []byte("masked")}
	gotTP, err := DecodeTaggedPacket(tp.Encode())
	if err != nil {
		t.Fatalf("DecodeTaggedPacket() error: %v", err)
	}
	if !bytes.Equal(gotTP.PublicPayload, tp.PublicPayload) {
		t.Errorf("DecodeTaggedPacket() mismatch")
	}
}

func TestBranchAnnouncementRoundTrip(t *testing.T) {
	b := &BranchAnnouncement{
		ParentTopic: "dept",
		NewTopic:    "dept/eng",
		InitialKeyload: Keyload{
			Topic: "dept/eng",
			ACL:   []ACLEntry{{Identifier: []byte{0x09}, Level: LevelReadWrite}},
		},
	}
	got, err := DecodeBranchAnnouncement(b.Encode())
	if err != nil {
		t.Fatalf("DecodeBranchAnnouncement() error: %v", err)
	}
	if got.ParentTopic != b.ParentTopic || got.NewTopic != b.NewTopic {
		t.Errorf("DecodeBranchAnnouncement() = %+v, want %+v", got, b)
	}
	if len(got.InitialKeyload.ACL) != 1 {
		t.Errorf("DecodeBranchAnnouncement() keyload ACL length = %d, want 1", len(got.InitialKeyload.ACL))
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	s := &Sequence{
		Topic:         "chat/room1",
		ParentTopic:   "chat",
		TargetChannel: [40]byte{1, 2, 3},
		TargetMsg:     [12]byte{4, 5, 6},
	}
	got, err := DecodeSequence(s.Encode())
	if err != nil {
		t.Fatalf("DecodeSequence() error: %v", err)
	}
	if got.Topic != s.Topic || got.ParentTopic != s.ParentTopic {
		t.Errorf("DecodeSequence() topic fields = %+v, want %+v", got, s)
	}
	if got.TargetChannel != s.TargetChannel || got.TargetMsg != s.TargetMsg {
		t.Errorf("DecodeSequence() = %+v, want %+v", got, s)
	}
}

func TestDecodeSequenceRejectsWrongLength(t *testing.T) {
	if _, err := DecodeSequence([]byte{1, 2, 3}); err != ErrMalformedContent {
		t.Errorf("DecodeSequence() error = %v, want ErrMalformedContent", err)
	}
}
