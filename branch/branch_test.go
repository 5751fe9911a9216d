package branch

import (
	"testing"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/spongos"
)

func TestInitIsIdempotent(t *testing.T) {
	s := NewStore()
	st1 := s.Init("weather", "", spongos.New([]byte("seed")), address.Address{})
	st2 := s.Init("weather", "", spongos.New([]byte("other-seed")), address.Address{})
	if st1 != st2 {
		t.Error("Init() created a second record for an existing topic")
	}
}

func TestRecordAndCursor(t *testing.T) {
	s := NewStore()
	s.Init("weather", "", spongos.New([]byte("seed")), address.Address{})

	addr := address.Address{}
	if err := s.Record("author-key", "weather", 1, addr, spongos.New([]byte("s2"))); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	c, ok := s.Cursor("author-key", "weather")
	if !ok {
		t.Fatal("Cursor() not found after Record()")
	}
	if c.Seq != 1 {
		t.Errorf("Cursor().Seq = %d, want 1", c.Seq)
	}
}

func TestRecordRejectsUnknownTopic(t *testing.T) {
	s := NewStore()
	if err := s.Record("pub", "nonexistent", 1, address.Address{}, nil); err != ErrUnknownTopic {
		t.Errorf("Record() error = %v, want ErrUnknownTopic", err)
	}
}

func TestTipsSortedDeterministically(t *testing.T) {
	s := NewStore()
	s.Init("b", "", spongos.New([]byte("1")), address.Address{})
	s.Init("a", "", spongos.New([]byte("2")), address.Address{})
	s.Record("pub2", "b", 1, address.Address{}, nil)
	s.Record("pub1", "a", 1, address.Address{}, nil)

	tips := s.Tips()
	if len(tips) != 2 {
		t.Fatalf("Tips() len = %d, want 2", len(tips))
	}
	if tips[0].Topic != "a" || tips[1].Topic != "b" {
		t.Errorf("Tips() not sorted by topic: %+v", tips)
	}
}

func TestSetKeyRequiresExistingBranch(t *testing.T) {
	s := NewStore()
	if err := s.SetKey("missing", [32]byte{}); err != ErrUnknownTopic {
		t.Errorf("SetKey() error = %v, want ErrUnknownTopic", err)
	}
}
