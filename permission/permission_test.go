package permission

import (
	"testing"

	"github.com/opd-ai/tanglestream/content"
)

func TestAuthorIsAlwaysAdmin(t *testing.T) {
	s := NewState("author")
	lvl, err := s.Effective("author", "anything")
	if err != nil {
		t.Fatalf("Effective() error: %v", err)
	}
	if lvl != content.LevelAdmin {
		t.Errorf("Effective() = %v, want Admin", lvl)
	}
}

func TestEffectiveFallsBackToParent(t *testing.T) {
	s := NewState("author")
	s.SetParent("dept/eng", "dept")
	s.Apply("dept", []content.ACLEntry{{Identifier: []byte("alice"), Level: content.LevelReadWrite}})

	lvl, err := s.Effective("alice", "dept/eng")
	if err != nil {
		t.Fatalf("Effective() error: %v", err)
	}
	if lvl != content.LevelReadWrite {
		t.Errorf("Effective() = %v, want ReadWrite", lvl)
	}
}

func TestEffectiveUnmatchedReturnsNotFound(t *testing.T) {
	s := NewState("author")
	s.Apply("weather", []content.ACLEntry{{Identifier: []byte("alice"), Level: content.LevelReadOnly}})

	if _, err := s.Effective("mallory", "weather"); err != ErrNotFound {
		t.Errorf("Effective() error = %v, want ErrNotFound", err)
	}
}

func TestHighestMatchPicksBestLevel(t *testing.T) {
	s := NewState("author")
	s.Apply("secrets", []content.ACLEntry{
		{Identifier: []byte("alice"), Level: content.LevelReadOnly},
		{Identifier: []byte("alice"), Level: content.LevelAdmin},
	})
	lvl, err := s.Effective("alice", "secrets")
	if err != nil {
		t.Fatalf("Effective() error: %v", err)
	}
	if lvl != content.LevelAdmin {
		t.Errorf("Effective() = %v, want Admin", lvl)
	}
}

func TestMayWriteAndMayAdmin(t *testing.T) {
	s := NewState("author")
	s.Apply("secrets", []content.ACLEntry{{Identifier: []byte("alice"), Level: content.LevelReadWrite}})

	if !s.MayWrite("alice", "secrets") {
		t.Error("MayWrite() = false, want true")
	}
	if s.MayAdmin("alice", "secrets") {
		t.Error("MayAdmin() = true, want false")
	}
	if s.MayWrite("mallory", "secrets") {
		t.Error("MayWrite() for unlisted subscriber = true, want false")
	}
}

func TestValidateKeyloadIssuerRequiresAcceptedRecipients(t *testing.T) {
	s := NewState("author")
	s.Apply("dept", []content.ACLEntry{{Identifier: []byte("alice"), Level: content.LevelAdmin}})
	s.Accept("alice")
	s.Accept("bob")

	if err := s.ValidateKeyloadIssuer("alice", "dept", []string{"bob"}); err != nil {
		t.Errorf("ValidateKeyloadIssuer() error: %v", err)
	}
	if err := s.ValidateKeyloadIssuer("alice", "dept", []string{"mallory"}); err != ErrPermissionDenied {
		t.Errorf("ValidateKeyloadIssuer() error = %v, want ErrPermissionDenied", err)
	}
	if err := s.ValidateKeyloadIssuer("bob", "dept", []string{"alice"}); err != ErrPermissionDenied {
		t.Errorf("ValidateKeyloadIssuer() non-admin error = %v, want ErrPermissionDenied", err)
	}
}
