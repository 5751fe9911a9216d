package selector

import "testing"

func TestTopicMatch(t *testing.T) {
	s := Topic("weather")
	if !s.Match(Candidate{Topic: "weather"}) {
		t.Error("Topic.Match() = false for exact topic, want true")
	}
	if s.Match(Candidate{Topic: "weather/forecast"}) {
		t.Error("Topic.Match() = true for a different topic, want false")
	}
}

func TestIdentifierMatch(t *testing.T) {
	s := Identifier("alice")
	if !s.Match(Candidate{PublisherKey: "alice", Topic: "anything"}) {
		t.Error("Identifier.Match() = false, want true")
	}
	if s.Match(Candidate{PublisherKey: "bob"}) {
		t.Error("Identifier.Match() = true for a different publisher, want false")
	}
}

func TestAncestorMatchesSelfAndDescendants(t *testing.T) {
	s := Ancestor("dept")
	cases := []struct {
		topic string
		want  bool
	}{
		{"dept", true},
		{"dept/eng", true},
		{"dept/eng/backend", true},
		{"department", false},
		{"other", false},
	}
	for _, tc := range cases {
		if got := s.Match(Candidate{Topic: tc.topic}); got != tc.want {
			t.Errorf("Ancestor.Match(%q) = %v, want %v", tc.topic, got, tc.want)
		}
	}
}

func TestUnionMatchesAnyMember(t *testing.T) {
	u := Union{Topic("weather"), Identifier("alice")}
	if !u.Match(Candidate{Topic: "weather"}) {
		t.Error("Union.Match() by topic = false, want true")
	}
	if !u.Match(Candidate{PublisherKey: "alice"}) {
		t.Error("Union.Match() by identifier = false, want true")
	}
	if u.Match(Candidate{Topic: "other", PublisherKey: "bob"}) {
		t.Error("Union.Match() for unrelated candidate = true, want false")
	}
}

func TestEmptyUnionMatchesEverything(t *testing.T) {
	var u Union
	if !u.Match(Candidate{Topic: "anything"}) {
		t.Error("empty Union.Match() = false, want true")
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	candidates := []Candidate{
		{Topic: "a", PublisherKey: "p1"},
		{Topic: "b", PublisherKey: "p2"},
		{Topic: "a", PublisherKey: "p3"},
	}
	got := Filter(candidates, Topic("a"))
	if len(got) != 2 {
		t.Fatalf("Filter() len = %d, want 2", len(got))
	}
	if got[0].PublisherKey != "p1" || got[1].PublisherKey != "p3" {
		t.Errorf("Filter() order = %+v, want p1 then p3", got)
	}
}
