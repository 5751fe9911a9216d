// Package selector implements lazy message-address enumeration filtered
// by topic, publisher identifier, or topic-and-descendants: the hook
// selective_sync uses to restrict replay to a subset of a channel.
// Grounded on the teacher's dht.RoutingTable.FindClosestNodes (a lazy
// candidate generation step followed by a filter predicate), generalized
// from XOR-distance-over-node-ids to topic/identifier matching over
// branch cursors.
package selector

import "strings"

// Candidate is one address a branch store's frontier can currently
// advance to: the next unseen message for one (publisher, topic) pair.
type Candidate struct {
	Topic        string
	PublisherKey string
}

// Selector reports whether it accepts a given candidate.
type Selector interface {
	Match(c Candidate) bool
}

// Topic matches messages on exactly one topic.
type Topic string

func (t Topic) Match(c Candidate) bool { return c.Topic == string(t) }

// Identifier matches messages from exactly one publisher, regardless of
// topic.
type Identifier string

func (i Identifier) Match(c Candidate) bool { return c.PublisherKey == string(i) }

// Ancestor matches a topic and every descendant topic ("dept" matches
// "dept" and "dept/eng", but not "department").
type Ancestor string

func (a Ancestor) Match(c Candidate) bool {
	root := string(a)
	if c.Topic == root {
		return true
	}
	return strings.HasPrefix(c.Topic, root+"/")
}

// Union composes selectors: a candidate matches if any member selector
// matches. An empty Union matches everything — selective_sync with no
// selectors behaves as a full sync.
type Union []Selector

func (u Union) Match(c Candidate) bool {
	if len(u) == 0 {
		return true
	}
	for _, s := range u {
		if s.Match(c) {
			return true
		}
	}
	return false
}

// Filter returns the subset of candidates matching sel, preserving
// order — the order Candidates already come in from gen_next_msg_addresses
// is the topological order the caller must preserve.
func Filter(candidates []Candidate, sel Selector) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if sel.Match(c) {
			out = append(out, c)
		}
	}
	return out
}
