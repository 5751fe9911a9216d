// Package branch implements the in-memory topic → branch state map: the
// sponge state at each branch's latest message, its current symmetric
// content key, and every publisher's cursor within it. Grounded on the
// teacher's dht.RoutingTable (a mutex-guarded map keyed by node id, with
// enumeration helpers like FindClosestNodes), generalized here from DHT
// nodes keyed by XOR distance to channel topics keyed by string identity.
package branch

import (
	"errors"
	"sort"
	"sync"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/spongos"
)

// ErrUnknownTopic is returned by operations that require an existing
// branch record.
var ErrUnknownTopic = errors.New("branch: unknown topic")

// Cursor is one publisher's recorded tip within a branch.
type Cursor struct {
	Address address.Address
	Seq     uint64
}

// State holds everything the store tracks about one topic.
type State struct {
	ParentTopic         string
	SpongeAtLatest      *spongos.State
	CurrentSymmetricKey [32]byte
	Cursors             map[string]Cursor // keyed by the publisher identifier's identity.Key
	// Tip is the address of the most recently processed message on this
	// branch, regardless of publisher: the predecessor a new outbound
	// message on this topic attaches to. Seeded to the branch-establishing
	// message's address (Announce for the root branch, BranchAnnouncement
	// for any other) at Init, then advanced by every Record call.
	Tip address.Address
	// Chains maps a message id to the sponge state a message naming it as
	// predecessor must fork from. Keeping every processed message's
	// resulting state (not just the latest Tip's) is what makes forks
	// (spec §4.G "Tie-breaks": two writers publishing from the same
	// predecessor) resolvable: both fork messages name the same,
	// possibly no-longer-Tip predecessor, and each must still find the
	// right state to continue from.
	Chains map[address.MsgID]*spongos.State
}

// Store is the topic → branch state map. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	branches map[string]*State
}

// NewStore creates an empty branch store.
func NewStore() *Store {
	return &Store{branches: make(map[string]*State)}
}

// Init creates a new branch record for topic if one does not already
// exist, seeded with the given sponge state and parent topic ("" for the
// root branch). rootAddr is the address of the message that established
// the branch (Announce or BranchAnnouncement); it seeds Tip so the first
// outbound or inbound message on the branch has a predecessor to attach to.
func (s *Store) Init(topic, parentTopic string, sponge *spongos.State, rootAddr address.Address) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.branches[topic]; ok {
		return existing
	}
	st := &State{
		ParentTopic:    parentTopic,
		SpongeAtLatest: sponge,
		Cursors:        make(map[string]Cursor),
		Tip:            rootAddr,
		Chains:         map[address.MsgID]*spongos.State{rootAddr.Msg: sponge},
	}
	s.branches[topic] = st
	return st
}

// Get returns the branch state for topic, if it exists.
func (s *Store) Get(topic string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.branches[topic]
	return st, ok
}

// SetKey updates a branch's current symmetric content key, as set by a
// Keyload.
func (s *Store) SetKey(topic string, key [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.branches[topic]
	if !ok {
		return ErrUnknownTopic
	}
	st.CurrentSymmetricKey = key
	return nil
}

// Record updates a publisher's cursor on topic after a message passes
// verification. publisherKey is the publisher identifier's canonical
// string form.
func (s *Store) Record(publisherKey, topic string, seq uint64, addr address.Address, sponge *spongos.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.branches[topic]
	if !ok {
		return ErrUnknownTopic
	}
	st.Cursors[publisherKey] = Cursor{Address: addr, Seq: seq}
	st.SpongeAtLatest = sponge
	st.Tip = addr
	st.Chains[addr.Msg] = sponge
	return nil
}

// ChainAt returns the sponge state a message naming predecessor as its
// predecessor must fork from, and whether predecessor is known on topic.
func (s *Store) ChainAt(topic string, predecessor address.MsgID) (*spongos.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.branches[topic]
	if !ok {
		return nil, false
	}
	state, ok := st.Chains[predecessor]
	return state, ok
}

// Cursor returns a publisher's recorded tip on topic.
func (s *Store) Cursor(publisherKey, topic string) (Cursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.branches[topic]
	if !ok {
		return Cursor{}, false
	}
	c, ok := st.Cursors[publisherKey]
	return c, ok
}

// Tips returns the latest known address for every (publisher, branch)
// pair across the whole store, sorted by topic then publisher for
// deterministic iteration.
func (s *Store) Tips() []TipEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TipEntry
	for topic, st := range s.branches {
		for pub, cur := range st.Cursors {
			out = append(out, TipEntry{Topic: topic, PublisherKey: pub, Cursor: cur})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].PublisherKey < out[j].PublisherKey
	})
	return out
}

// TipEntry is one row of Tips' output.
type TipEntry struct {
	Topic        string
	PublisherKey string
	Cursor       Cursor
}

// Snapshot is one branch's exported state, used by snapshot backup/restore.
// It carries only the sponge state at the branch's latest message, not the
// full per-message Chains history: a restored user can keep advancing the
// chain forward from Tip, but loses the ability to resolve forks or walk
// fetch_prev_msg past the point the snapshot was taken.
type Snapshot struct {
	Topic         string
	ParentTopic   string
	SpongeChain   [32]byte
	SpongeCounter uint64
	Key           [32]byte
	Tip           address.Address
	Cursors       map[string]Cursor
}

// Export returns a Snapshot of every branch this store tracks.
func (s *Store) Export() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.branches))
	for topic, st := range s.branches {
		chain, counter := st.SpongeAtLatest.Export()
		cursors := make(map[string]Cursor, len(st.Cursors))
		for k, v := range st.Cursors {
			cursors[k] = v
		}
		out = append(out, Snapshot{
			Topic:         topic,
			ParentTopic:   st.ParentTopic,
			SpongeChain:   chain,
			SpongeCounter: counter,
			Key:           st.CurrentSymmetricKey,
			Tip:           st.Tip,
			Cursors:       cursors,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Import rebuilds a store from Snapshots previously produced by Export.
func Import(snaps []Snapshot) *Store {
	s := NewStore()
	for _, snap := range snaps {
		chain := spongos.Import(snap.SpongeChain, snap.SpongeCounter)
		st := &State{
			ParentTopic:         snap.ParentTopic,
			SpongeAtLatest:      chain,
			CurrentSymmetricKey: snap.Key,
			Cursors:             make(map[string]Cursor, len(snap.Cursors)),
			Tip:                 snap.Tip,
			Chains:              map[address.MsgID]*spongos.State{snap.Tip.Msg: chain},
		}
		for k, v := range snap.Cursors {
			st.Cursors[k] = v
		}
		s.branches[snap.Topic] = st
	}
	return s
}

// Topics returns every known topic, sorted.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.branches))
	for topic := range s.branches {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
