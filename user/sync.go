package user

import (
	"context"
	"sort"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/selector"
	"github.com/opd-ai/tanglestream/transport"
)

// Sync fetches every pending message reachable from this user's known
// branch tips and processes them in topological order (a message is only
// applied once its predecessor has been applied). It returns the count of
// newly-processed messages. Grounded on the teacher's messaging.Manager
// retry-with-backoff loop for pending sends, turned inside-out into a
// bounded number of discovery passes over deferred (unknown-predecessor)
// messages: each pass may unblock messages deferred in an earlier pass as
// new tips are discovered, and the loop gives up after Options.MaxSyncPasses
// with no progress, reporting the remainder via OrphanedMessagesError.
func (u *User) Sync(ctx context.Context) (int, error) {
	return u.selectiveSync(ctx, nil)
}

// SelectiveSync is Sync restricted to branches and publishers matching any
// of the given selectors (a union).
func (u *User) SelectiveSync(ctx context.Context, selectors ...selector.Selector) (int, error) {
	return u.selectiveSync(ctx, selectors)
}

// candidate pairs a guessed next-message address with the selector
// metadata (topic, publisher) it was generated for.
type candidate struct {
	addr         address.Address
	topic        string
	publisherKey string
}

func (u *User) selectiveSync(ctx context.Context, selectors []selector.Selector) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.peek = nil // any mutating, non-peek call drops the speculative peek cache

	sel := selector.Union(selectors)

	total := 0
	var orphaned []address.Address
	deferred := map[address.Address]struct{}{}

	for idle := 0; idle < u.opts.MaxSyncPasses; {
		progressed := false

		for _, topic := range u.branches.Topics() {
			candidates := u.candidatesFor(topic, sel)
			if len(candidates) == 0 {
				continue
			}

			indices := make([]transport.Index, len(candidates))
			for i, c := range candidates {
				indices[i] = transport.Index(c.addr.TangleIndex())
			}
			results := make([]transport.Option, 0, len(indices))
			for start := 0; start < len(indices); start += u.opts.GetManyBatchSize {
				end := start + u.opts.GetManyBatchSize
				if end > len(indices) {
					end = len(indices)
				}
				batch, err := u.transport.GetMany(ctx, indices[start:end])
				if err != nil {
					return total, err
				}
				results = append(results, batch...)
			}

			for i, res := range results {
				if !res.Present {
					continue
				}
				addr := candidates[i].addr
				_, err := u.dispatchFrame(ctx, topic, addr, res.Blob)
				if err != nil {
					if _, ok := err.(*UnknownPredecessorError); ok {
						deferred[addr] = struct{}{}
						continue
					}
					return total, err
				}
				delete(deferred, addr)
				total++
				progressed = true
			}
		}

		if progressed {
			idle = 0
		} else {
			idle++
		}
	}

	for addr := range deferred {
		orphaned = append(orphaned, addr)
	}
	if len(orphaned) > 0 {
		sort.Slice(orphaned, func(i, j int) bool { return orphaned[i].String() < orphaned[j].String() })
		return total, &OrphanedMessagesError{Addresses: orphaned}
	}
	return total, nil
}

// candidatesFor implements gen_next_msg_addresses for one topic, filtered
// by sel: for every publisher this user already knows about on topic (from
// branch cursors or the channel's accepted-subscriber set), it guesses the
// address that publisher's next message would occupy if it forked from the
// branch's current tip. Publisher keys are iterated in sorted order so that,
// when two publishers have forked from the same predecessor, candidates are
// generated (and hence fetched and applied) in the spec's fork tie-break
// order: publisher identifier bytes ascending, then sequence ascending.
func (u *User) candidatesFor(topic string, sel selector.Selector) []candidate {
	st, ok := u.branches.Get(topic)
	if !ok {
		return nil
	}

	keys := u.candidatePublisherKeys(topic)
	sort.Strings(keys)

	var out []candidate
	for _, key := range keys {
		c := selector.Candidate{Topic: topic, PublisherKey: key}
		if !sel.Match(c) {
			continue
		}

		seq := uint64(1)
		if cur, ok := st.Cursors[key]; ok {
			seq = cur.Seq + 1
		}
		msgID := address.NewMsgID(st.Tip.Msg, []byte(key), seq)
		out = append(out, candidate{
			addr:         address.Address{Channel: u.channel, Msg: msgID},
			topic:        topic,
			publisherKey: key,
		})
	}
	return out
}

// candidatePublisherKeys returns every identifier key this user has any
// reason to expect might publish on topic: the channel author, everyone
// already accepted as a subscriber, and every publisher holding a cursor on
// topic.
func (u *User) candidatePublisherKeys(topic string) []string {
	authorKey := identity.Key(u.authorID)
	seen := map[string]bool{authorKey: true}
	out := []string{authorKey}
	for key := range u.subscribers {
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	if st, ok := u.branches.Get(topic); ok {
		for key := range st.Cursors {
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}
