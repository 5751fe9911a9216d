package user

import (
	"context"
	"fmt"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/envelope"
	"github.com/opd-ai/tanglestream/selector"
	"github.com/opd-ai/tanglestream/transport"
)

// peekState caches the result of the most recent Peek call so a repeated
// Peek(n) with the same n is idempotent (spec §8 property 6) and so Skip
// and FetchNextMsg(s) can consume already-interpreted messages instead of
// re-fetching and re-decoding them. Any mutating, non-peek call on User
// (Sync, SelectiveSync, Message()...Send, Permissions()...Apply, ...)
// drops this cache by setting u.peek = nil.
type peekState struct {
	n       int
	entries []*peekEntry
}

type peekEntry struct {
	topic string
	addr  address.Address
	res   *interpreted
}

// Peek returns up to n not-yet-applied upcoming messages across every
// branch this user tracks, in the same deterministic order Sync would
// apply them in, without advancing any cursor or committing any chain
// state. Calling Peek again with the same n before any other mutating call
// returns the identical result (spec §8 property 6).
func (u *User) Peek(ctx context.Context, n int) ([]*Message, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	entries, err := u.peekEntries(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]*Message, len(entries))
	for i, e := range entries {
		out[i] = e.res.msg
	}
	return out, nil
}

// peekEntries returns the entries backing the most recent Peek(n),
// recomputing and caching them if u.peek does not already hold a result
// for this exact n.
func (u *User) peekEntries(ctx context.Context, n int) ([]*peekEntry, error) {
	if u.peek != nil && u.peek.n == n {
		return u.peek.entries, nil
	}

	var entries []*peekEntry
	sel := selector.Union(nil)
	for _, topic := range u.branches.Topics() {
		if len(entries) >= n {
			break
		}
		cands := u.candidatesFor(topic, sel)
		if len(cands) == 0 {
			continue
		}
		indices := make([]transport.Index, len(cands))
		for i, c := range cands {
			indices[i] = transport.Index(c.addr.TangleIndex())
		}
		results, err := u.transport.GetMany(ctx, indices)
		if err != nil {
			return nil, err
		}
		for i, res := range results {
			if !res.Present || len(entries) >= n {
				continue
			}
			interp, err := u.interpretFrame(topic, cands[i].addr, res.Blob)
			if err != nil {
				if _, ok := err.(*UnknownPredecessorError); ok {
					continue
				}
				return nil, err
			}
			entries = append(entries, &peekEntry{topic: topic, addr: cands[i].addr, res: interp})
		}
	}

	u.peek = &peekState{n: n, entries: entries}
	return entries, nil
}

// Skip applies every message returned by the most recent Peek call, in the
// same order Sync would apply them, advancing cursors and committing chain
// state without the caller needing to re-fetch messages it already
// inspected via Peek. Returns ErrNoPeekedMessages if called with nothing
// outstanding from a prior Peek — Skip only ever consumes a Peek's result,
// it never performs its own discovery.
func (u *User) Skip(ctx context.Context) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.peek == nil || len(u.peek.entries) == 0 {
		return 0, ErrNoPeekedMessages
	}
	entries := u.peek.entries
	u.peek = nil
	for _, e := range entries {
		u.applyInterpreted(ctx, e.topic, e.addr, e.res)
	}
	return len(entries), nil
}

// FetchNextMsg advances exactly one message past this user's current
// frontier and returns it, or (nil, nil) if nothing new is available yet.
func (u *User) FetchNextMsg(ctx context.Context) (*Message, error) {
	msgs, err := u.FetchNextMsgs(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}

// FetchNextMsgs advances up to n messages past this user's current
// frontier, applying each one (cursors and chain state advance) and
// returning them in the order applied. Per spec §8 property 6, peek(n)
// followed by skip(n) is equivalent to fetch_next_msgs(n): both route
// through peekEntries/applyInterpreted.
func (u *User) FetchNextMsgs(ctx context.Context, n int) ([]*Message, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	entries, err := u.peekEntries(ctx, n)
	if err != nil {
		return nil, err
	}
	u.peek = nil
	out := make([]*Message, len(entries))
	for i, e := range entries {
		u.applyInterpreted(ctx, e.topic, e.addr, e.res)
		out[i] = e.res.msg
	}
	return out, nil
}

// FetchPrevMsg fetches and re-interprets the message immediately preceding
// addr on its branch, returning (nil, nil) if addr names a branch's
// genesis message (Announce or BranchAnnouncement). It does not mutate
// cursors or chain state — it is a historical read, not an advance of the
// frontier — and so works for any address this user has ever processed,
// not only the current tip.
func (u *User) FetchPrevMsg(ctx context.Context, addr address.Address) (*Message, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fetchPrevMsgLocked(ctx, addr)
}

func (u *User) fetchPrevMsgLocked(ctx context.Context, addr address.Address) (*Message, error) {
	topic, ok := u.msgTopic[addr.Msg]
	if !ok {
		return nil, fmt.Errorf("user: %w: address not recognized by this user", ErrInvariantViolation)
	}

	blob, err := u.transport.Get(ctx, transport.Index(addr.TangleIndex()))
	if err != nil {
		return nil, err
	}
	frame, err := envelope.Decode(blob)
	if err != nil {
		return nil, err
	}
	if frame.PredecessorMsg == address.ZeroMsgID {
		return nil, nil
	}

	predAddr := address.Address{Channel: u.channel, Msg: frame.PredecessorMsg}
	predBlob, err := u.transport.Get(ctx, transport.Index(predAddr.TangleIndex()))
	if err != nil {
		return nil, err
	}
	res, err := u.interpretFrame(topic, predAddr, predBlob)
	if err != nil {
		return nil, err
	}
	u.msgTopic[predAddr.Msg] = topic
	return res.msg, nil
}

// FetchPrevMsgs walks backward from addr, returning up to n messages in
// nearest-predecessor-first order. It stops early (without error) if it
// reaches a branch's genesis message before collecting n.
func (u *User) FetchPrevMsgs(ctx context.Context, addr address.Address, n int) ([]*Message, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var out []*Message
	cur := addr
	for i := 0; i < n; i++ {
		msg, err := u.fetchPrevMsgLocked(ctx, cur)
		if err != nil {
			return out, err
		}
		if msg == nil {
			break
		}
		out = append(out, msg)
		cur = msg.Address
	}
	return out, nil
}
