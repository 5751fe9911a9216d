package user

import (
	"context"
	"fmt"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/branch"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/envelope"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/spongos"
	"github.com/opd-ai/tanglestream/transport"
)

// outbound is the shared shape every publish operation (Subscribe,
// Unsubscribe, Keyload, BranchAnnouncement, Sequence, SignedPacket,
// TaggedPacket) reduces to: build a body against the branch's forked
// sponge state, seal the frame, commit the fork as the branch's next
// chain link, and advance this publisher's cursor. Announce is the one
// exception (CreateChannel seals it directly: there is no existing
// branch to fork from).
//
// bodyFn receives the per-message forked sponge state so a packet's
// masked payload can be encrypted with it before the frame (and its auth
// tag, which covers the already-built body) is assembled. postSign runs
// after the auth tag is computed but before fork.Commit, letting a
// Keyload additionally absorb its new branch key so only recipients who
// recover that key stay synchronized with the chain afterward.
func (u *User) outbound(ctx context.Context, topic string, ct content.Type, useSignature bool, bodyFn func(fork *spongos.State) []byte, postSign func(fork *spongos.State)) (address.Address, error) {
	u.peek = nil // any mutating call drops the speculative peek cache

	st, ok := u.branches.Get(topic)
	if !ok {
		return address.Address{}, ErrNoSuchBranch
	}

	predAddr := st.Tip
	chain, ok := u.branches.ChainAt(topic, predAddr.Msg)
	if !ok {
		return address.Address{}, fmt.Errorf("user: %w: no chain state for branch tip", ErrInvariantViolation)
	}
	fork := chain.Fork()

	pubBytes := identity.EncodeIdentifier(u.myIdentifier())
	cur, _ := u.branches.Cursor(u.myKey(), topic)
	seq := cur.Seq + 1

	body := bodyFn(fork)

	msgID := address.NewMsgID(predAddr.Msg, pubBytes, seq)
	addr := address.Address{Channel: u.channel, Msg: msgID}

	tagLen := envelope.AuthTagMAC
	if useSignature {
		tagLen = envelope.AuthTagSignature
	}

	frame := &envelope.Frame{
		Version:             envelope.Version,
		ContentType:         byte(ct),
		Channel:             u.channel,
		PredecessorMsg:      predAddr.Msg,
		PublisherIdentifier: pubBytes,
		Seq:                 seq,
		TopicRef:            topicRef(topic),
		Body:                body,
	}

	signable, err := framePrefix(frame, tagLen)
	if err != nil {
		return address.Address{}, err
	}

	var tag []byte
	if useSignature {
		tag, err = u.identity.Sign(signable)
		if err != nil {
			return address.Address{}, fmt.Errorf("user: signing message: %w", err)
		}
	} else {
		fork.Absorb(signable)
		mac := fork.Squeeze32()
		tag = mac[:]
	}
	frame.AuthTag = tag

	if postSign != nil {
		postSign(fork)
	}

	blob, err := envelope.Encode(frame)
	if err != nil {
		return address.Address{}, err
	}
	if err := u.transport.Put(ctx, transport.Index(addr.TangleIndex()), blob); err != nil {
		return address.Address{}, err
	}

	fork.Commit()
	if err := u.branches.Record(u.myKey(), topic, seq, addr, fork); err != nil {
		return address.Address{}, err
	}
	u.msgTopic[addr.Msg] = topic

	if topic != u.rootTopic {
		u.emitSequence(ctx, topic, st.ParentTopic, addr)
	}
	return addr, nil
}

// emitSequence publishes a Sequence pointer on the root branch advertising
// addr as the latest message on topic, so a reader following only the root
// branch (spec §9: "Implementations must handle Sequence -> target lookup
// atomically") can discover and bootstrap topic without polling it
// directly. Best-effort: topic's own message has already landed in
// transport by the time this runs, and a reader who already tracks topic
// (because they saw its BranchAnnouncement, or originated it themselves)
// does not depend on this pointer at all, so a failure here is logged and
// swallowed rather than unwinding the publish that already succeeded.
func (u *User) emitSequence(ctx context.Context, topic, parentTopic string, target address.Address) {
	seq := &content.Sequence{
		Topic:         topic,
		ParentTopic:   parentTopic,
		TargetChannel: target.Channel,
		TargetMsg:     target.Msg,
	}
	if _, err := u.outbound(ctx, u.rootTopic, content.TypeSequence, false,
		func(fork *spongos.State) []byte { return seq.Encode() }, nil); err != nil {
		u.logger("emitSequence").WithField("topic", topic).WithField("error", err.Error()).Warn("failed to advertise sequence pointer")
	}
}

// decodeFrame is the mirror of outbound's framing half: decode a blob
// already known to belong to topic (TopicRef checked), resolve its
// predecessor against branch.ChainAt, and return the still-uncommitted
// forked sponge state together with the frame's pre-tag bytes. Callers
// complete verification themselves (process.go), since the right check —
// a squeezed MAC compared byte-for-byte, or an Ed25519 signature — and
// whether a masked payload needs decrypting first, both depend on the
// frame's content type.
func (u *User) decodeFrame(topic string, blob []byte) (*envelope.Frame, *spongos.State, []byte, error) {
	frame, err := envelope.Decode(blob)
	if err != nil {
		return nil, nil, nil, err
	}
	if frame.Channel != u.channel {
		return nil, nil, nil, fmt.Errorf("user: %w: frame addressed to a different channel", ErrAuthenticationFailed)
	}
	if frame.TopicRef != topicRef(topic) {
		return nil, nil, nil, fmt.Errorf("user: %w: topic_ref mismatch", ErrAuthenticationFailed)
	}

	chain, ok := u.branches.ChainAt(topic, frame.PredecessorMsg)
	if !ok {
		return nil, nil, nil, &UnknownPredecessorError{Predecessor: frame.PredecessorMsg}
	}
	fork := chain.Fork()

	tagLen := envelope.AuthTagMAC
	if len(frame.AuthTag) == envelope.AuthTagSignature {
		tagLen = envelope.AuthTagSignature
	}
	signable, err := framePrefix(frame, tagLen)
	if err != nil {
		return nil, nil, nil, err
	}
	return frame, fork, signable, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// branchChainSeed derives the fresh sponge chain a newly established
// branch forks from, rooted in the channel id and the establishing
// message's encoded content — the same scheme CreateChannel/Connect use
// to root the root branch on the Announce, generalized to
// BranchAnnouncement for any non-root topic.
func branchChainSeed(channel address.ChannelID, topic string, signable []byte) *spongos.State {
	s := spongos.New(append(append([]byte{}, channel[:]...), []byte(topic)...))
	s.Absorb(signable)
	s.Commit()
	return s
}

// implicitBranchChainSeed derives the fresh sponge chain an implicitly
// originated branch (spec §3 Lifecycles: first SignedPacket/TaggedPacket on
// a new topic by a writer of the parent) forks from. Unlike
// branchChainSeed, there is no establishing message's content to absorb
// ahead of time — the first packet on the new branch is itself the
// establishing message, and its body isn't built yet when the branch needs
// to exist. Absorbing the parent branch's current tip instead binds the new
// chain to a specific point in the parent's history, so the same (channel,
// topic) pair originated against two different parent states never
// produces the same chain.
func implicitBranchChainSeed(channel address.ChannelID, topic string, parentTip address.MsgID) *spongos.State {
	s := spongos.New(append(append([]byte{}, channel[:]...), []byte(topic)...))
	s.Absorb(parentTip[:])
	s.Commit()
	return s
}

// ensureBranch returns (and lazily creates) the branch.Store record for
// topic, with its parent recorded in perms for ACL inheritance.
func (u *User) ensureBranch(topic, parentTopic string, rootAddr address.Address, chain *spongos.State) *branch.State {
	st := u.branches.Init(topic, parentTopic, chain, rootAddr)
	u.perms.SetParent(topic, parentTopic)
	return st
}
