package user

import (
	"context"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/crypto"
	"github.com/opd-ai/tanglestream/envelope"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/spongos"
	"github.com/opd-ai/tanglestream/transport"
)

// interpreted is the read-only result of decoding and verifying one fetched
// frame: the decoded Message plus whatever side effects applying it would
// have, without yet committing the fork or touching branch/permission
// state. Separating interpretation from application is what lets Peek
// inspect upcoming messages (spec §8 property 6) without corrupting the
// cursors a subsequent Skip or FetchNextMsg must still advance correctly.
type interpreted struct {
	msg  *Message
	fork *spongos.State

	newKey      *[32]byte // non-nil if this frame's Keyload/BranchAnnouncement carried a key this user can recover
	newKeyTopic string

	aclTopic string // topic whose ACL this frame updates ("" if none)
	acl      []content.ACLEntry

	branchAnn     *content.BranchAnnouncement // non-nil for TypeBranchAnnouncement
	branchAddr    address.Address
	branchChain   *spongos.State

	sequenceTarget *content.Sequence // non-nil for TypeSequence
}

// interpretFrame decodes, verifies, and decrypts one fetched blob already
// known to belong to topic at addr, without mutating any stored state. It
// mirrors outbound's exact order of sponge operations (encrypt-then-absorb
// on the sending side becomes decrypt-then-absorb here) so fork's resulting
// state, once committed by a caller, matches what the sender committed.
func (u *User) interpretFrame(topic string, addr address.Address, blob []byte) (*interpreted, error) {
	frame, fork, signable, err := u.decodeFrame(topic, blob)
	if err != nil {
		if upe, ok := err.(*UnknownPredecessorError); ok {
			upe.Address = addr
		}
		return nil, err
	}

	ct := content.Type(frame.ContentType)
	publisherID, err := identity.DecodeIdentifier(frame.PublisherIdentifier)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Address:     addr,
		Predecessor: frame.PredecessorMsg,
		Publisher:   publisherID,
		Topic:       topic,
		Seq:         frame.Seq,
		ContentType: ct,
	}
	res := &interpreted{msg: msg, fork: fork}

	if ct == content.TypeSignedPacket {
		ok, err := u.identity.Verify(publisherID, signable, frame.AuthTag)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAuthenticationFailed
		}
	}

	switch ct {
	case content.TypeKeyload:
		kl, err := content.DecodeKeyload(frame.Body)
		if err != nil {
			return nil, err
		}
		if !verifyMAC(fork, signable, frame) {
			return nil, ErrAuthenticationFailed
		}
		if key, ok := u.tryUnwrapKeyload(kl); ok {
			fork.Absorb(key[:])
			res.newKey = &key
			res.newKeyTopic = topic
		}
		res.aclTopic = topic
		res.acl = kl.ACL
		msg.Content = kl

	case content.TypeSubscribe:
		sub, err := content.DecodeSubscribe(frame.Body)
		if err != nil {
			return nil, err
		}
		if !verifyMAC(fork, signable, frame) {
			return nil, ErrAuthenticationFailed
		}
		msg.Content = sub

	case content.TypeUnsubscribe:
		un, err := content.DecodeUnsubscribe(frame.Body)
		if err != nil {
			return nil, err
		}
		if !verifyMAC(fork, signable, frame) {
			return nil, ErrAuthenticationFailed
		}
		msg.Content = un

	case content.TypeBranchAnnouncement:
		ann, err := content.DecodeBranchAnnouncement(frame.Body)
		if err != nil {
			return nil, err
		}
		if !verifyMAC(fork, signable, frame) {
			return nil, ErrAuthenticationFailed
		}
		if _, exists := u.branches.Get(ann.NewTopic); !exists {
			chain := branchChainSeed(u.channel, ann.NewTopic, ann.Encode())
			if key, ok := u.tryUnwrapKeyload(&ann.InitialKeyload); ok {
				chain.Absorb(key[:])
				res.newKey = &key
				res.newKeyTopic = ann.NewTopic
			}
			res.branchAnn = ann
			res.branchAddr = addr
			res.branchChain = chain
			res.aclTopic = ann.NewTopic
			res.acl = ann.InitialKeyload.ACL
		}
		msg.Content = ann

	case content.TypeSequence:
		seq, err := content.DecodeSequence(frame.Body)
		if err != nil {
			return nil, err
		}
		if !verifyMAC(fork, signable, frame) {
			return nil, ErrAuthenticationFailed
		}
		res.sequenceTarget = seq
		msg.Content = seq

	case content.TypeSignedPacket:
		p, err := content.DecodeSignedPacket(frame.Body)
		if err != nil {
			return nil, err
		}
		msg.PublicPayload = p.PublicPayload
		if len(p.MaskedPayload) > 0 {
			msg.MaskedPayload = fork.Decrypt(p.MaskedPayload)
		}
		msg.Content = p

	case content.TypeTaggedPacket:
		p, err := content.DecodeTaggedPacket(frame.Body)
		if err != nil {
			return nil, err
		}
		if len(p.MaskedPayload) > 0 {
			plain := fork.Decrypt(p.MaskedPayload)
			if !verifyMAC(fork, signable, frame) {
				return nil, ErrAuthenticationFailed
			}
			msg.MaskedPayload = plain
		} else if !verifyMAC(fork, signable, frame) {
			return nil, ErrAuthenticationFailed
		}
		msg.PublicPayload = p.PublicPayload
		msg.Content = p

	default:
		return nil, envelope.ErrMalformedFrame
	}

	return res, nil
}

// applyInterpreted commits res's fork as topic's new chain link, records
// the publisher's cursor, and installs whatever branch/ACL mutation the
// frame carried. Called by dispatchFrame for every message actually
// consumed (never for a peek).
func (u *User) applyInterpreted(ctx context.Context, topic string, addr address.Address, res *interpreted) {
	if res.branchAnn != nil {
		u.ensureBranch(res.branchAnn.NewTopic, res.branchAnn.ParentTopic, res.branchAddr, res.branchChain)
	}
	if res.newKey != nil {
		_ = u.branches.SetKey(res.newKeyTopic, *res.newKey)
	}
	if res.aclTopic != "" {
		u.perms.Apply(res.aclTopic, res.acl)
	}

	res.fork.Commit()
	_ = u.branches.Record(identity.Key(res.msg.Publisher), topic, res.msg.Seq, addr, res.fork)
	u.msgTopic[addr.Msg] = topic

	if res.sequenceTarget != nil {
		u.followSequence(ctx, res.sequenceTarget)
	}
}

// dispatchFrame decodes, verifies, and applies one fetched blob already
// known to belong to topic at addr.
func (u *User) dispatchFrame(ctx context.Context, topic string, addr address.Address, blob []byte) (*Message, error) {
	res, err := u.interpretFrame(topic, addr, blob)
	if err != nil {
		return nil, err
	}
	u.applyInterpreted(ctx, topic, addr, res)
	return res.msg, nil
}

// followSequence resolves a Sequence pointer's target branch (spec §9:
// "Implementations must handle Sequence -> target lookup atomically so
// that partial failures do not leave a half-advanced cursor"). If Topic is
// already tracked, the pointer is redundant — ordinary polling already
// covers it — and this is a no-op. Otherwise Topic names a branch this
// user has never seen a BranchAnnouncement for (the implicit-origination
// path of spec §3 Lifecycles), so its chain is bootstrapped the same way
// originateImplicitBranch roots one: by forking from the parent state at
// the point the target frame itself names as predecessor, read straight
// off the fetched frame rather than assumed from local state. The target
// frame is then decoded and applied through the normal path. A failure at
// any point here leaves no branch state committed beyond Init's own
// zero-cursor bootstrap, which ordinary Sync polling will retry from
// (the first candidate address it computes for a freshly bootstrapped
// branch is exactly this target), so nothing is left half-advanced.
func (u *User) followSequence(ctx context.Context, seq *content.Sequence) {
	if seq.Topic == "" || seq.Topic == u.rootTopic {
		return
	}
	if _, ok := u.branches.Get(seq.Topic); ok {
		return
	}

	target := address.Address{Channel: seq.TargetChannel, Msg: seq.TargetMsg}
	blob, err := u.transport.Get(ctx, transport.Index(target.TangleIndex()))
	if err != nil || blob == nil {
		return
	}
	frame, err := envelope.Decode(blob)
	if err != nil {
		return
	}

	parentTip := address.Address{Channel: u.channel, Msg: frame.PredecessorMsg}
	chain := implicitBranchChainSeed(u.channel, seq.Topic, frame.PredecessorMsg)
	u.ensureBranch(seq.Topic, seq.ParentTopic, parentTip, chain)

	if _, err := u.dispatchFrame(ctx, seq.Topic, target, blob); err != nil {
		u.logger("followSequence").WithField("topic", seq.Topic).WithField("error", err.Error()).Warn("failed to apply sequence target after branch bootstrap")
	}
}

// verifyMAC squeezes a MAC from fork over signable and compares it
// constant-time against frame's auth tag.
func verifyMAC(fork *spongos.State, signable []byte, frame *envelope.Frame) bool {
	fork.Absorb(signable)
	mac := fork.Squeeze32()
	return len(frame.AuthTag) == 32 && constantTimeEqual(mac[:], frame.AuthTag)
}

// tryUnwrapKeyload attempts to recover the new branch key a Keyload
// carries for this user: first via an X25519-wrapped entry matching one
// of this user's still-pending Subscribe ephemeral keypairs, then (if
// this user's identity is a PreSharedKey) via the symmetric PSK-group
// entry. Returns ok=false, leaving the branch unreadable from here on,
// when neither applies — the intended behavior for a party Keyload does
// not grant access to.
func (u *User) tryUnwrapKeyload(kl *content.Keyload) ([32]byte, bool) {
	var key [32]byte
	myIDBytes := identity.EncodeIdentifier(u.myIdentifier())

	for _, w := range kl.WrappedKeys {
		if string(w.RecipientIdentifier) != string(myIDBytes) {
			continue
		}
		for _, eph := range u.pendingEph {
			opened, err := crypto.UnwrapForRecipient(w.Wrapped, crypto.Nonce(kl.KeyloadNonce), kl.IssuerXPublic, eph.priv)
			if err == nil && len(opened) == 32 {
				copy(key[:], opened)
				return key, true
			}
		}
	}

	if psk, ok := u.identity.(pskKeyHolder); ok {
		for _, w := range kl.WrappedKeys {
			if string(w.RecipientIdentifier) != string(myIDBytes) {
				continue
			}
			opened, err := crypto.DecryptSymmetric(w.Wrapped, crypto.Nonce(kl.KeyloadNonce), psk.Key())
			if err == nil && len(opened) == 32 {
				copy(key[:], opened)
				return key, true
			}
		}
	}

	return key, false
}

// pskKeyHolder is the narrow capability identity.PreSharedKey exposes
// that lets a recipient open a PSK-group Keyload entry.
type pskKeyHolder interface {
	Key() [32]byte
}
