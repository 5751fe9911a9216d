package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/spongos"
)

// BranchFrom establishes newTopic as a child of parentTopic: it issues a
// BranchAnnouncement carrying an initial Keyload (a fresh content key and
// an ACL seeded with the caller as Admin), published on parentTopic, and
// initializes the new branch's local sponge chain rooted on that
// announcement. Requires Admin on parentTopic, since branching implicitly
// grants the caller Admin over the new topic.
func (u *User) BranchFrom(ctx context.Context, parentTopic, newTopic string) (address.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.perms.MayAdmin(u.myKey(), parentTopic) {
		return address.Address{}, ErrPermissionDenied
	}
	if _, exists := u.branches.Get(newTopic); exists {
		return address.Address{}, fmt.Errorf("user: %w: topic already has a branch", ErrInvariantViolation)
	}

	kx, ok := u.identity.(kxKeyExchanger)
	if !ok {
		return address.Address{}, fmt.Errorf("user: identity lacks key-exchange capability required to branch")
	}

	var newKey [32]byte
	if _, err := readRandom(newKey[:]); err != nil {
		return address.Address{}, err
	}
	var nonce [24]byte
	if _, err := readRandom(nonce[:]); err != nil {
		return address.Address{}, err
	}

	kl := content.Keyload{
		Topic:         newTopic,
		ACL:           []content.ACLEntry{{Identifier: identity.EncodeIdentifier(u.myIdentifier()), Level: content.LevelAdmin}},
		KeyloadNonce:  nonce,
		IssuerXPublic: kx.XPublic(),
	}
	ann := &content.BranchAnnouncement{ParentTopic: parentTopic, NewTopic: newTopic, InitialKeyload: kl}

	addr, err := u.outbound(ctx, parentTopic, content.TypeBranchAnnouncement, false,
		func(fork *spongos.State) []byte { return ann.Encode() },
		func(fork *spongos.State) { fork.Absorb(newKey[:]) },
	)
	if err != nil {
		return address.Address{}, err
	}

	// Root the new branch on a fresh chain derived from the channel id and
	// the new topic name, absorbing the BranchAnnouncement's own content so
	// the branch is cryptographically bound to this specific announcement.
	signable := ann.Encode()
	chain := branchChainSeed(u.channel, newTopic, signable)
	chain.Absorb(newKey[:])

	u.ensureBranch(newTopic, parentTopic, addr, chain)
	u.perms.Apply(newTopic, kl.ACL)
	if err := u.branches.SetKey(newTopic, newKey); err != nil {
		return address.Address{}, err
	}

	u.logger("BranchFrom").WithField("new_topic", newTopic).Info("branch established")
	return addr, nil
}

// originateImplicitBranch establishes topic as a new branch the way spec §3
// Lifecycles' second origination path describes: no BranchAnnouncement, no
// fresh Keyload, just a writer of the parent topic publishing the first
// message under a new name. The parent is topic's nested-name prefix up to
// its last "/" (or the root topic, for an unprefixed new top-level topic);
// that parent must already have a branch, and the caller must hold at least
// ReadWrite on it. The new branch inherits the parent's ACL by reference
// (permission.State's resolution already falls back to a parent topic when
// the child has no ACL of its own — no separate Keyload is issued) and forks
// its chain from the parent's current tip, the same predecessor-attachment
// shape BranchFrom uses for an explicit BranchAnnouncement. u.mu must
// already be held by the caller. A no-op if topic already has a branch.
func (u *User) originateImplicitBranch(topic string) error {
	if _, exists := u.branches.Get(topic); exists {
		return nil
	}

	parentTopic := u.rootTopic
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		parentTopic = topic[:i]
	}
	if parentTopic == topic {
		return fmt.Errorf("user: %w: topic %q has no parent to originate from", ErrNoSuchBranch, topic)
	}

	parentState, ok := u.branches.Get(parentTopic)
	if !ok {
		return fmt.Errorf("user: %w: parent topic %q has no branch", ErrNoSuchBranch, parentTopic)
	}
	if !u.perms.MayWrite(u.myKey(), parentTopic) {
		return ErrPermissionDenied
	}

	chain := implicitBranchChainSeed(u.channel, topic, parentState.Tip.Msg)
	u.ensureBranch(topic, parentTopic, parentState.Tip, chain)

	u.logger("originateImplicitBranch").WithField("topic", topic).Info("branch implicitly originated")
	return nil
}
