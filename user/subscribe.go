package user

import (
	"context"
	"fmt"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/crypto"
	"github.com/opd-ai/tanglestream/envelope"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/spongos"
	"github.com/opd-ai/tanglestream/transport"
)

// Subscribe publishes a Subscribe request on the root branch, sealed to
// the author's known static X25519 key (learned from Announce) with a
// fresh ephemeral keypair so the author's eventual Keyload grant carries
// forward secrecy instead of wrapping to this identity's long-term key.
func (u *User) Subscribe(ctx context.Context) (address.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.channel == (address.ChannelID{}) {
		return address.Address{}, fmt.Errorf("user: %w: not connected to a channel", ErrInvariantViolation)
	}

	var ephPriv [32]byte
	if _, err := readRandom(ephPriv[:]); err != nil {
		return address.Address{}, err
	}
	ephPub, err := curve25519ScalarBaseMult(ephPriv)
	if err != nil {
		return address.Address{}, err
	}

	myID := identity.EncodeIdentifier(u.myIdentifier())
	sealed, err := crypto.SealSubscribeToAuthor(ephPriv, u.authorXPub, myID)
	if err != nil {
		return address.Address{}, err
	}

	sub := &content.Subscribe{SubscriberIdentifier: myID, SealedEphemeralKey: sealed}

	addr, err := u.outbound(ctx, u.rootTopic, content.TypeSubscribe, false,
		func(fork *spongos.State) []byte { return sub.Encode() }, nil)
	if err != nil {
		return address.Address{}, err
	}

	u.pendingEph[addr.String()] = pendingEphemeral{pub: ephPub, priv: ephPriv}
	return addr, nil
}

// AcceptSubscription fetches the Subscribe request at subAddr, recovers
// the subscriber's identifier and ephemeral key, records them as an
// accepted subscriber, and immediately issues the root topic's Keyload
// granting them ReadOnly access (spec §9: accepting a subscription
// implicitly grants the default read level rather than leaving the new
// subscriber unable to decrypt anything until a separate call). Use
// Permissions(topic).Apply to grant a different level or extend access to
// a non-root branch afterward. Author-only.
func (u *User) AcceptSubscription(ctx context.Context, subAddr address.Address) (identity.Identifier, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.isAuthor {
		return identity.Identifier{}, fmt.Errorf("user: %w: only the channel author may accept subscriptions", ErrPermissionDenied)
	}

	blob, err := u.transport.Get(ctx, transport.Index(subAddr.TangleIndex()))
	if err != nil {
		return identity.Identifier{}, err
	}
	frame, err := envelope.Decode(blob)
	if err != nil {
		return identity.Identifier{}, err
	}
	if content.Type(frame.ContentType) != content.TypeSubscribe {
		return identity.Identifier{}, fmt.Errorf("user: address does not hold a Subscribe")
	}

	kx, ok := u.identity.(kxKeyExchanger)
	if !ok {
		return identity.Identifier{}, fmt.Errorf("user: author identity lacks key-exchange capability")
	}

	sub, err := content.DecodeSubscribe(frame.Body)
	if err != nil {
		return identity.Identifier{}, err
	}
	payload, ephPub, err := crypto.OpenSubscribeWithStatic(kx.KXPrivate(), sub.SealedEphemeralKey)
	if err != nil {
		return identity.Identifier{}, err
	}
	subscriberID, err := identity.DecodeIdentifier(sub.SubscriberIdentifier)
	if err != nil {
		return identity.Identifier{}, err
	}
	if string(payload) != string(sub.SubscriberIdentifier) {
		return identity.Identifier{}, ErrAuthenticationFailed
	}

	key := identity.Key(subscriberID)
	u.perms.Accept(key)
	u.subscribers[key] = &subscriberRecord{identifier: subscriberID, ephemeral: ephPub, hasKX: true}

	grants := map[string]content.Level{key: content.LevelReadOnly}
	identities := map[string]identity.Identifier{key: subscriberID}
	if _, err := u.applyKeyloadLocked(ctx, u.rootTopic, grants, identities, nil); err != nil {
		return identity.Identifier{}, fmt.Errorf("user: issuing implicit keyload for accepted subscriber: %w", err)
	}

	u.logger("AcceptSubscription").WithField("subscriber", subscriberID.String()).Info("subscription accepted")
	return subscriberID, nil
}

// AddSubscriber accepts identifier into the channel without requiring a
// prior Subscribe request (spec §4.G: "identifier was shared out-of-band").
// Since this engine wraps a branch's content key to each recipient's X25519
// key rather than deriving one from the identifier bytes, and there is no
// Subscribe message here to recover an ephemeral key from, the caller must
// also supply that recipient's X25519 public key — shared out-of-band
// alongside the identifier itself. AddSubscriber then immediately issues
// the root topic's Keyload granting the new subscriber ReadOnly access, the
// same implicit grant AcceptSubscription gives a Subscribe-originated
// subscriber. Returns true if the identifier was newly accepted (false if
// it was already an accepted subscriber, in which case no Keyload is
// issued — use Permissions(topic).Apply to change an existing subscriber's
// level). Author-only.
func (u *User) AddSubscriber(ctx context.Context, identifier identity.Identifier, xPublic [32]byte) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.isAuthor {
		return false, fmt.Errorf("user: %w: only the channel author may add subscribers", ErrPermissionDenied)
	}

	key := identity.Key(identifier)
	if _, accepted := u.subscribers[key]; accepted {
		return false, nil
	}

	u.perms.Accept(key)
	u.subscribers[key] = &subscriberRecord{identifier: identifier, ephemeral: xPublic, hasKX: true}

	grants := map[string]content.Level{key: content.LevelReadOnly}
	identities := map[string]identity.Identifier{key: identifier}
	if _, err := u.applyKeyloadLocked(ctx, u.rootTopic, grants, identities, nil); err != nil {
		return false, fmt.Errorf("user: issuing implicit keyload for added subscriber: %w", err)
	}

	u.logger("AddSubscriber").WithField("subscriber", identifier.String()).Info("subscriber added out-of-band")
	return true, nil
}

// Unsubscribe publishes an Unsubscribe notice on the root branch,
// informing the author (and any other reader replaying this branch) that
// this subscriber is voluntarily leaving. It does not alter this user's
// local branch or permission state — the author must still revoke access
// via Permissions(topic).Remove to stop rotating future Keyloads to them.
func (u *User) Unsubscribe(ctx context.Context) (address.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.channel == (address.ChannelID{}) {
		return address.Address{}, fmt.Errorf("user: %w: not connected to a channel", ErrInvariantViolation)
	}

	un := &content.Unsubscribe{SubscriberIdentifier: identity.EncodeIdentifier(u.myIdentifier())}
	return u.outbound(ctx, u.rootTopic, content.TypeUnsubscribe, false,
		func(fork *spongos.State) []byte { return un.Encode() }, nil)
}
