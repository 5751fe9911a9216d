package user

import (
	"context"
	"fmt"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/crypto"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/spongos"
)

// PermissionsBuilder accumulates ACL changes for one topic before Apply
// issues a Keyload. Grounded on the teacher's group.Chat.SetPeerRole
// (one role change validated against the caller's own role), generalized
// to a batch of grants since a single Keyload republishes the branch's
// whole ACL.
type PermissionsBuilder struct {
	u          *User
	topic      string
	grants     map[string]content.Level // identity.Key -> level, 0 meaning remove
	identities map[string]identity.Identifier
	pskKeys    map[string][32]byte // identity.Key -> shared seed-derived key, for PSK group grants
}

// Permissions starts a PermissionsBuilder for topic.
func (u *User) Permissions(topic string) *PermissionsBuilder {
	return &PermissionsBuilder{
		u:          u,
		topic:      topic,
		grants:     make(map[string]content.Level),
		identities: make(map[string]identity.Identifier),
		pskKeys:    make(map[string][32]byte),
	}
}

// AddPSKGroup grants a pre-shared-key group read access: the branch key
// is wrapped once with the group's own derived symmetric key (via
// crypto.EncryptSymmetric) rather than individually per-member, since the
// caller issuing the grant must already hold that shared seed out of
// band to name this group at all. Every identity.PreSharedKey holder of
// that seed can then unwrap the same WrappedKey entry.
func (p *PermissionsBuilder) AddPSKGroup(pskID identity.Identifier, pskKey [32]byte, level content.Level) *PermissionsBuilder {
	key := identity.Key(pskID)
	p.grants[key] = level
	p.identities[key] = pskID
	p.pskKeys[key] = pskKey
	return p
}

// Set grants id the given level, replacing any prior pending change to id
// in this builder.
func (p *PermissionsBuilder) Set(id identity.Identifier, level content.Level) *PermissionsBuilder {
	key := identity.Key(id)
	p.grants[key] = level
	p.identities[key] = id
	return p
}

// Add is an alias for Set, read naturally when granting a new subscriber
// access for the first time.
func (p *PermissionsBuilder) Add(id identity.Identifier, level content.Level) *PermissionsBuilder {
	return p.Set(id, level)
}

// Change is an alias for Set, read naturally when altering an existing
// subscriber's level.
func (p *PermissionsBuilder) Change(id identity.Identifier, level content.Level) *PermissionsBuilder {
	return p.Set(id, level)
}

// Remove drops id from the topic's ACL entirely on Apply.
func (p *PermissionsBuilder) Remove(id identity.Identifier) *PermissionsBuilder {
	key := identity.Key(id)
	delete(p.grants, key)
	delete(p.identities, key)
	return p
}

// Apply merges the pending grants onto the topic's current ACL and
// publishes a Keyload rotating the branch's content key. Only the author
// or an existing Admin on topic may call this.
func (p *PermissionsBuilder) Apply(ctx context.Context) (address.Address, error) {
	u := p.u
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.applyKeyloadLocked(ctx, p.topic, p.grants, p.identities, p.pskKeys)
}

// applyKeyloadLocked is Apply's body, factored out so AcceptSubscription
// can issue the spec-mandated implicit Keyload for a newly accepted
// subscriber without recursively locking u.mu. u.mu must already be held
// by the caller.
func (u *User) applyKeyloadLocked(ctx context.Context, topic string, grants map[string]content.Level, identities map[string]identity.Identifier, pskKeys map[string][32]byte) (address.Address, error) {
	if !u.perms.MayAdmin(u.myKey(), topic) {
		return address.Address{}, ErrPermissionDenied
	}

	if _, ok := u.branches.Get(topic); !ok {
		return address.Address{}, ErrNoSuchBranch
	}

	merged := make(map[string]content.ACLEntry)
	for _, e := range u.perms.ACL(topic) {
		merged[string(e.Identifier)] = e
	}
	for key, level := range grants {
		merged[key] = content.ACLEntry{Identifier: identity.EncodeIdentifier(identities[key]), Level: level}
	}

	acl := make([]content.ACLEntry, 0, len(merged))
	for _, e := range merged {
		acl = append(acl, e)
	}
	recipientKeys := make([]string, 0, len(grants))
	for key := range grants {
		recipientKeys = append(recipientKeys, key)
	}

	if err := u.perms.ValidateKeyloadIssuer(u.myKey(), topic, recipientKeys); err != nil {
		return address.Address{}, err
	}

	kx, ok := u.identity.(kxKeyExchanger)
	if !ok {
		return address.Address{}, fmt.Errorf("user: issuing identity lacks key-exchange capability")
	}

	var newKey [32]byte
	if _, err := readRandom(newKey[:]); err != nil {
		return address.Address{}, err
	}

	wrapped := make([]content.WrappedKey, 0, len(merged))
	var keyloadNonce [24]byte
	if _, err := readRandom(keyloadNonce[:]); err != nil {
		return address.Address{}, err
	}
	// Re-wrap the new key for every entry on the merged ACL, not just the
	// ones this call touched: a Keyload rotates the branch key entirely,
	// so a subscriber granted by an earlier Keyload still needs a fresh
	// WrappedKey here or they lose read access from this point on. PSK
	// group entries can only be re-wrapped when their shared key is
	// supplied again via AddPSKGroup in this same call, since the group
	// key itself is never persisted.
	for key := range merged {
		if key == u.myKey() {
			continue
		}
		if pskKey, isPSK := pskKeys[key]; isPSK {
			w, err := crypto.EncryptSymmetric(newKey[:], crypto.Nonce(keyloadNonce), pskKey)
			if err != nil {
				return address.Address{}, err
			}
			wrapped = append(wrapped, content.WrappedKey{RecipientIdentifier: identity.EncodeIdentifier(identities[key]), Wrapped: w})
			u.perms.MarkPSKHolder(key)
			continue
		}
		sub, ok := u.subscribers[key]
		if !ok || !sub.hasKX {
			continue
		}
		w, err := crypto.WrapForRecipient(newKey[:], crypto.Nonce(keyloadNonce), sub.ephemeral, kx.KXPrivate())
		if err != nil {
			return address.Address{}, err
		}
		wrapped = append(wrapped, content.WrappedKey{RecipientIdentifier: identity.EncodeIdentifier(sub.identifier), Wrapped: w})
	}

	kl := &content.Keyload{
		Topic:         topic,
		ACL:           acl,
		WrappedKeys:   wrapped,
		KeyloadNonce:  keyloadNonce,
		IssuerXPublic: kx.XPublic(),
	}

	addr, err := u.outbound(ctx, topic, content.TypeKeyload, false,
		func(fork *spongos.State) []byte { return kl.Encode() },
		func(fork *spongos.State) { fork.Absorb(newKey[:]) },
	)
	if err != nil {
		return address.Address{}, err
	}

	u.perms.Apply(topic, acl)
	if err := u.branches.SetKey(topic, newKey); err != nil {
		return address.Address{}, err
	}
	return addr, nil
}
