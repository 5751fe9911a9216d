package user

import (
	"context"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/spongos"
)

// MessageBuilder accumulates a message's topic, payload, and signing mode
// before Send publishes it. Grounded on the teacher's
// messaging.Manager.SendMessage fluent-ish option structs, reshaped into a
// chained builder since a message here has more independent axes (topic,
// public/masked split, auth mode) than a flat SendMessage(friendID, text)
// call.
type MessageBuilder struct {
	u       *User
	topic   string
	payload []byte
	public  bool
	signed  bool
}

// Message starts a new MessageBuilder.
func (u *User) Message() *MessageBuilder {
	return &MessageBuilder{u: u}
}

// Topic sets the branch this message publishes to.
func (m *MessageBuilder) Topic(topic string) *MessageBuilder {
	m.topic = topic
	return m
}

// Payload sets the message body.
func (m *MessageBuilder) Payload(p []byte) *MessageBuilder {
	m.payload = p
	return m
}

// Public marks the payload as cleartext (carried in PublicPayload,
// readable by anyone who can fetch the frame regardless of branch key).
func (m *MessageBuilder) Public() *MessageBuilder {
	m.public = true
	return m
}

// Signed selects an Ed25519-signed SignedPacket instead of the default
// sponge-MAC-tagged TaggedPacket, trading a larger auth tag for
// non-repudiation.
func (m *MessageBuilder) Signed() *MessageBuilder {
	m.signed = true
	return m
}

// Tagged selects the default sponge-MAC-tagged TaggedPacket explicitly.
func (m *MessageBuilder) Tagged() *MessageBuilder {
	m.signed = false
	return m
}

// Send publishes the built message, enforcing write permission on the
// target topic before any Transport.Put.
func (m *MessageBuilder) Send(ctx context.Context) (address.Address, error) {
	u := m.u
	u.mu.Lock()
	defer u.mu.Unlock()

	if m.topic == "" {
		return address.Address{}, ErrNoSuchBranch
	}

	// spec §3 Lifecycles: a branch may originate either from an explicit
	// BranchAnnouncement (BranchFrom) or implicitly, from the first
	// SignedPacket/TaggedPacket a writer of the parent topic publishes to a
	// topic with no branch yet. originateImplicitBranch is a no-op once the
	// branch already exists.
	if _, ok := u.branches.Get(m.topic); !ok {
		if err := u.originateImplicitBranch(m.topic); err != nil {
			return address.Address{}, err
		}
	}

	if !u.perms.MayWrite(u.myKey(), m.topic) {
		return address.Address{}, ErrPermissionDenied
	}

	ct := content.TypeTaggedPacket
	if m.signed {
		ct = content.TypeSignedPacket
	}

	var publicPayload, maskedPayload []byte
	if m.public {
		publicPayload = m.payload
	} else {
		maskedPayload = m.payload
	}

	bodyFn := func(fork *spongos.State) []byte {
		var masked []byte
		if len(maskedPayload) > 0 {
			masked = fork.Encrypt(maskedPayload)
		}
		if m.signed {
			p := &content.SignedPacket{PublicPayload: publicPayload, MaskedPayload: masked}
			return p.Encode()
		}
		p := &content.TaggedPacket{PublicPayload: publicPayload, MaskedPayload: masked}
		return p.Encode()
	}

	return u.outbound(ctx, m.topic, ct, m.signed, bodyFn, nil)
}
