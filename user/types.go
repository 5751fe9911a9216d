package user

import (
	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/identity"
)

// Message is the decoded, verified result of one fetched frame: the typed
// content plus the envelope metadata a caller needs (who published it,
// on what topic, at what address) to make sense of it.
type Message struct {
	Address     address.Address
	Predecessor address.MsgID
	Publisher   identity.Identifier
	Topic       string
	Seq         uint64
	ContentType content.Type

	// Content is the decoded typed body: *content.Announce,
	// *content.Subscribe, *content.Unsubscribe, *content.Keyload,
	// *content.SignedPacket, *content.TaggedPacket,
	// *content.BranchAnnouncement, or *content.Sequence.
	Content interface{}

	// PublicPayload and MaskedPayload are populated only for
	// SignedPacket/TaggedPacket content: PublicPayload is read directly
	// from the envelope (never encrypted), MaskedPayload is populated only
	// if this user held the branch's content key at the time of
	// processing; it is left nil when decryption was not possible (no
	// read permission, or the message predates a Keyload this user
	// didn't see).
	PublicPayload []byte
	MaskedPayload []byte
}

// kxKeyExchanger is the narrow extra capability user needs beyond
// identity.Identity to wrap/unwrap Keyload recipient keys with NaCl box,
// which takes a raw X25519 scalar rather than identity.Identity's
// opaque shared-secret KeyExchange. Only identity.Ed25519Keypair
// implements it; DID- and PSK-backed identities fall back to the PSK
// symmetric path or cannot receive individually-wrapped Keyload entries.
type kxKeyExchanger interface {
	XPublic() [32]byte
	KXPrivate() [32]byte
}

// pendingEphemeral remembers the ephemeral X25519 keypair generated for
// one in-flight Subscribe request, so a later Keyload wrapping the branch
// key to that ephemeral public key can be opened.
type pendingEphemeral struct {
	pub  [32]byte
	priv [32]byte
}

// subscriberRecord is what the author tracks about one accepted
// subscriber: their long-term identifier and the ephemeral X25519 public
// key recovered from their Subscribe request, used as the Keyload
// recipient key instead of a long-term key for forward secrecy.
type subscriberRecord struct {
	identifier identity.Identifier
	ephemeral  [32]byte
	hasKX      bool // whether ephemeral holds an X25519 key Keyloads can wrap to; AcceptSubscription and AddSubscriber always set it
}
