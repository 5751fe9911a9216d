// Package tanglestream implements a secure, permissioned messaging system
// layered over an append-only distributed ledger: channels are forests of
// hash-linked branches ("topics"), every message is cryptographically
// chained to its predecessor via a duplex-sponge construction, and access
// to a branch is controlled by in-band Keyload/ACL messages a branch's
// author or delegated admin publishes alongside ordinary messages.
//
// There is no root-level client struct — the engine's entry point is
// [user.User], constructed with an [identity.Identity] and a
// [transport.Transport] and bound to exactly one logical actor (it is not
// safe for concurrent mutating calls; independent User values derived from
// the same identity may run concurrently since each owns disjoint state).
//
// # Getting Started
//
// An author creates a channel, which roots the channel's first branch:
//
//	id, _ := identity.GenerateEd25519Keypair()
//	author := user.New(id, transport, user.NewOptions())
//	announceAddr, err := author.CreateChannel(ctx, 0, "root")
//
// A reader connects to that channel from its Announce address, requests a
// subscription, and waits for the author to accept it:
//
//	reader := user.New(readerID, transport, user.NewOptions())
//	err := reader.Connect(ctx, announceAddr)
//	subAddr, err := reader.Subscribe(ctx)
//
//	// on the author's side
//	subscriberID, err := author.AcceptSubscription(ctx, subAddr)
//
// AcceptSubscription immediately issues a Keyload granting the new
// subscriber ReadOnly access to the root branch; Permissions can extend or
// change that afterward:
//
//	_, err := author.Permissions("root").Change(subscriberID, content.LevelReadWrite).Apply(ctx)
//
// Publishing and reading both go through Sync to discover and apply new
// messages before acting on branch state:
//
//	addr, err := author.Message().Topic("root").Payload([]byte("hello")).Tagged().Send(ctx)
//	n, err := reader.Sync(ctx)
//
// # Branches
//
// A branch (spec term: topic) is an independently keyed, independently
// permissioned hash chain within a channel. BranchFrom lets any Admin on a
// parent branch fork a new one, carrying its own Keyload:
//
//	newBranchAddr, err := author.BranchFrom(ctx, "root", "root/private")
//
// # Recovery
//
// Backup seals a User's entire recoverable state (identity seed material,
// every branch's chain position and content key, permission state, known
// subscribers) with a password; Restore rebuilds a ready-to-use User from
// it without needing to re-subscribe or replay the channel from genesis:
//
//	blob, err := author.Backup(password)
//	restored, err := user.Restore(password, blob, transport, user.NewOptions())
//
// # Package Layout
//
//   - [identity]: the four identity backends (Ed25519 keypair, DID
//     account, DID private key, pre-shared key) behind one capability
//     interface, plus the tagged-union Identifier wire format.
//   - [address]: channel and message identifiers, both derived
//     deterministically via BLAKE2b hashing.
//   - [spongos]: the duplex-sponge construction chaining message state.
//   - [crypto]: NaCl box/secretbox wrappers for Keyload key wrapping, and
//     Noise-IK sealing of Subscribe requests.
//   - [envelope]: the binary frame codec every message is stored as.
//   - [content]: the typed payloads an envelope's body decodes to.
//   - [branch]: per-topic chain state, cursors, and tips.
//   - [permission]: per-topic ACL resolution with parent-topic
//     inheritance.
//   - [selector]: candidate filtering for selective_sync.
//   - [transport]: the storage abstraction (put/get/get_many) every
//     message is exchanged through.
//   - [snapshot]: the password-sealed backup envelope.
//   - [user]: the state machine composing all of the above.
package tanglestream
