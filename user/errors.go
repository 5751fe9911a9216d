package user

import (
	"errors"
	"fmt"

	"github.com/opd-ai/tanglestream/address"
)

// Sentinel errors implementing the taxonomy of spec §7. Transport and
// parse failures bubble up wrapped from their originating package
// (transport.ErrNotFound, envelope.ErrMalformedFrame, address.ErrBadAddress,
// snapshot.ErrBadPassword/ErrVersionMismatch/ErrCorruptSnapshot); the
// sentinels below are the errors only this package can raise.
var (
	// ErrPermissionDenied is a local decision made before publish: the
	// caller lacks write (or admin, for a Keyload) on the target topic.
	ErrPermissionDenied = errors.New("user: permission denied")

	// ErrNotSubscribed is returned by operations that require an accepted
	// subscription the caller does not hold.
	ErrNotSubscribed = errors.New("user: not subscribed")

	// ErrAuthenticationFailed means a message's signature or MAC did not
	// verify; it is dropped and never incorporated into state.
	ErrAuthenticationFailed = errors.New("user: authentication failed")

	// ErrInvariantViolation indicates a bug: an operation aborted without
	// mutating state. This is the only fatal error class in this package.
	ErrInvariantViolation = errors.New("user: invariant violation")

	// ErrNoSuchBranch is returned when an operation names a topic with no
	// known branch record.
	ErrNoSuchBranch = errors.New("user: no such branch")

	// ErrNoPeekedMessages is returned by Skip when called with nothing
	// outstanding from a prior Peek.
	ErrNoPeekedMessages = errors.New("user: no peeked messages to skip")

	// ErrUnsupportedIdentity is returned by Backup when the identity
	// backing this User cannot be serialized into a snapshot (any backend
	// without local seed material, such as DIDAccount, whose key material
	// lives in an external secure-storage backend this engine never holds,
	// or PreSharedKey).
	ErrUnsupportedIdentity = errors.New("user: identity backend does not support backup")
)

// UnknownPredecessorError reports that a message references a predecessor
// this user has not yet seen. It is not fatal: sync defers the message and
// retries it once more predecessors land, surfacing it only if it is still
// unresolved when sync gives up.
type UnknownPredecessorError struct {
	Address     address.Address
	Predecessor address.MsgID
}

func (e *UnknownPredecessorError) Error() string {
	return fmt.Sprintf("user: message %s references unseen predecessor %x", e.Address, e.Predecessor)
}

// OrphanedMessagesError is sync's non-fatal report of messages that
// remained undeliverable (unresolved predecessor) after the bounded number
// of retry passes.
type OrphanedMessagesError struct {
	Addresses []address.Address
}

func (e *OrphanedMessagesError) Error() string {
	return fmt.Sprintf("user: %d message(s) orphaned after sync", len(e.Addresses))
}
