// Package transport abstracts the ledger the engine stores and retrieves
// opaque blobs against: a key→blob put/get/get_many surface, decoupling
// the channel engine from whatever tangle, smart contract, or plain
// key-value store actually backs it. Adapted from the teacher's
// transport package, narrowed from its full NAT/onion/multi-protocol
// stack down to this one interface plus two implementations.
package transport

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when index has no stored blob.
var ErrNotFound = errors.New("transport: not found")

// Index is the 32-byte tangle index a blob is stored under — the output
// of address.Address.TangleIndex.
type Index [32]byte

// Transport is the engine's only dependency on the underlying ledger.
// Every call is a suspension point: implementations should honor ctx
// cancellation so a cancelled operation leaves caller state unchanged.
type Transport interface {
	Put(ctx context.Context, index Index, blob []byte) error
	Get(ctx context.Context, index Index) ([]byte, error)
	GetMany(ctx context.Context, indices []Index) ([]Option, error)
}

// Option is a present-or-absent blob, the result shape of a batched
// GetMany lookup where some indices may not exist yet.
type Option struct {
	Blob    []byte
	Present bool
}
