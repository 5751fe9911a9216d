package user

// Options configures a User at construction, mirroring the teacher's
// toxcore.Options/NewOptions shape: a plain struct of tunables passed to
// the constructor rather than a functional-options chain, with a
// constructor that fills in defaults for the zero value.
type Options struct {
	// MaxSyncPasses bounds how many consecutive passes without progress sync
	// makes over deferred (unknown-predecessor) messages before reporting the remainder as
	// OrphanedMessagesError. Matches the teacher's messaging.maxRetries
	// pattern. Zero selects the default of 3.
	MaxSyncPasses int

	// GetManyBatchSize bounds how many candidate addresses sync/selective
	// sync requests from Transport.GetMany in a single round trip. Zero
	// selects the default of 64.
	GetManyBatchSize int
}

const (
	defaultMaxSyncPasses     = 3
	defaultGetManyBatchSize  = 64
)

// NewOptions returns an Options with every zero field replaced by its
// default.
func NewOptions() Options {
	return Options{
		MaxSyncPasses:    defaultMaxSyncPasses,
		GetManyBatchSize: defaultGetManyBatchSize,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxSyncPasses <= 0 {
		o.MaxSyncPasses = defaultMaxSyncPasses
	}
	if o.GetManyBatchSize <= 0 {
		o.GetManyBatchSize = defaultGetManyBatchSize
	}
	return o
}
