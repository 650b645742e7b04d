// pkg/stream/options.go

package stream

import "AveStream/pkg/store"

type options struct {
	tx        store.Tx
	chunkSize int
}

// Option configures a Reader or a Writer.
type Option func(*options)

// WithTx runs every store operation of the stream inside tx. The stream never
// commits tx; the caller does, after closing the stream. A failed operation
// rolls tx back.
func WithTx(tx store.Tx) Option {
	return func(o *options) {
		o.tx = tx
	}
}

// WithChunkSize overrides MaxChunkSize. Readers must use the size the stream was written with.
func WithChunkSize(size int) Option {
	return func(o *options) {
		o.chunkSize = size
	}
}

func newOptions(opts []Option) (*options, error) {
	o := &options{chunkSize: MaxChunkSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.chunkSize <= 0 {
		return nil, ErrInvalidArgument
	}
	return o, nil
}
