// pkg/stream/errors.go

package stream

import (
	"fmt"

	"AveStream/pkg/store"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned when a stream is opened without a store or an identity.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyClosed is returned by every call on a closed stream.
	ErrAlreadyClosed = errors.New("this stream has been already closed")
	// ErrStreamTooLong is returned by a write that needs a chunk after the last index.
	ErrStreamTooLong = errors.New("stream has no chunk index left")
)

// IOFailure wraps a store failure: a transaction conflict, a transport error or
// a corrupted value. The stream stays open and the failed call can be retried.
type IOFailure struct {
	Op  string
	Key store.Key
	Err error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Key, e.Err)
}

func (e *IOFailure) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is an IOFailure caused by a lost transaction race.
func IsConflict(err error) bool {
	var f *IOFailure
	return errors.As(err, &f) && errors.Is(f.Err, store.ErrConflict)
}

func ioFailure(op string, key store.Key, err error) error {
	return &IOFailure{Op: op, Key: key, Err: err}
}
