// pkg/stream/reader.go

package stream

import (
	"context"
	"io"

	"AveStream/pkg/store"

	"github.com/pkg/errors"
)

// Reader reads back a stream stored by a Writer, from the first byte on. The
// end of the stream is the first missing chunk or the end of a short chunk.
// A Reader is owned by one goroutine and never mutates the store.
type Reader struct {
	ctx       context.Context
	ops       store.Ops
	tx        store.Tx
	chunkSize int

	cur    cursor
	offset int64
	closed bool
}

// NewReader opens a reader on the stream named parent. Chunks are fetched
// inside the WithTx transaction when one is given, else from st directly.
func NewReader(ctx context.Context, st store.Store, parent store.Key, opts ...Option) (*Reader, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if parent.IsZero() || (st == nil && o.tx == nil) {
		return nil, ErrInvalidArgument
	}
	return &Reader{
		ctx:       ctx,
		ops:       opsOf(st, o.tx),
		tx:        o.tx,
		chunkSize: o.chunkSize,
		cur:       newCursor(parent),
	}, nil
}

// Read fills p from the stream. It stops early at the end of the stream, and
// returns io.EOF only when no byte is left.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrAlreadyClosed
	}
	var n int
	for n < len(p) {
		if r.cur.off >= r.chunkSize && !r.cur.advance() {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}
		seg := p[n:]
		if room := r.chunkSize - r.cur.off; len(seg) > room {
			seg = seg[:room]
		}
		m, err := r.readChunk(seg)
		n += m
		r.offset += int64(m)
		if err == io.EOF {
			if n > 0 {
				break
			}
			return 0, io.EOF
		}
		if err != nil {
			return n, err
		}
		if m < len(seg) {
			// a short chunk is the last one
			break
		}
	}
	return n, nil
}

func (r *Reader) readChunk(seg []byte) (int, error) {
	key := r.cur.key
	l, err := r.ops.Get(r.ctx, key)
	if err != nil {
		if r.tx != nil {
			rollback(r.ctx, r.tx)
		}
		return 0, ioFailure("read", key, err)
	}
	if !l.Found {
		return 0, io.EOF
	}
	if len(l.Entity.Value) > r.chunkSize {
		// written with a larger chunk size, reading on would skip bytes
		return 0, ioFailure("read", key, errors.Errorf("chunk holds %d bytes, more than the chunk size %d",
			len(l.Entity.Value), r.chunkSize))
	}
	if r.cur.off >= len(l.Entity.Value) {
		return 0, io.EOF
	}
	m := copy(seg, l.Entity.Value[r.cur.off:])
	r.cur.off += m
	return m, nil
}

// ReadByte returns the next byte of the stream, or io.EOF.
func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	n, err := r.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return b[0], nil
}

// Close releases the reader. It does not touch the store.
func (r *Reader) Close() error {
	if r.closed {
		return ErrAlreadyClosed
	}
	r.closed = true
	return nil
}

// Offset returns the number of bytes read so far.
func (r *Reader) Offset() int64 {
	return r.offset
}
