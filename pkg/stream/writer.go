// pkg/stream/writer.go

package stream

import (
	"context"

	"AveStream/pkg/store"
)

// Writer stores a byte stream as consecutive chunks of at most the chunk size,
// named by ChunkKey under the stream identity. Writing always starts at chunk 0
// and Close deletes the chunks left over from a longer previous revision.
//
// A Writer is owned by one goroutine. It must be closed, otherwise the stream
// may end with stale chunks.
type Writer struct {
	ctx       context.Context
	st        store.Store
	tx        store.Tx
	chunkSize int

	cur     cursor
	written bool
	length  int64
	closed  bool
}

// NewWriter opens a writer on the stream named parent. Without WithTx every
// chunk mutation runs in its own transaction on st, and st must not be nil.
func NewWriter(ctx context.Context, st store.Store, parent store.Key, opts ...Option) (*Writer, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if parent.IsZero() || (st == nil && o.tx == nil) {
		return nil, ErrInvalidArgument
	}
	return &Writer{
		ctx:       ctx,
		st:        st,
		tx:        o.tx,
		chunkSize: o.chunkSize,
		cur:       newCursor(parent),
	}, nil
}

// Write appends p to the stream. On failure nothing of p counts as written: the
// writer stays at its previous position and the same call can be retried.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrAlreadyClosed
	}
	saved := w.cur
	if len(p) == 0 {
		if w.written {
			return 0, nil
		}
		// an empty stream still has its first chunk
		if err := w.writeChunk(nil); err != nil {
			return 0, err
		}
		w.written = true
		return 0, nil
	}

	var n int
	for n < len(p) {
		if w.cur.off >= w.chunkSize && !w.cur.advance() {
			err := ioFailure("write", w.cur.key, ErrStreamTooLong)
			w.cur = saved
			return 0, err
		}
		seg := p[n:]
		if room := w.chunkSize - w.cur.off; len(seg) > room {
			seg = seg[:room]
		}
		if err := w.writeChunk(seg); err != nil {
			w.cur = saved
			return 0, err
		}
		n += len(seg)
	}
	w.written = true
	w.length += int64(n)
	return n, nil
}

// writeChunk stores seg at the cursor with a fetch-modify-persist of the
// current chunk, which ends right after seg.
func (w *Writer) writeChunk(seg []byte) error {
	key, off := w.cur.key, w.cur.off
	err := runTx(w.ctx, w.st, w.tx, func(ops store.Ops) error {
		l, err := ops.Get(w.ctx, key)
		if err != nil {
			return err
		}
		var data []byte
		if l.Found {
			data = l.Entity.Value
		}
		if need := off + len(seg); len(data) != need {
			buf := make([]byte, need)
			copy(buf, data[:min(len(data), off)])
			data = buf
		}
		copy(data[off:], seg)
		return ops.Put(w.ctx, store.Entity{Key: key, Value: data})
	})
	if err != nil {
		return ioFailure("write", key, err)
	}
	w.cur.off += len(seg)
	return nil
}

// Close deletes the chunks after the last one written and closes the writer.
// A writer that never wrote leaves no chunk at all. If pruning fails the writer
// stays open and Close can be called again.
func (w *Writer) Close() error {
	if w.closed {
		return ErrAlreadyClosed
	}
	var after *store.Key
	if w.written {
		last := w.cur.key
		after = &last
	}
	var pruned int
	err := runTx(w.ctx, w.st, w.tx, func(ops store.Ops) (err error) {
		pruned, err = pruneTail(w.ctx, ops, w.cur.parent, after)
		return err
	})
	if err != nil {
		return ioFailure("close", w.cur.key, err)
	}
	w.closed = true
	logger.Debugf("closed stream %s: %d bytes in %d chunks, %d stale chunks deleted",
		w.cur.parent, w.length, w.chunks(), pruned)
	return nil
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int64 {
	return w.length
}

func (w *Writer) chunks() uint32 {
	if !w.written {
		return 0
	}
	return w.cur.index + 1
}
