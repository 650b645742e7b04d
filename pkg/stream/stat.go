// pkg/stream/stat.go

package stream

import (
	"context"
	"io"

	"AveStream/pkg/store"
)

// ChunkInfo describes one stored chunk.
type ChunkInfo struct {
	Index uint32 `json:"index"`
	Key   string `json:"key"`
	Size  int    `json:"size"`
}

// Info describes a stored stream.
type Info struct {
	Stream string      `json:"stream"`
	Length int64       `json:"length"`
	Chunks []ChunkInfo `json:"chunks,omitempty"`
}

// Stat lists the chunks of the stream named parent. Run it inside a
// transaction to get a consistent view while a writer is active.
func Stat(ctx context.Context, ops store.Ops, parent store.Key) (*Info, error) {
	if parent.IsZero() || ops == nil {
		return nil, ErrInvalidArgument
	}
	keys, err := ops.Query(ctx, store.Query{Parent: parent})
	if err != nil {
		return nil, ioFailure("stat", parent, err)
	}
	info := &Info{Stream: parent.String(), Chunks: []ChunkInfo{}}
	for _, k := range keys {
		idx, err := ChunkIndex(parent, k)
		if err != nil {
			continue
		}
		l, err := ops.Get(ctx, k)
		if err != nil {
			return nil, ioFailure("stat", k, err)
		}
		if !l.Found {
			continue
		}
		info.Chunks = append(info.Chunks, ChunkInfo{Index: idx, Key: k.String(), Size: len(l.Entity.Value)})
		info.Length += int64(len(l.Entity.Value))
	}
	return info, nil
}

// Remove deletes every chunk of the stream named parent in one transaction and
// returns how many there were.
func Remove(ctx context.Context, st store.Store, parent store.Key, opts ...Option) (int, error) {
	o, err := newOptions(opts)
	if err != nil {
		return 0, err
	}
	if parent.IsZero() || (st == nil && o.tx == nil) {
		return 0, ErrInvalidArgument
	}
	var n int
	err = runTx(ctx, st, o.tx, func(ops store.Ops) (err error) {
		n, err = pruneTail(ctx, ops, parent, nil)
		return err
	})
	if err != nil {
		return 0, ioFailure("remove", parent, err)
	}
	logger.Debugf("removed %d chunks of %s", n, parent)
	return n, nil
}

// Copy moves src to dst with a buffer of one chunk, so that a Writer stores
// full chunks with one transaction each.
func Copy(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = MaxChunkSize
	}
	return io.CopyBuffer(dst, src, make([]byte, chunkSize))
}
