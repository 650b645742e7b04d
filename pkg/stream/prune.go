// pkg/stream/prune.go

package stream

import (
	"context"

	"AveStream/pkg/store"
)

// pruneTail deletes the chunks of parent sorting after `after`, or all of them
// when after is nil. The query is scoped to parent, which every backend serves
// with strong consistency. Children of parent that are not chunks are kept.
func pruneTail(ctx context.Context, ops store.Ops, parent store.Key, after *store.Key) (int, error) {
	keys, err := ops.Query(ctx, store.Query{Parent: parent, After: after})
	if err != nil {
		return 0, err
	}
	chunks := keys[:0]
	for _, k := range keys {
		if _, err := ChunkIndex(parent, k); err == nil {
			chunks = append(chunks, k)
		}
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if err = ops.Delete(ctx, chunks...); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
