// pkg/stream/key.go

// Package stream stores byte streams of any length in a key-value entity store
// whose values are size-capped, as ordered chunks under a stream identity.
package stream

import (
	"math"
	"strconv"

	"AveStream/pkg/store"

	"github.com/pkg/errors"
)

// MaxChunkSize is the largest payload of one chunk, kept below the 1 MB entity
// limit of the stores to leave room for the key and entity overhead.
const MaxChunkSize = 1000000 - 10000

// indexWidth zero-pads chunk names so their byte order is their numeric order.
const indexWidth = 10

// ChunkKey returns the key of chunk index of the stream named parent. The chunk
// has the kind of its parent and the decimal index as name.
func ChunkKey(parent store.Key, index uint32) store.Key {
	name := strconv.FormatUint(uint64(index), 10)
	for len(name) < indexWidth {
		name = "0" + name
	}
	p := parent
	return store.NewKey(parent.Kind, name, &p)
}

// ChunkIndex reverses ChunkKey.
func ChunkIndex(parent, key store.Key) (uint32, error) {
	if !key.ChildOf(parent) || key.Kind != parent.Kind || len(key.Name) != indexWidth {
		return 0, errors.Errorf("%s is not a chunk of %s", key, parent)
	}
	idx, err := strconv.ParseUint(key.Name, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "chunk index of %s", key)
	}
	return uint32(idx), nil
}

// cursor is the position of a reader or a writer inside its stream.
type cursor struct {
	parent store.Key
	index  uint32
	off    int
	key    store.Key
}

func newCursor(parent store.Key) cursor {
	return cursor{parent: parent, key: ChunkKey(parent, 0)}
}

// advance moves to the start of the next chunk. It returns false on the last
// chunk index, where the cursor stays.
func (c *cursor) advance() bool {
	if c.index == math.MaxUint32 {
		return false
	}
	c.index++
	c.off = 0
	c.key = ChunkKey(c.parent, c.index)
	return true
}
