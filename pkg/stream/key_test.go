package stream

import (
	"testing"

	"AveStream/pkg/store"

	"github.com/stretchr/testify/require"
)

func TestChunkKey(t *testing.T) {
	parent := store.NewKey("Blob", "a/b c", nil)
	k := ChunkKey(parent, 42)
	require.Equal(t, "Blob", k.Kind)
	require.Equal(t, "0000000042", k.Name)
	require.True(t, k.ChildOf(parent))
	require.Equal(t, "/Blob:a%2Fb+c/Blob:0000000042", k.Encode())

	idx, err := ChunkIndex(parent, k)
	require.NoError(t, err)
	require.Equal(t, uint32(42), idx)

	last := ChunkKey(parent, ^uint32(0))
	idx, err = ChunkIndex(parent, last)
	require.NoError(t, err)
	require.Equal(t, ^uint32(0), idx)
}

func TestChunkKeyOrder(t *testing.T) {
	parent := store.NewKey("Blob", "x", nil)
	indexes := []uint32{0, 1, 9, 10, 11, 99, 100, 1000, 123456789, ^uint32(0)}
	for i := 1; i < len(indexes); i++ {
		a, b := ChunkKey(parent, indexes[i-1]), ChunkKey(parent, indexes[i])
		require.Negative(t, a.Compare(b), "%s must sort before %s", a, b)
	}
}

func TestChunkIndexRejects(t *testing.T) {
	parent := store.NewKey("Blob", "x", nil)
	other := store.NewKey("Blob", "y", nil)
	for _, k := range []store.Key{
		store.NewKey("Meta", "0000000001", &parent),
		store.NewKey("Blob", "1", &parent),
		store.NewKey("Blob", "00000000zz", &parent),
		ChunkKey(other, 1),
		parent,
	} {
		_, err := ChunkIndex(parent, k)
		require.Error(t, err, "%s", k)
	}
}
