package stream

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand"
	"testing"

	"AveStream/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 10

var testStream = store.NewKey("Blob", "report.bin", nil)

func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// writeStream writes data in parts of the given sizes, the rest in one call.
func writeStream(t *testing.T, st store.Store, data []byte, parts ...int) {
	t.Helper()
	w, err := NewWriter(context.Background(), st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	for _, p := range parts {
		n, err := w.Write(data[:p])
		require.NoError(t, err)
		require.Equal(t, p, n)
		data = data[p:]
	}
	if len(data) > 0 {
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func readStream(t *testing.T, st store.Store, step int) []byte {
	t.Helper()
	r, err := NewReader(context.Background(), st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	defer r.Close()
	var out []byte
	buf := make([]byte, step)
	for {
		n, err := r.Read(buf)
		if err == io.EOF {
			require.Equal(t, 0, n)
			break
		}
		require.NoError(t, err)
		out = append(out, buf[:n]...)
	}
	require.Equal(t, int64(len(out)), r.Offset())
	return out
}

func chunkSizes(t *testing.T, ops store.Ops) []int {
	t.Helper()
	info, err := Stat(context.Background(), ops, testStream)
	require.NoError(t, err)
	sizes := []int{}
	for i, c := range info.Chunks {
		require.Equal(t, uint32(i), c.Index, "chunk indexes must be contiguous")
		sizes = append(sizes, c.Size)
	}
	return sizes
}

func TestWriteThenReadInIncrements(t *testing.T) {
	st := store.NewMemStore(nil)
	data := sequence(25)
	writeStream(t, st, data)
	require.Equal(t, []int{10, 10, 5}, chunkSizes(t, st))

	r, err := NewReader(context.Background(), st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	buf := make([]byte, 7)
	var got []byte
	for _, want := range []int{7, 7, 7, 4} {
		n, err := r.Read(buf)
		require.NoError(t, err)
		require.Equal(t, want, n)
		got = append(got, buf[:n]...)
	}
	_, err = r.Read(buf)
	require.Equal(t, io.EOF, err)
	require.Equal(t, data, got)
	require.NoError(t, r.Close())
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		st := store.NewMemStore(nil)
		data := make([]byte, rng.Intn(100))
		rng.Read(data)

		var parts []int
		for rest := len(data); rest > 0; {
			p := rng.Intn(rest + 1)
			parts = append(parts, p)
			rest -= p
		}
		writeStream(t, st, data, parts...)

		for _, step := range []int{1, 3, testChunkSize, 64} {
			require.Equal(t, data, append([]byte{}, readStream(t, st, step)...), "write parts %v, read step %d", parts, step)
		}
	}
}

func TestReadByte(t *testing.T) {
	st := store.NewMemStore(nil)
	data := sequence(21)
	writeStream(t, st, data)

	r, err := NewReader(context.Background(), st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	var got []byte
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, b)
	}
	require.Equal(t, data, got)
}

func TestTruncateShorterRevision(t *testing.T) {
	st := store.NewMemStore(nil)
	writeStream(t, st, sequence(35))
	require.Equal(t, []int{10, 10, 10, 5}, chunkSizes(t, st))

	short := bytes.Repeat([]byte{0xff}, 12)
	writeStream(t, st, short)
	require.Equal(t, []int{10, 2}, chunkSizes(t, st))
	require.Equal(t, short, readStream(t, st, 4))
}

func TestShrinkInPlace(t *testing.T) {
	st := store.NewMemStore(nil)
	writeStream(t, st, []byte("abcdef"))
	writeStream(t, st, []byte("xyz"))
	require.Equal(t, []int{3}, chunkSizes(t, st))
	require.Equal(t, []byte("xyz"), readStream(t, st, 10))
}

func TestChunkBoundaries(t *testing.T) {
	cases := []struct {
		name  string
		size  int
		parts []int
		want  []int
	}{
		{"exactly one chunk", 10, nil, []int{10}},
		{"one byte over", 11, nil, []int{10, 1}},
		{"advance on full chunk", 15, []int{10}, []int{10, 5}},
		{"byte by byte", 12, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, []int{10, 2}},
		{"two full chunks", 20, []int{5}, []int{10, 10}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := store.NewMemStore(nil)
			data := sequence(c.size)
			writeStream(t, st, data, c.parts...)
			assert.Equal(t, c.want, chunkSizes(t, st))
			assert.Equal(t, data, readStream(t, st, 3))
		})
	}
}

func TestReadWithSmallerChunkSize(t *testing.T) {
	st := store.NewMemStore(nil)
	writeStream(t, st, sequence(25))

	r, err := NewReader(context.Background(), st, testStream, WithChunkSize(4))
	require.NoError(t, err)
	n, err := r.Read(make([]byte, 64))
	require.Equal(t, 0, n)
	var failure *IOFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, "read", failure.Op)
	require.Equal(t, ChunkKey(testStream, 0), failure.Key)
	require.False(t, IsConflict(err))
}

func TestLastChunkIndex(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)
	last := ChunkKey(testStream, math.MaxUint32)

	w, err := NewWriter(ctx, st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	w.cur.index, w.cur.key = math.MaxUint32, last
	n, err := w.Write(sequence(10))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	n, err = w.Write([]byte{10})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, ErrStreamTooLong)
	var failure *IOFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, "write", failure.Op)
	require.Equal(t, last, failure.Key)
	require.Equal(t, int64(10), w.Len())
	require.NoError(t, w.Close())

	info, err := Stat(ctx, st, testStream)
	require.NoError(t, err)
	require.Equal(t, []ChunkInfo{{Index: math.MaxUint32, Key: last.String(), Size: 10}}, info.Chunks)

	r, err := NewReader(ctx, st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	r.cur.index, r.cur.key = math.MaxUint32, last
	buf := make([]byte, 64)
	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, sequence(10), buf[:n])
	n, err = r.Read(buf)
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)
}

func TestEmptyStream(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)

	r, err := NewReader(ctx, st, testStream)
	require.NoError(t, err)
	n, err := r.Read(make([]byte, 8))
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
	_, err = r.ReadByte()
	require.Equal(t, io.EOF, err)
	n, err = r.Read(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	w, err := NewWriter(ctx, st, testStream)
	require.NoError(t, err)
	n, err = w.Write(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, w.Close())
	require.Equal(t, []int{0}, chunkSizes(t, st))
	require.Empty(t, readStream(t, st, 5))
}

func TestCloseWithoutWrite(t *testing.T) {
	st := store.NewMemStore(nil)
	writeStream(t, st, sequence(25))

	w, err := NewWriter(context.Background(), st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Empty(t, chunkSizes(t, st))
	require.Equal(t, int64(0), w.Len())
}

func TestPruneKeepsOtherChildren(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)
	meta := store.NewKey("Meta", "owner", &testStream)
	require.NoError(t, st.Put(ctx, store.Entity{Key: meta, Value: []byte("alice")}))
	other := store.NewKey("Blob", "other.bin", nil)
	require.NoError(t, st.Put(ctx, store.Entity{Key: ChunkKey(other, 3), Value: []byte("x")}))

	writeStream(t, st, sequence(30))
	writeStream(t, st, sequence(5))

	l, err := st.Get(ctx, meta)
	require.NoError(t, err)
	require.True(t, l.Found)
	l, err = st.Get(ctx, ChunkKey(other, 3))
	require.NoError(t, err)
	require.True(t, l.Found)
	require.Equal(t, []int{5}, chunkSizes(t, st))
}

func TestClosedStreams(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)

	w, err := NewWriter(ctx, st, testStream)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("more"))
	require.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = w.Write(nil)
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.ErrorIs(t, w.Close(), ErrAlreadyClosed)

	r, err := NewReader(ctx, st, testStream)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	_, err = r.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = r.ReadByte()
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.ErrorIs(t, r.Close(), ErrAlreadyClosed)
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)

	_, err := NewWriter(ctx, st, store.Key{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewWriter(ctx, nil, testStream)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewWriter(ctx, st, testStream, WithChunkSize(0))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewReader(ctx, st, store.Key{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewReader(ctx, nil, testStream)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Remove(ctx, st, store.Key{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Stat(ctx, st, store.Key{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	_, err = NewWriter(ctx, nil, testStream, WithTx(tx))
	require.NoError(t, err)
}

func TestLen(t *testing.T) {
	st := store.NewMemStore(nil)
	w, err := NewWriter(context.Background(), st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = w.Write(sequence(7))
		require.NoError(t, err)
	}
	require.Equal(t, int64(28), w.Len())
	require.NoError(t, w.Close())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)
	writeStream(t, st, sequence(42))

	n, err := Remove(ctx, st, testStream)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Empty(t, chunkSizes(t, st))

	n, err = Remove(ctx, st, testStream)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStat(t *testing.T) {
	st := store.NewMemStore(nil)
	writeStream(t, st, sequence(23))

	info, err := Stat(context.Background(), st, testStream)
	require.NoError(t, err)
	require.Equal(t, testStream.String(), info.Stream)
	require.Equal(t, int64(23), info.Length)
	require.Len(t, info.Chunks, 3)
	require.Equal(t, ChunkKey(testStream, 2).String(), info.Chunks[2].Key)
	require.Equal(t, 3, info.Chunks[2].Size)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(nil)
	data := sequence(95)

	w, err := NewWriter(ctx, st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	n, err := Copy(w, bytes.NewReader(data), testChunkSize)
	require.NoError(t, err)
	require.Equal(t, int64(95), n)
	require.NoError(t, w.Close())

	r, err := NewReader(ctx, st, testStream, WithChunkSize(testChunkSize))
	require.NoError(t, err)
	var out bytes.Buffer
	n, err = Copy(&out, r, testChunkSize)
	require.NoError(t, err)
	require.Equal(t, int64(95), n)
	require.Equal(t, data, out.Bytes())
}

func TestRedisRoundTrip(t *testing.T) {
	st := newMiniRedisStore(t)
	data := sequence(57)
	writeStream(t, st, data, 3, 17)
	require.Equal(t, []int{10, 10, 10, 10, 10, 7}, chunkSizes(t, st))
	require.Equal(t, data, readStream(t, st, 6))

	writeStream(t, st, data[:14])
	require.Equal(t, []int{10, 4}, chunkSizes(t, st))
	require.Equal(t, data[:14], readStream(t, st, 100))
}
