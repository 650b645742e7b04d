package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyEncode(t *testing.T) {
	root := NewKey("Blob", "a b/c", nil)
	k := NewKey("Part", "x:y", &root)
	require.Equal(t, "/Blob:a+b%2Fc/Part:x%3Ay", k.Encode())
	require.Equal(t, k.Encode(), k.String())
	require.True(t, k.ChildOf(root))
	require.False(t, root.ChildOf(k))
	require.False(t, NewKey("Part", "x:y", nil).ChildOf(root))
	require.True(t, Key{}.IsZero())
	require.False(t, root.IsZero())
}

func TestParseKey(t *testing.T) {
	root := NewKey("Blob", "a b/c", nil)
	k := NewKey("Part", "ü%", &root)
	for _, s := range []string{k.Encode(), k.Encode()[1:]} {
		parsed, err := ParseKey(s)
		require.NoError(t, err)
		require.True(t, parsed.Equal(k))
		require.Equal(t, "ü%", parsed.Name)
		require.True(t, parsed.ChildOf(root))
	}

	for _, s := range []string{"", "/", "/Blob", "/:name", "/Blob:a/", "/Blob:%zz"} {
		_, err := ParseKey(s)
		require.Error(t, err, "%q", s)
	}
}

func TestKeyOrder(t *testing.T) {
	p := NewKey("Blob", "p", nil)
	a := NewKey("Blob", "a", &p)
	b := NewKey("Blob", "b", &p)
	ga := NewKey("Blob", "z", &a)
	require.Negative(t, a.Compare(b))
	require.Negative(t, p.Compare(a))
	// descendants of a sort between a and b
	require.Negative(t, a.Compare(ga))
	require.Negative(t, ga.Compare(b))
	require.Zero(t, a.Compare(NewKey("Blob", "a", &p)))
}

func TestChildRange(t *testing.T) {
	p := NewKey("Blob", "p", nil)
	start, end, ok := childRange(p, nil)
	require.True(t, ok)
	require.Equal(t, "/Blob:p/", start)
	require.Equal(t, "/Blob:p0", end)

	after := NewKey("Blob", "5", &p)
	start, _, ok = childRange(p, &after)
	require.True(t, ok)
	require.Equal(t, "/Blob:p/Blob:5\x00", start)

	beyond := NewKey("Blob", "q", nil)
	_, _, ok = childRange(p, &beyond)
	require.False(t, ok)

	require.True(t, isChild("/Blob:p/Blob:5", "/Blob:p"))
	require.False(t, isChild("/Blob:p/Blob:5/Blob:1", "/Blob:p"))
	require.False(t, isChild("/Blob:px/Blob:5", "/Blob:p"))
}

func TestWriteBufferMerge(t *testing.T) {
	p := NewKey("Blob", "p", nil)
	k := func(n string) Key { return NewKey("Blob", n, &p) }
	b := newWriteBuffer()
	require.True(t, b.empty())
	b.put(Entity{Key: k("2"), Value: []byte("x")})
	b.del(k("3"))
	b.put(Entity{Key: NewKey("Blob", "9", nil), Value: []byte("elsewhere")})
	require.False(t, b.empty())

	merged := b.merge(Query{Parent: p}, []Key{k("1"), k("3"), k("4")})
	require.Equal(t, []string{"1", "2", "4"}, keyNames(merged))

	after := k("1")
	merged = b.merge(Query{Parent: p, After: &after, Limit: 1}, []Key{k("3"), k("4")})
	require.Equal(t, []string{"2"}, keyNames(merged))

	l, ok := b.lookup(k("3").Encode())
	require.True(t, ok)
	require.False(t, l.Found)
	_, ok = b.lookup(k("1").Encode())
	require.False(t, ok)
}

func keyNames(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Name
	}
	return out
}
