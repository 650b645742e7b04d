// Package storetest checks that a store backend behaves like the others.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"AveStream/pkg/store"

	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one test.
type Factory func(t *testing.T) store.Store

// Run runs the conformance suite against the stores returned by newStore.
func Run(t *testing.T, newStore Factory) {
	for _, c := range []struct {
		name string
		fn   func(t *testing.T, ctx context.Context, s store.Store)
	}{
		{"GetPutDelete", testGetPutDelete},
		{"Query", testQuery},
		{"QueryEscaping", testQueryEscaping},
		{"TxReadYourWrites", testTxReadYourWrites},
		{"TxRollback", testTxRollback},
		{"TxConflict", testTxConflict},
		{"TxIndependentKeys", testTxIndependentKeys},
	} {
		t.Run(c.name, func(t *testing.T) {
			s := newStore(t)
			c.fn(t, context.Background(), s)
		})
	}
}

var (
	root  = store.NewKey("Blob", "root", nil)
	other = store.NewKey("Blob", "other", nil)
)

func child(parent store.Key, i int) store.Key {
	return store.NewKey("Blob", fmt.Sprintf("%04d", i), &parent)
}

func requireValue(t *testing.T, ops store.Ops, key store.Key, want []byte) {
	t.Helper()
	l, err := ops.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, l.Found, "%s is missing", key)
	require.Equal(t, string(want), string(l.Entity.Value))
	require.True(t, key.Equal(l.Entity.Key))
}

func requireAbsent(t *testing.T, ops store.Ops, key store.Key) {
	t.Helper()
	l, err := ops.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, l.Found, "%s should not exist", key)
}

func names(keys []store.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Name
	}
	return out
}

func testGetPutDelete(t *testing.T, ctx context.Context, s store.Store) {
	k := child(root, 1)
	requireAbsent(t, s, k)

	require.NoError(t, s.Put(ctx, store.Entity{Key: k, Value: []byte("v1")}))
	requireValue(t, s, k, []byte("v1"))
	require.NoError(t, s.Put(ctx, store.Entity{Key: k, Value: []byte("value 2")}))
	requireValue(t, s, k, []byte("value 2"))

	empty := child(root, 2)
	require.NoError(t, s.Put(ctx, store.Entity{Key: empty, Value: []byte{}}))
	requireValue(t, s, empty, nil)

	require.NoError(t, s.Delete(ctx, k, empty, child(root, 3)))
	requireAbsent(t, s, k)
	requireAbsent(t, s, empty)
	require.NoError(t, s.Delete(ctx))
}

func testQuery(t *testing.T, ctx context.Context, s store.Store) {
	for _, i := range []int{3, 0, 12, 7, 1} {
		require.NoError(t, s.Put(ctx, store.Entity{Key: child(root, i), Value: []byte{byte(i)}}))
	}
	c7 := child(root, 7)
	require.NoError(t, s.Put(ctx, store.Entity{Key: child(c7, 1), Value: []byte("grandchild")}))
	require.NoError(t, s.Put(ctx, store.Entity{Key: child(other, 5), Value: []byte("sibling")}))
	require.NoError(t, s.Put(ctx, store.Entity{Key: root, Value: []byte("parent")}))
	rootx := store.NewKey("Blob", "rootx", nil)
	require.NoError(t, s.Put(ctx, store.Entity{Key: child(rootx, 2), Value: []byte("prefix")}))

	keys, err := s.Query(ctx, store.Query{Parent: root})
	require.NoError(t, err)
	require.Equal(t, []string{"0000", "0001", "0003", "0007", "0012"}, names(keys))
	for _, k := range keys {
		require.True(t, k.ChildOf(root))
	}

	after := child(root, 3)
	keys, err = s.Query(ctx, store.Query{Parent: root, After: &after})
	require.NoError(t, err)
	require.Equal(t, []string{"0007", "0012"}, names(keys))

	keys, err = s.Query(ctx, store.Query{Parent: root, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"0000", "0001"}, names(keys))

	last := child(root, 12)
	keys, err = s.Query(ctx, store.Query{Parent: root, After: &last})
	require.NoError(t, err)
	require.Empty(t, keys)

	keys, err = s.Query(ctx, store.Query{Parent: c7})
	require.NoError(t, err)
	require.Equal(t, []string{"0001"}, names(keys))

	keys, err = s.Query(ctx, store.Query{Parent: store.NewKey("Blob", "nothing", nil)})
	require.NoError(t, err)
	require.Empty(t, keys)
}

func testQueryEscaping(t *testing.T, ctx context.Context, s store.Store) {
	parent := store.NewKey("Blob", "a/b:c d%", nil)
	odd := []string{"x/y", "x:y", "x y", "x%y", "ü"}
	for _, n := range odd {
		k := store.NewKey("Blob", n, &parent)
		require.NoError(t, s.Put(ctx, store.Entity{Key: k, Value: []byte(n)}))
	}
	keys, err := s.Query(ctx, store.Query{Parent: parent})
	require.NoError(t, err)
	require.Len(t, keys, len(odd))
	for _, k := range keys {
		requireValue(t, s, k, []byte(k.Name))
	}
	for i := 1; i < len(keys); i++ {
		require.Negative(t, keys[i-1].Compare(keys[i]))
	}
}

func testTxReadYourWrites(t *testing.T, ctx context.Context, s store.Store) {
	require.NoError(t, s.Put(ctx, store.Entity{Key: child(root, 1), Value: []byte("old")}))
	require.NoError(t, s.Put(ctx, store.Entity{Key: child(root, 2), Value: []byte("gone")}))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, store.Entity{Key: child(root, 1), Value: []byte("new")}))
	require.NoError(t, tx.Put(ctx, store.Entity{Key: child(root, 3), Value: []byte("added")}))
	require.NoError(t, tx.Delete(ctx, child(root, 2)))

	requireValue(t, tx, child(root, 1), []byte("new"))
	requireValue(t, tx, child(root, 3), []byte("added"))
	requireAbsent(t, tx, child(root, 2))
	keys, err := tx.Query(ctx, store.Query{Parent: root})
	require.NoError(t, err)
	require.Equal(t, []string{"0001", "0003"}, names(keys))

	// invisible outside until committed
	requireValue(t, s, child(root, 1), []byte("old"))
	requireAbsent(t, s, child(root, 3))

	require.NoError(t, tx.Commit(ctx))
	requireValue(t, s, child(root, 1), []byte("new"))
	requireValue(t, s, child(root, 3), []byte("added"))
	requireAbsent(t, s, child(root, 2))
	keys, err = s.Query(ctx, store.Query{Parent: root})
	require.NoError(t, err)
	require.Equal(t, []string{"0001", "0003"}, names(keys))

	_, err = tx.Get(ctx, child(root, 1))
	require.ErrorIs(t, err, store.ErrTxDone)
	require.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
}

func testTxRollback(t *testing.T, ctx context.Context, s store.Store) {
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	requireAbsent(t, tx, child(root, 1))
	require.NoError(t, tx.Put(ctx, store.Entity{Key: child(root, 1), Value: []byte("v")}))
	require.NoError(t, tx.Rollback(ctx))
	requireAbsent(t, s, child(root, 1))

	require.ErrorIs(t, tx.Put(ctx, store.Entity{Key: child(root, 1), Value: []byte("v")}), store.ErrTxDone)
	require.ErrorIs(t, tx.Rollback(ctx), store.ErrTxDone)
	require.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
}

func testTxConflict(t *testing.T, ctx context.Context, s store.Store) {
	k := child(root, 1)
	require.NoError(t, s.Put(ctx, store.Entity{Key: k, Value: []byte("v1")}))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	requireValue(t, tx, k, []byte("v1"))
	require.NoError(t, tx.Put(ctx, store.Entity{Key: k, Value: []byte("from tx")}))

	require.NoError(t, s.Put(ctx, store.Entity{Key: k, Value: []byte("v2")}))
	require.ErrorIs(t, tx.Commit(ctx), store.ErrConflict)
	requireValue(t, s, k, []byte("v2"))

	// a key read as absent conflicts with its creation
	k2 := child(root, 2)
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	requireAbsent(t, tx, k2)
	require.NoError(t, tx.Put(ctx, store.Entity{Key: k2, Value: []byte("from tx")}))
	require.NoError(t, s.Put(ctx, store.Entity{Key: k2, Value: []byte("first")}))
	require.ErrorIs(t, tx.Commit(ctx), store.ErrConflict)
	requireValue(t, s, k2, []byte("first"))
}

func testTxIndependentKeys(t *testing.T, ctx context.Context, s store.Store) {
	k := child(root, 1)
	require.NoError(t, s.Put(ctx, store.Entity{Key: k, Value: []byte("v1")}))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	requireValue(t, tx, k, []byte("v1"))
	require.NoError(t, tx.Put(ctx, store.Entity{Key: k, Value: []byte("v2")}))

	require.NoError(t, s.Put(ctx, store.Entity{Key: child(other, 1), Value: []byte("unrelated")}))
	require.NoError(t, tx.Commit(ctx))
	requireValue(t, s, k, []byte("v2"))
}
