package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s := Instrument(NewMemStore(nil), reg)
	m := newStoreMetrics(reg)

	k := NewKey("Blob", "k", nil)
	require.NoError(t, s.Put(ctx, Entity{Key: k, Value: []byte("12345")}))
	_, err := s.Get(ctx, k)
	require.NoError(t, err)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Get(ctx, k)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, Entity{Key: k, Value: []byte("tx")}))
	require.NoError(t, s.Put(ctx, Entity{Key: k, Value: []byte("race")}))
	require.ErrorIs(t, tx.Commit(ctx), ErrConflict)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues("mem", "get", "ok")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.ops.WithLabelValues("mem", "put", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("mem", "commit", "conflict")))
	require.Equal(t, 10.0, testutil.ToFloat64(m.bytes.WithLabelValues("mem", "read")))
	require.Equal(t, 11.0, testutil.ToFloat64(m.bytes.WithLabelValues("mem", "write")))
}
