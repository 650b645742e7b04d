// pkg/store/metrics.go

package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type storeMetrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.Warnf("register metrics: %s", err)
	}
	return c
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		ops: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avestream_store_ops_total",
				Help: "Total number of store operations",
			},
			[]string{"backend", "op", "status"},
		)),
		duration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avestream_store_op_duration_seconds",
				Help:    "Latency of store operations",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"backend", "op"},
		)),
		bytes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avestream_store_bytes_total",
				Help: "Total bytes of entity values read from and written to the store",
			},
			[]string{"backend", "dir"},
		)),
	}
}

func (m *storeMetrics) observe(backend, op string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		status = "conflict"
	default:
		status = "error"
	}
	m.ops.WithLabelValues(backend, op, status).Inc()
	m.duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// Instrument records the operations of s (and of its transactions) in reg.
func Instrument(s Store, reg prometheus.Registerer) Store {
	return &instrumented{Store: s, m: newStoreMetrics(reg)}
}

type instrumented struct {
	Store
	m *storeMetrics
}

type instrumentedOps struct {
	ops     Ops
	backend string
	m       *storeMetrics
}

func (o instrumentedOps) Get(ctx context.Context, key Key) (Lookup, error) {
	start := time.Now()
	l, err := o.ops.Get(ctx, key)
	o.m.observe(o.backend, "get", start, err)
	if l.Found {
		o.m.bytes.WithLabelValues(o.backend, "read").Add(float64(len(l.Entity.Value)))
	}
	return l, err
}

func (o instrumentedOps) Put(ctx context.Context, e Entity) error {
	start := time.Now()
	err := o.ops.Put(ctx, e)
	o.m.observe(o.backend, "put", start, err)
	if err == nil {
		o.m.bytes.WithLabelValues(o.backend, "write").Add(float64(len(e.Value)))
	}
	return err
}

func (o instrumentedOps) Delete(ctx context.Context, keys ...Key) error {
	start := time.Now()
	err := o.ops.Delete(ctx, keys...)
	o.m.observe(o.backend, "delete", start, err)
	return err
}

func (o instrumentedOps) Query(ctx context.Context, q Query) ([]Key, error) {
	start := time.Now()
	keys, err := o.ops.Query(ctx, q)
	o.m.observe(o.backend, "query", start, err)
	return keys, err
}

func (s *instrumented) opsOf(ops Ops) instrumentedOps {
	return instrumentedOps{ops: ops, backend: s.Store.Name(), m: s.m}
}

func (s *instrumented) Get(ctx context.Context, key Key) (Lookup, error) {
	return s.opsOf(s.Store).Get(ctx, key)
}

func (s *instrumented) Put(ctx context.Context, e Entity) error {
	return s.opsOf(s.Store).Put(ctx, e)
}

func (s *instrumented) Delete(ctx context.Context, keys ...Key) error {
	return s.opsOf(s.Store).Delete(ctx, keys...)
}

func (s *instrumented) Query(ctx context.Context, q Query) ([]Key, error) {
	return s.opsOf(s.Store).Query(ctx, q)
}

func (s *instrumented) Begin(ctx context.Context) (Tx, error) {
	start := time.Now()
	tx, err := s.Store.Begin(ctx)
	s.m.observe(s.Store.Name(), "begin", start, err)
	if err != nil {
		return nil, err
	}
	return &instrumentedTx{instrumentedOps: s.opsOf(tx), tx: tx}, nil
}

type instrumentedTx struct {
	instrumentedOps
	tx Tx
}

func (t *instrumentedTx) Commit(ctx context.Context) error {
	start := time.Now()
	err := t.tx.Commit(ctx)
	t.m.observe(t.backend, "commit", start, err)
	return err
}

func (t *instrumentedTx) Rollback(ctx context.Context) error {
	start := time.Now()
	err := t.tx.Rollback(ctx)
	t.m.observe(t.backend, "rollback", start, err)
	return err
}
