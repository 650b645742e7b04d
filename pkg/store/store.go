// pkg/store/store.go

// Package store is the key-value entity store consumed by the chunked streams,
// with Redis, etcd, PostgreSQL and in-memory backends.
package store

import (
	"context"

	"AveStream/pkg/utils"

	"github.com/pkg/errors"
)

var logger = utils.GetLogger("avestream")

var (
	// ErrConflict is returned when a transaction lost a race with another writer.
	ErrConflict = errors.New("transaction conflict")
	// ErrTxDone is returned by any operation on a committed or rolled back transaction.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrReadOnly is returned by mutations on a read-only store.
	ErrReadOnly = errors.New("store is read-only")
)

// Entity is a raw value stored under a key.
type Entity struct {
	Key   Key
	Value []byte
}

// Lookup is the result of Get: either a found entity or absent.
type Lookup struct {
	Entity Entity
	Found  bool
}

// Found wraps a present entity.
func Found(e Entity) Lookup {
	return Lookup{Entity: e, Found: true}
}

// Absent is the Lookup of a missing key.
var Absent = Lookup{}

// Query selects the keys of the direct children of Parent, ordered by key.
// After, when set, is an exclusive lower bound. Queries are strongly consistent
// within the parent scope on every backend.
type Query struct {
	Parent Key
	After  *Key
	Limit  int
}

func (q Query) matches(k Key) bool {
	if !k.ChildOf(q.Parent) {
		return false
	}
	return q.After == nil || k.Compare(*q.After) > 0
}

// Ops are the entity operations available both on a store and inside a transaction.
type Ops interface {
	Get(ctx context.Context, key Key) (Lookup, error)
	Put(ctx context.Context, e Entity) error
	Delete(ctx context.Context, keys ...Key) error
	Query(ctx context.Context, q Query) ([]Key, error)
}

// Tx is an optimistic transaction. Reads inside it see its own pending writes;
// Commit fails with ErrConflict if anything it read changed meanwhile.
// After Commit or Rollback every call returns ErrTxDone.
type Tx interface {
	Ops
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a key-value entity store. Operations outside a transaction are
// individually atomic.
type Store interface {
	Ops
	Name() string
	Begin(ctx context.Context) (Tx, error)
	Close() error
}
