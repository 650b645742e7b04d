// pkg/store/memory.go

package store

import (
	"context"
	"sync"

	"github.com/google/btree"
)

type memItem struct {
	enc     string
	key     Key
	value   []byte
	version uint64
}

func lessItem(a, b memItem) bool {
	return a.enc < b.enc
}

// memStore keeps entities in an ordered B-tree. Every mutation stamps the
// entity with a new version; transactions validate the versions they read.
type memStore struct {
	sync.RWMutex
	conf    *Config
	tree    *btree.BTreeG[memItem]
	version uint64
}

var _ Store = &memStore{}

func init() {
	Register("mem", newMemStore)
}

func newMemStore(driver, addr string, conf *Config) (Store, error) {
	return NewMemStore(conf), nil
}

// NewMemStore returns an empty in-process store.
func NewMemStore(conf *Config) Store {
	if conf == nil {
		conf = &Config{}
	}
	return &memStore{conf: conf, tree: btree.NewG(32, lessItem)}
}

func (m *memStore) Name() string {
	return "mem"
}

func (m *memStore) Close() error {
	return nil
}

// locked
func (m *memStore) get(enc string) (memItem, bool) {
	return m.tree.Get(memItem{enc: enc})
}

// locked
func (m *memStore) put(e Entity) {
	m.version++
	v := append([]byte(nil), e.Value...)
	m.tree.ReplaceOrInsert(memItem{enc: e.Key.Encode(), key: e.Key, value: v, version: m.version})
}

// locked
func (m *memStore) scan(q Query) []memItem {
	start, end, ok := childRange(q.Parent, q.After)
	if !ok {
		return nil
	}
	parentEnc := q.Parent.Encode()
	var items []memItem
	m.tree.AscendRange(memItem{enc: start}, memItem{enc: end}, func(it memItem) bool {
		if isChild(it.enc, parentEnc) {
			items = append(items, it)
		}
		return q.Limit <= 0 || len(items) < q.Limit
	})
	return items
}

func (m *memStore) Get(ctx context.Context, key Key) (Lookup, error) {
	m.RLock()
	defer m.RUnlock()
	it, ok := m.get(key.Encode())
	if !ok {
		return Absent, nil
	}
	return Found(Entity{Key: it.key, Value: append([]byte(nil), it.value...)}), nil
}

func (m *memStore) Put(ctx context.Context, e Entity) error {
	m.Lock()
	defer m.Unlock()
	m.put(e)
	return nil
}

func (m *memStore) Delete(ctx context.Context, keys ...Key) error {
	m.Lock()
	defer m.Unlock()
	for _, k := range keys {
		m.tree.Delete(memItem{enc: k.Encode()})
	}
	return nil
}

func (m *memStore) Query(ctx context.Context, q Query) ([]Key, error) {
	m.RLock()
	defer m.RUnlock()
	items := m.scan(q)
	keys := make([]Key, len(items))
	for i, it := range items {
		keys[i] = it.key
	}
	return keys, nil
}

func (m *memStore) Begin(ctx context.Context) (Tx, error) {
	return &memTx{
		m:      m,
		reads:  make(map[string]uint64),
		writes: newWriteBuffer(),
	}, nil
}

type rangeRead struct {
	q        Query
	versions map[string]uint64
}

type memTx struct {
	m      *memStore
	reads  map[string]uint64 // version seen, 0 if absent
	ranges []rangeRead
	writes *writeBuffer
	done   bool
}

func (t *memTx) Get(ctx context.Context, key Key) (Lookup, error) {
	if t.done {
		return Absent, ErrTxDone
	}
	enc := key.Encode()
	if l, ok := t.writes.lookup(enc); ok {
		return l, nil
	}
	t.m.RLock()
	defer t.m.RUnlock()
	it, ok := t.m.get(enc)
	if !ok {
		t.reads[enc] = 0
		return Absent, nil
	}
	t.reads[enc] = it.version
	return Found(Entity{Key: it.key, Value: append([]byte(nil), it.value...)}), nil
}

func (t *memTx) Put(ctx context.Context, e Entity) error {
	if t.done {
		return ErrTxDone
	}
	t.writes.put(e)
	return nil
}

func (t *memTx) Delete(ctx context.Context, keys ...Key) error {
	if t.done {
		return ErrTxDone
	}
	for _, k := range keys {
		t.writes.del(k)
	}
	return nil
}

func (t *memTx) Query(ctx context.Context, q Query) ([]Key, error) {
	if t.done {
		return nil, ErrTxDone
	}
	full := q
	full.Limit = 0
	t.m.RLock()
	items := t.m.scan(full)
	t.m.RUnlock()
	rr := rangeRead{q: full, versions: make(map[string]uint64, len(items))}
	keys := make([]Key, len(items))
	for i, it := range items {
		rr.versions[it.enc] = it.version
		keys[i] = it.key
	}
	t.ranges = append(t.ranges, rr)
	return t.writes.merge(q, keys), nil
}

// locked
func (t *memTx) validate() bool {
	for enc, ver := range t.reads {
		it, ok := t.m.get(enc)
		if !ok && ver != 0 || ok && it.version != ver {
			return false
		}
	}
	for _, rr := range t.ranges {
		items := t.m.scan(rr.q)
		if len(items) != len(rr.versions) {
			return false
		}
		for _, it := range items {
			if ver, ok := rr.versions[it.enc]; !ok || ver != it.version {
				return false
			}
		}
	}
	return true
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if t.writes.empty() {
		return nil
	}
	t.m.Lock()
	defer t.m.Unlock()
	if !t.validate() {
		return ErrConflict
	}
	t.writes.each(func(enc string, p *pending) {
		if p.deleted {
			t.m.tree.Delete(memItem{enc: enc})
		} else {
			t.m.put(p.entity)
		}
	})
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}
