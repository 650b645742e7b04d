// pkg/store/etcd.go

package store

import (
	"context"
	"strings"
	"time"

	plog "github.com/pingcap/log"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdStore maps every entity to one etcd key. Range reads are linearizable,
// which gives the parent-scoped queries their strong consistency.
type etcdStore struct {
	client *clientv3.Client
	prefix string
	owned  bool
}

var _ Store = &etcdStore{}

func init() {
	Register("etcd", newEtcdStore)
}

// newEtcdStore opens etcd://host1:2379,host2:2379/prefix
func newEtcdStore(driver, addr string, conf *Config) (Store, error) {
	hosts, prefix := addr, conf.Prefix
	if p := strings.IndexByte(addr, '/'); p >= 0 {
		hosts = addr[:p]
		if prefix == "" {
			prefix = strings.Trim(addr[p+1:], "/")
		}
	}
	if prefix != "" {
		prefix = "/" + prefix
	}
	timeout := conf.DialTimeout
	if timeout <= 0 {
		timeout = time.Second * 5
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(hosts, ","),
		DialTimeout: timeout,
		Logger:      plog.L(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to etcd %s", hosts)
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := client.Get(ctx, prefix+"/", clientv3.WithCountOnly()); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "reach etcd %s", hosts)
	}
	logger.Infof("Ping etcd: %s", time.Since(start))
	s := NewEtcdStore(client, prefix).(*etcdStore)
	s.owned = true
	return s, nil
}

// NewEtcdStore wraps an existing client. Closing the store leaves the client open.
func NewEtcdStore(client *clientv3.Client, prefix string) Store {
	return &etcdStore{client: client, prefix: prefix}
}

func (s *etcdStore) Name() string {
	return "etcd"
}

func (s *etcdStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *etcdStore) path(enc string) string {
	return s.prefix + enc
}

func (s *etcdStore) Get(ctx context.Context, key Key) (Lookup, error) {
	l, _, err := s.get(ctx, key)
	return l, err
}

func (s *etcdStore) get(ctx context.Context, key Key) (Lookup, int64, error) {
	resp, err := s.client.Get(ctx, s.path(key.Encode()))
	if err != nil {
		return Absent, 0, etcdError(err)
	}
	if len(resp.Kvs) == 0 {
		return Absent, 0, nil
	}
	kv := resp.Kvs[0]
	return Found(Entity{Key: key, Value: kv.Value}), kv.ModRevision, nil
}

func (s *etcdStore) Put(ctx context.Context, e Entity) error {
	_, err := s.client.Put(ctx, s.path(e.Key.Encode()), string(e.Value))
	return etcdError(err)
}

func (s *etcdStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	ops := make([]clientv3.Op, len(keys))
	for i, k := range keys {
		ops[i] = clientv3.OpDelete(s.path(k.Encode()))
	}
	_, err := s.client.Txn(ctx).Then(ops...).Commit()
	return etcdError(err)
}

func (s *etcdStore) Query(ctx context.Context, q Query) ([]Key, error) {
	keys, _, err := s.query(ctx, q)
	return keys, err
}

func (s *etcdStore) query(ctx context.Context, q Query) ([]Key, []int64, error) {
	start, end, ok := childRange(q.Parent, q.After)
	if !ok {
		return nil, nil, nil
	}
	resp, err := s.client.Get(ctx, s.path(start),
		clientv3.WithRange(s.path(end)),
		clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, nil, etcdError(err)
	}
	parentEnc := q.Parent.Encode()
	var keys []Key
	var revs []int64
	for _, kv := range resp.Kvs {
		enc := strings.TrimPrefix(string(kv.Key), s.prefix)
		if !isChild(enc, parentEnc) {
			continue
		}
		k, err := ParseKey(enc)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "corrupted key %s", kv.Key)
		}
		keys = append(keys, k)
		revs = append(revs, kv.ModRevision)
		if q.Limit > 0 && len(keys) == q.Limit {
			break
		}
	}
	return keys, revs, nil
}

// Begin starts a software transaction: reads record the mod revision they saw,
// writes are buffered, and Commit applies them in one Txn guarded by those
// revisions.
func (s *etcdStore) Begin(ctx context.Context) (Tx, error) {
	return &etcdTx{s: s, reads: make(map[string]int64), writes: newWriteBuffer()}, nil
}

type etcdTx struct {
	s      *etcdStore
	reads  map[string]int64 // path -> mod revision, 0 if absent
	writes *writeBuffer
	done   bool
}

func (t *etcdTx) Get(ctx context.Context, key Key) (Lookup, error) {
	if t.done {
		return Absent, ErrTxDone
	}
	enc := key.Encode()
	if l, ok := t.writes.lookup(enc); ok {
		return l, nil
	}
	l, rev, err := t.s.get(ctx, key)
	if err != nil {
		return Absent, err
	}
	t.reads[t.s.path(enc)] = rev
	return l, nil
}

func (t *etcdTx) Put(ctx context.Context, e Entity) error {
	if t.done {
		return ErrTxDone
	}
	t.writes.put(e)
	return nil
}

func (t *etcdTx) Delete(ctx context.Context, keys ...Key) error {
	if t.done {
		return ErrTxDone
	}
	for _, k := range keys {
		t.writes.del(k)
	}
	return nil
}

func (t *etcdTx) Query(ctx context.Context, q Query) ([]Key, error) {
	if t.done {
		return nil, ErrTxDone
	}
	full := q
	full.Limit = 0
	keys, revs, err := t.s.query(ctx, full)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		t.reads[t.s.path(k.Encode())] = revs[i]
	}
	return t.writes.merge(q, keys), nil
}

func (t *etcdTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if t.writes.empty() {
		return nil
	}
	cmps := make([]clientv3.Cmp, 0, len(t.reads))
	for p, rev := range t.reads {
		cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(p), "=", rev))
	}
	var ops []clientv3.Op
	t.writes.each(func(enc string, p *pending) {
		if p.deleted {
			ops = append(ops, clientv3.OpDelete(t.s.path(enc)))
		} else {
			ops = append(ops, clientv3.OpPut(t.s.path(enc), string(p.entity.Value)))
		}
	})
	resp, err := t.s.client.Txn(ctx).If(cmps...).Then(ops...).Commit()
	if err != nil {
		return etcdError(err)
	}
	if !resp.Succeeded {
		return ErrConflict
	}
	return nil
}

func (t *etcdTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}

func etcdError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return errors.Wrap(err, "etcd")
}
