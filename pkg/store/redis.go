// pkg/store/redis.go

package store

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"AveStream/pkg/version"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// redisStore keeps every entity in a string key "e<key>" and the children of
// each parent in a sorted set "x<parent>" whose members all have score 0, so
// ZRANGEBYLEX walks them in key order.
type redisStore struct {
	conf   *Config
	rdb    *redis.Client
	prefix string
}

var _ Store = &redisStore{}

func init() {
	Register("redis", newRedisStore)
	Register("rediss", newRedisStore)
}

// newRedisStore return a store using Redis.
func newRedisStore(driver, addr string, conf *Config) (Store, error) {
	url := driver + "://" + addr
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", url)
	}

	var rdb *redis.Client
	if strings.Contains(opt.Addr, ",") {
		var fopt redis.FailoverOptions
		ps := strings.Split(opt.Addr, ",")
		fopt.MasterName = ps[0]
		fopt.SentinelAddrs = ps[1:]

		defaultSentinelPort := "26379"
		for i, saddr := range fopt.SentinelAddrs {
			h, p, err := net.SplitHostPort(saddr)
			if err != nil {
				fopt.SentinelAddrs[i] = net.JoinHostPort(saddr, defaultSentinelPort)
			} else if p == "" {
				fopt.SentinelAddrs[i] = net.JoinHostPort(h, defaultSentinelPort)
			}
		}

		fopt.Username = opt.Username
		fopt.Password = opt.Password
		if fopt.Password == "" && os.Getenv("REDIS_PASSWORD") != "" {
			fopt.Password = os.Getenv("REDIS_PASSWORD")
		}
		fopt.SentinelPassword = os.Getenv("SENTINEL_PASSWORD")
		fopt.DB = opt.DB
		fopt.ClientName = version.UserAgent()
		fopt.TLSConfig = opt.TLSConfig
		fopt.MaxRetries = conf.Retries
		fopt.MinRetryBackoff = time.Millisecond * 100
		fopt.MaxRetryBackoff = time.Minute * 1
		fopt.DialTimeout = conf.DialTimeout
		fopt.ReadTimeout = time.Second * 30
		fopt.WriteTimeout = time.Second * 5
		rdb = redis.NewFailoverClient(&fopt)
	} else {
		if opt.Password == "" && os.Getenv("REDIS_PASSWORD") != "" {
			opt.Password = os.Getenv("REDIS_PASSWORD")
		}
		opt.ClientName = version.UserAgent()
		opt.MaxRetries = conf.Retries
		opt.MinRetryBackoff = time.Millisecond * 100
		opt.MaxRetryBackoff = time.Minute * 1
		if conf.DialTimeout > 0 {
			opt.DialTimeout = conf.DialTimeout
		}
		opt.ReadTimeout = time.Second * 30
		opt.WriteTimeout = time.Second * 5
		rdb = redis.NewClient(opt)
	}
	redis.SetLogger(redisLogger{})

	start := time.Now()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	logger.Infof("Ping redis: %s", time.Since(start))
	return NewRedisStore(rdb, conf.Prefix), nil
}

type redisLogger struct{}

func (redisLogger) Printf(ctx context.Context, format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

// NewRedisStore wraps an existing client. Every key is namespaced by prefix.
func NewRedisStore(rdb *redis.Client, prefix string) Store {
	return &redisStore{conf: &Config{Prefix: prefix}, rdb: rdb, prefix: prefix}
}

func (r *redisStore) Name() string {
	return "redis"
}

func (r *redisStore) Close() error {
	return r.rdb.Close()
}

func (r *redisStore) entityKey(enc string) string {
	return r.prefix + "e" + enc
}

func (r *redisStore) indexKey(parent *Key) string {
	if parent == nil {
		return r.prefix + "x"
	}
	return r.prefix + "x" + parent.Encode()
}

func (r *redisStore) lexRange(q Query) (string, string) {
	lo := "-"
	if q.After != nil {
		lo = "(" + q.After.Encode()
	}
	return lo, "+"
}

func (r *redisStore) parseMembers(q Query, members []string) ([]Key, error) {
	keys := make([]Key, 0, len(members))
	for _, m := range members {
		k, err := ParseKey(m)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupted index %s", r.indexKey(&q.Parent))
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (r *redisStore) Get(ctx context.Context, key Key) (Lookup, error) {
	v, err := r.rdb.Get(ctx, r.entityKey(key.Encode())).Bytes()
	if errors.Is(err, redis.Nil) {
		return Absent, nil
	}
	if err != nil {
		return Absent, redisError(err)
	}
	return Found(Entity{Key: key, Value: v}), nil
}

func (r *redisStore) Put(ctx context.Context, e Entity) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.stagePut(ctx, pipe, e)
		return nil
	})
	return redisError(err)
}

func (r *redisStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			r.stageDelete(ctx, pipe, k)
		}
		return nil
	})
	return redisError(err)
}

func (r *redisStore) stagePut(ctx context.Context, pipe redis.Pipeliner, e Entity) {
	enc := e.Key.Encode()
	pipe.Set(ctx, r.entityKey(enc), e.Value, 0)
	pipe.ZAdd(ctx, r.indexKey(e.Key.Parent), redis.Z{Score: 0, Member: enc})
}

func (r *redisStore) stageDelete(ctx context.Context, pipe redis.Pipeliner, k Key) {
	enc := k.Encode()
	pipe.Del(ctx, r.entityKey(enc))
	pipe.ZRem(ctx, r.indexKey(k.Parent), enc)
}

func (r *redisStore) Query(ctx context.Context, q Query) ([]Key, error) {
	return r.query(ctx, r.rdb, q)
}

// lexRanger is satisfied by both *redis.Client and a pinned *redis.Conn.
type lexRanger interface {
	ZRangeByLex(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
}

func (r *redisStore) query(ctx context.Context, c lexRanger, q Query) ([]Key, error) {
	lo, hi := r.lexRange(q)
	members, err := c.ZRangeByLex(ctx, r.indexKey(&q.Parent), &redis.ZRangeBy{
		Min:   lo,
		Max:   hi,
		Count: int64(q.Limit),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, redisError(err)
	}
	return r.parseMembers(q, members)
}

// Begin pins a connection: every key the transaction reads is WATCHed on it
// and the buffered writes are applied with MULTI/EXEC on commit.
func (r *redisStore) Begin(ctx context.Context) (Tx, error) {
	return &redisTx{r: r, conn: r.rdb.Conn(), writes: newWriteBuffer()}, nil
}

type redisTx struct {
	r      *redisStore
	conn   *redis.Conn
	writes *writeBuffer
	done   bool
}

// connDo sends an arbitrary command on a pinned connection, mirroring
// (*redis.Client).Do, which *redis.Conn does not provide.
func connDo(ctx context.Context, conn *redis.Conn, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx, args...)
	_ = conn.Process(ctx, cmd)
	return cmd
}

func (t *redisTx) watch(ctx context.Context, key string) error {
	return redisError(connDo(ctx, t.conn, "watch", key).Err())
}

func (t *redisTx) Get(ctx context.Context, key Key) (Lookup, error) {
	if t.done {
		return Absent, ErrTxDone
	}
	enc := key.Encode()
	if l, ok := t.writes.lookup(enc); ok {
		return l, nil
	}
	ek := t.r.entityKey(enc)
	if err := t.watch(ctx, ek); err != nil {
		return Absent, err
	}
	v, err := t.conn.Get(ctx, ek).Bytes()
	if errors.Is(err, redis.Nil) {
		return Absent, nil
	}
	if err != nil {
		return Absent, redisError(err)
	}
	return Found(Entity{Key: key, Value: v}), nil
}

func (t *redisTx) Put(ctx context.Context, e Entity) error {
	if t.done {
		return ErrTxDone
	}
	t.writes.put(e)
	return nil
}

func (t *redisTx) Delete(ctx context.Context, keys ...Key) error {
	if t.done {
		return ErrTxDone
	}
	for _, k := range keys {
		t.writes.del(k)
	}
	return nil
}

func (t *redisTx) Query(ctx context.Context, q Query) ([]Key, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if err := t.watch(ctx, t.r.indexKey(&q.Parent)); err != nil {
		return nil, err
	}
	full := q
	full.Limit = 0
	keys, err := t.r.query(ctx, t.conn, full)
	if err != nil {
		return nil, err
	}
	return t.writes.merge(q, keys), nil
}

func (t *redisTx) finish(ctx context.Context) {
	t.done = true
	if err := t.conn.Close(); err != nil {
		logger.Warnf("close redis connection: %s", err)
	}
}

func (t *redisTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish(ctx)
	if t.writes.empty() {
		return redisError(connDo(ctx, t.conn, "unwatch").Err())
	}
	_, err := t.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		t.writes.each(func(enc string, p *pending) {
			if p.deleted {
				t.r.stageDelete(ctx, pipe, p.entity.Key)
			} else {
				t.r.stagePut(ctx, pipe, p.entity)
			}
		})
		return nil
	})
	return redisError(err)
}

func (t *redisTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish(ctx)
	return redisError(connDo(ctx, t.conn, "unwatch").Err())
}

func redisError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	s := err.Error()
	if strings.HasPrefix(s, "OOM") {
		return errors.Wrap(err, "redis is out of memory")
	}
	return errors.Wrap(err, "redis")
}
