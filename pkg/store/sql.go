// pkg/store/sql.go

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const sqlTable = "avestream_entities"

// The "C" collation makes the database order keys bytewise, like the other backends.
const sqlSchema = `CREATE TABLE IF NOT EXISTS ` + sqlTable + ` (
	k TEXT COLLATE "C" PRIMARY KEY,
	v BYTEA NOT NULL
)`

type sqlStore struct {
	db *sqlx.DB
	sqlOps
}

var _ Store = &sqlStore{}

func init() {
	Register("postgres", newSQLStore)
	Register("postgresql", newSQLStore)
}

func newSQLStore(driver, addr string, conf *Config) (Store, error) {
	db, err := sqlx.Open("pgx", driver+"://"+addr)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if conf.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.MaxOpenConns)
	}
	db.SetMaxIdleConns(2)
	ctx := context.Background()
	if conf.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.DialTimeout)
		defer cancel()
	}
	s, err := NewSQLStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore uses db, creating the entity table if it does not exist.
func NewSQLStore(ctx context.Context, db *sqlx.DB) (Store, error) {
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		return nil, errors.Wrap(err, "create schema")
	}
	logger.Infof("Using table %s", sqlTable)
	return &sqlStore{db: db, sqlOps: sqlOps{q: db}}, nil
}

func (s *sqlStore) Name() string {
	return "postgres"
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, sqlError(err)
	}
	return &sqlTx{tx: tx, sqlOps: sqlOps{q: tx}}, nil
}

// sqlOps runs the entity operations on either the database or a transaction.
type sqlOps struct {
	q sqlx.ExtContext
}

func (o sqlOps) Get(ctx context.Context, key Key) (Lookup, error) {
	var v []byte
	err := sqlx.GetContext(ctx, o.q, &v, `SELECT v FROM `+sqlTable+` WHERE k = $1`, key.Encode())
	if errors.Is(err, sql.ErrNoRows) {
		return Absent, nil
	}
	if err != nil {
		return Absent, sqlError(err)
	}
	return Found(Entity{Key: key, Value: v}), nil
}

func (o sqlOps) Put(ctx context.Context, e Entity) error {
	value := e.Value
	if value == nil {
		value = []byte{}
	}
	_, err := o.q.ExecContext(ctx, `INSERT INTO `+sqlTable+` (k, v) VALUES ($1, $2)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`, e.Key.Encode(), value)
	return sqlError(err)
}

func (o sqlOps) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	encs := make([]string, len(keys))
	for i, k := range keys {
		encs[i] = k.Encode()
	}
	query, args, err := sqlx.In(`DELETE FROM `+sqlTable+` WHERE k IN (?)`, encs)
	if err != nil {
		return errors.Wrap(err, "build delete")
	}
	_, err = o.q.ExecContext(ctx, o.q.Rebind(query), args...)
	return sqlError(err)
}

func (o sqlOps) Query(ctx context.Context, q Query) ([]Key, error) {
	parentEnc := q.Parent.Encode()
	// TEXT cannot hold NUL, so After is compared exclusively here
	lo, op := parentEnc+"/", ">="
	if q.After != nil {
		if a := q.After.Encode(); a >= lo {
			lo, op = a, ">"
		}
	}
	hi := parentEnc + "0"
	stmt := `SELECT k FROM ` + sqlTable + ` WHERE k ` + op + ` $1 AND k < $2 ORDER BY k`
	var encs []string
	if err := sqlx.SelectContext(ctx, o.q, &encs, stmt, lo, hi); err != nil {
		return nil, sqlError(err)
	}
	var keys []Key
	for _, enc := range encs {
		if !isChild(enc, parentEnc) {
			continue
		}
		k, err := ParseKey(enc)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupted key %s", enc)
		}
		keys = append(keys, k)
		if q.Limit > 0 && len(keys) == q.Limit {
			break
		}
	}
	return keys, nil
}

type sqlTx struct {
	tx *sqlx.Tx
	sqlOps
}

func (t *sqlTx) Commit(ctx context.Context) error {
	return sqlError(t.tx.Commit())
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	return sqlError(t.tx.Rollback())
}

func sqlError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrTxDone) {
		return ErrTxDone
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return ErrConflict
		}
		return errors.Wrap(err, fmt.Sprintf("postgres %s", pgErr.Code))
	}
	return errors.Wrap(err, "postgres")
}
