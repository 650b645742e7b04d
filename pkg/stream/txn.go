// pkg/stream/txn.go

package stream

import (
	"context"

	"AveStream/pkg/store"
	"AveStream/pkg/utils"

	"github.com/pkg/errors"
)

var logger = utils.GetLogger("avestream")

// runTx executes f inside the caller's transaction when there is one, or in a
// transaction of its own that is committed once f succeeds. On failure the
// transaction is rolled back, including a caller's one. Conflicts are not retried.
func runTx(ctx context.Context, st store.Store, tx store.Tx, f func(ops store.Ops) error) error {
	if tx != nil {
		if err := f(tx); err != nil {
			rollback(ctx, tx)
			return err
		}
		return nil
	}
	own, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	if err = f(own); err != nil {
		rollback(ctx, own)
		return err
	}
	if err = own.Commit(ctx); err != nil {
		rollback(ctx, own)
		return err
	}
	return nil
}

func rollback(ctx context.Context, tx store.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, store.ErrTxDone) {
		logger.Warnf("rollback: %s", err)
	}
}

// opsOf returns where a reader fetches chunks from.
func opsOf(st store.Store, tx store.Tx) store.Ops {
	if tx != nil {
		return tx
	}
	return st
}
