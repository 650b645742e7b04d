// pkg/store/readonly.go

package store

import "context"

type readOnly struct {
	Store
}

func (r *readOnly) Put(ctx context.Context, e Entity) error {
	return ErrReadOnly
}

func (r *readOnly) Delete(ctx context.Context, keys ...Key) error {
	return ErrReadOnly
}

func (r *readOnly) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &readOnlyTx{tx}, nil
}

type readOnlyTx struct {
	Tx
}

func (t *readOnlyTx) Put(ctx context.Context, e Entity) error {
	return ErrReadOnly
}

func (t *readOnlyTx) Delete(ctx context.Context, keys ...Key) error {
	return ErrReadOnly
}
