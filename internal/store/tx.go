package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
)

// Tx is a store transaction. Writes made through a Tx become visible only
// if the function passed to InTx returns nil.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a single transaction. If fn returns an error (or
// panics) every write made through the Tx is rolled back and the error is
// returned unchanged, so callers can still match it with errors.Is/As.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqltx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqltx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: sqltx}); err != nil {
		return err
	}

	if err := sqltx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ReadInstance reads an instance inside the transaction.
func (t *Tx) ReadInstance(ctx context.Context, id string) (ir.Instance, error) {
	return readInstance(ctx, t.tx, id)
}

// ReadImage reads a code image inside the transaction.
func (t *Tx) ReadImage(ctx context.Context, hash ir.CodeHash) (ir.CodeImage, error) {
	return readImage(ctx, t.tx, hash)
}

// CreateInstance inserts an instance inside the transaction.
func (t *Tx) CreateInstance(ctx context.Context, inst ir.Instance) error {
	return createInstance(ctx, t.tx, inst)
}

// UpdateState replaces an instance's state inside the transaction.
func (t *Tx) UpdateState(ctx context.Context, id string, state ir.Object, seq int64) error {
	return updateInstanceState(ctx, t.tx, id, state, seq)
}

// SetCode rewrites an instance's code pointer inside the transaction.
func (t *Tx) SetCode(ctx context.Context, id string, hash ir.CodeHash, seq int64) error {
	return setInstanceCode(ctx, t.tx, id, hash, seq)
}

// WriteCall journals a call and its receipt inside the transaction.
func (t *Tx) WriteCall(ctx context.Context, call ir.Call, receipt ir.Receipt) error {
	return writeCall(ctx, t.tx, call, receipt)
}
