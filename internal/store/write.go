package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
)

// PutImage stores a code image. The image is immutable and keyed by its
// hash: writing the same hash twice is a no-op and reports inserted=false.
// Returns an error if img.Hash does not match the source bytes.
func (s *Store) PutImage(ctx context.Context, img ir.CodeImage) (inserted bool, err error) {
	if ir.HashImage(img.Source) != img.Hash {
		return false, fmt.Errorf("put image: hash %s does not match source", img.Hash)
	}

	manifestJSON, err := marshalManifest(img.Manifest)
	if err != nil {
		return false, fmt.Errorf("put image: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO code_images (hash, name, version, manifest, source, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		img.Hash.Raw(),
		img.Manifest.Name,
		img.Manifest.Version,
		manifestJSON,
		img.Source,
		img.Seq,
	)
	if err != nil {
		return false, fmt.Errorf("put image: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put image: rows affected: %w", err)
	}
	return n > 0, nil
}

// CreateInstance inserts a new instance. Its code image must already exist.
func (s *Store) CreateInstance(ctx context.Context, inst ir.Instance) error {
	return createInstance(ctx, s.db, inst)
}

func createInstance(ctx context.Context, q queryer, inst ir.Instance) error {
	stateJSON, err := marshalObject(inst.State)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO instances (id, code_hash, owner, state, seq)
		VALUES (?, ?, ?, ?, ?)
	`,
		inst.ID,
		inst.CodeHash.Raw(),
		inst.Owner,
		stateJSON,
		inst.Seq,
	)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

// WriteCall journals a call and its receipt in one transaction.
// Duplicate call IDs are ignored.
func (s *Store) WriteCall(ctx context.Context, call ir.Call, receipt ir.Receipt) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.WriteCall(ctx, call, receipt)
	})
}

func writeCall(ctx context.Context, q queryer, call ir.Call, receipt ir.Receipt) error {
	if receipt.CallID != call.ID {
		return fmt.Errorf("write call: receipt belongs to call %q, not %q", receipt.CallID, call.ID)
	}

	argsJSON, err := marshalObject(call.Args)
	if err != nil {
		return fmt.Errorf("write call: args: %w", err)
	}
	callerJSON, err := marshalCaller(call.Caller)
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO calls (id, instance_id, message, args, seq, caller, code_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		call.ID,
		call.InstanceID,
		call.Message,
		argsJSON,
		call.Seq,
		callerJSON,
		call.CodeHash.Raw(),
	)
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}

	resultJSON, err := marshalObject(receipt.Result)
	if err != nil {
		return fmt.Errorf("write receipt: result: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO receipts (id, call_id, outcome, result, error, code_hash, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		receipt.ID,
		receipt.CallID,
		receipt.Outcome,
		resultJSON,
		receipt.Error,
		receipt.CodeHash.Raw(),
		receipt.Seq,
	)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

// updateInstanceState replaces an instance's state.
func updateInstanceState(ctx context.Context, q queryer, id string, state ir.Object, seq int64) error {
	stateJSON, err := marshalObject(state)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	res, err := q.ExecContext(ctx, `
		UPDATE instances SET state = ?, seq = ? WHERE id = ?
	`, stateJSON, seq, id)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return requireOneRow(res, "update state", id)
}

// setInstanceCode rewrites an instance's code pointer. Nothing else changes.
func setInstanceCode(ctx context.Context, q queryer, id string, hash ir.CodeHash, seq int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE instances SET code_hash = ?, seq = ? WHERE id = ?
	`, hash.Raw(), seq, id)
	if err != nil {
		return fmt.Errorf("set code: %w", err)
	}
	return requireOneRow(res, "set code", id)
}

func requireOneRow(res interface{ RowsAffected() (int64, error) }, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: instance %q: %w", op, id, ErrNotFound)
	}
	return nil
}

// IsNotFound reports whether err means a record was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
