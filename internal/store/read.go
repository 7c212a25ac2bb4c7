package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadImage retrieves a code image by hash.
// Returns ErrNotFound if no image has that hash.
func (s *Store) ReadImage(ctx context.Context, hash ir.CodeHash) (ir.CodeImage, error) {
	return readImage(ctx, s.db, hash)
}

// HasImage reports whether an image with the given hash is registered.
func (s *Store) HasImage(ctx context.Context, hash ir.CodeHash) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_images WHERE hash = ?`, hash.Raw()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has image: %w", err)
	}
	return n > 0, nil
}

func readImage(ctx context.Context, q queryer, hash ir.CodeHash) (ir.CodeImage, error) {
	row := q.QueryRowContext(ctx, `
		SELECT hash, manifest, source, seq FROM code_images WHERE hash = ?
	`, hash.Raw())
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CodeImage{}, fmt.Errorf("read image %s: %w", hash, ErrNotFound)
	}
	return img, err
}

// ListImages returns every registered image in registration order.
func (s *Store) ListImages(ctx context.Context) ([]ir.CodeImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, manifest, source, seq FROM code_images
		ORDER BY seq ASC, hash ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	images := []ir.CodeImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

func scanImage(r rowScanner) (ir.CodeImage, error) {
	var (
		rawHash      []byte
		manifestJSON string
		img          ir.CodeImage
	)
	if err := r.Scan(&rawHash, &manifestJSON, &img.Source, &img.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.CodeImage{}, err
		}
		return ir.CodeImage{}, fmt.Errorf("scan image: %w", err)
	}

	hash, err := scanHash(rawHash)
	if err != nil {
		return ir.CodeImage{}, fmt.Errorf("scan image: %w", err)
	}
	img.Hash = hash

	img.Manifest, err = unmarshalManifest(manifestJSON)
	if err != nil {
		return ir.CodeImage{}, fmt.Errorf("scan image: %w", err)
	}
	return img, nil
}

// ReadInstance retrieves an instance by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadInstance(ctx context.Context, id string) (ir.Instance, error) {
	return readInstance(ctx, s.db, id)
}

func readInstance(ctx context.Context, q queryer, id string) (ir.Instance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, code_hash, owner, state, seq FROM instances WHERE id = ?
	`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Instance{}, fmt.Errorf("read instance %q: %w", id, ErrNotFound)
	}
	return inst, err
}

// ListInstances returns every instance ordered by id.
func (s *Store) ListInstances(ctx context.Context) ([]ir.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code_hash, owner, state, seq FROM instances
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	instances := []ir.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}

func scanInstance(r rowScanner) (ir.Instance, error) {
	var (
		inst      ir.Instance
		rawHash   []byte
		stateJSON string
	)
	if err := r.Scan(&inst.ID, &rawHash, &inst.Owner, &stateJSON, &inst.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Instance{}, err
		}
		return ir.Instance{}, fmt.Errorf("scan instance: %w", err)
	}

	hash, err := scanHash(rawHash)
	if err != nil {
		return ir.Instance{}, fmt.Errorf("scan instance: %w", err)
	}
	inst.CodeHash = hash

	inst.State, err = unmarshalObject(stateJSON)
	if err != nil {
		return ir.Instance{}, fmt.Errorf("scan instance: state: %w", err)
	}
	return inst, nil
}

// ReadHistory returns all calls and receipts for an instance.
// Results are ordered by seq ASC, id ASC COLLATE BINARY.
//
// Returns empty slices (not nil) if the instance has no calls.
func (s *Store) ReadHistory(ctx context.Context, instanceID string) ([]ir.Call, []ir.Receipt, error) {
	calls, err := s.readCalls(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	receipts, err := s.readReceipts(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	return calls, receipts, nil
}

func (s *Store) readCalls(ctx context.Context, instanceID string) ([]ir.Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, message, args, seq, caller, code_hash
		FROM calls
		WHERE instance_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []ir.Call{}
	for rows.Next() {
		var (
			c          ir.Call
			argsJSON   string
			callerJSON string
			rawHash    []byte
		)
		if err := rows.Scan(&c.ID, &c.InstanceID, &c.Message, &argsJSON, &c.Seq, &callerJSON, &rawHash); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if c.Args, err = unmarshalObject(argsJSON); err != nil {
			return nil, fmt.Errorf("scan call: args: %w", err)
		}
		if c.Caller, err = unmarshalCaller(callerJSON); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if c.CodeHash, err = scanHash(rawHash); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

func (s *Store) readReceipts(ctx context.Context, instanceID string) ([]ir.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.call_id, r.outcome, r.result, r.error, r.code_hash, r.seq
		FROM receipts r
		JOIN calls c ON r.call_id = c.id
		WHERE c.instance_id = ?
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []ir.Receipt{}
	for rows.Next() {
		var (
			r          ir.Receipt
			resultJSON string
			rawHash    []byte
		)
		if err := rows.Scan(&r.ID, &r.CallID, &r.Outcome, &resultJSON, &r.Error, &rawHash, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		if r.Result, err = unmarshalObject(resultJSON); err != nil {
			return nil, fmt.Errorf("scan receipt: result: %w", err)
		}
		if r.CodeHash, err = scanHash(rawHash); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return receipts, nil
}
