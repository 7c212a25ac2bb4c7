package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/setcode/internal/compiler"
	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/store"
)

// ErrNotFound is returned by Lookup for an unknown hash.
var ErrNotFound = errors.New("code image not found")

// Policy decides whether an instance may move from one image to another.
type Policy int

const (
	// AnyImage accepts any registered image.
	AnyImage Policy = iota
	// SameProgram accepts only images of the program the instance runs now.
	// The target need not be upgradeable itself; moving to such an image
	// freezes the instance.
	SameProgram
)

func (p Policy) String() string {
	switch p {
	case AnyImage:
		return "any"
	case SameProgram:
		return "same-program"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "any" or "same-program".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "any":
		return AnyImage, nil
	case "same-program":
		return SameProgram, nil
	default:
		return AnyImage, fmt.Errorf("unknown registry policy %q (want any or same-program)", s)
	}
}

// Registry stores code images and rewrites code pointers.
type Registry struct {
	store   *store.Store
	catalog *program.Catalog
	policy  Policy
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy sets the replacement policy. Default: AnyImage.
func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates a Registry over s. Images are only accepted if catalog can
// load them.
func New(s *store.Store, catalog *program.Catalog, opts ...Option) *Registry {
	r := &Registry{
		store:   s,
		catalog: catalog,
		policy:  AnyImage,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured replacement policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Upload compiles, checks, and stores a code image. seq stamps the image
// if it is new. Uploading identical bytes again returns the existing image.
func (r *Registry) Upload(ctx context.Context, filename string, src []byte, seq int64) (ir.CodeImage, error) {
	manifest, err := compiler.CompileImage(filename, src)
	if err != nil {
		return ir.CodeImage{}, fmt.Errorf("compile image: %w", err)
	}
	if _, err := r.catalog.Load(*manifest); err != nil {
		return ir.CodeImage{}, err
	}

	img := ir.CodeImage{
		Hash:     ir.HashImage(src),
		Manifest: *manifest,
		Source:   src,
		Seq:      seq,
	}
	inserted, err := r.store.PutImage(ctx, img)
	if err != nil {
		return ir.CodeImage{}, fmt.Errorf("store image: %w", err)
	}
	if !inserted {
		return r.Lookup(ctx, img.Hash)
	}

	r.logger.Info("code image uploaded",
		"hash", img.Hash.String(),
		"program", manifest.Key(),
		"upgradeable", manifest.Upgradeable,
	)
	return img, nil
}

// Lookup returns the image with the given hash.
func (r *Registry) Lookup(ctx context.Context, hash ir.CodeHash) (ir.CodeImage, error) {
	img, err := r.store.ReadImage(ctx, hash)
	if store.IsNotFound(err) {
		return ir.CodeImage{}, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return ir.CodeImage{}, err
	}
	return img, nil
}

// Images lists every stored image in upload order.
func (r *Registry) Images(ctx context.Context) ([]ir.CodeImage, error) {
	return r.store.ListImages(ctx)
}

// SetCodeHash points instanceID at the image named by raw, inside tx.
// The write only becomes visible if tx commits. Storage failures are
// reported as CodeRejected.
func (r *Registry) SetCodeHash(ctx context.Context, tx *store.Tx, instanceID string, raw []byte, seq int64) ReturnCode {
	target, err := ir.CodeHashFromRaw(raw)
	if err != nil {
		r.logger.Debug("set code hash rejected", "instance", instanceID, "reason", err)
		return CodeRejected
	}

	img, err := tx.ReadImage(ctx, target)
	if store.IsNotFound(err) {
		r.logger.Debug("set code hash: no such image", "instance", instanceID, "hash", target.String())
		return CodeNotFound
	}
	if err != nil {
		r.logger.Error("set code hash: read image", "instance", instanceID, "error", err)
		return CodeRejected
	}

	inst, err := tx.ReadInstance(ctx, instanceID)
	if store.IsNotFound(err) {
		return InstanceNotFound
	}
	if err != nil {
		r.logger.Error("set code hash: read instance", "instance", instanceID, "error", err)
		return CodeRejected
	}

	if r.policy == SameProgram {
		current, err := tx.ReadImage(ctx, inst.CodeHash)
		if err != nil {
			r.logger.Error("set code hash: read current image", "instance", instanceID, "error", err)
			return CodeRejected
		}
		if current.Manifest.Name != img.Manifest.Name {
			r.logger.Debug("set code hash refused by policy",
				"instance", instanceID,
				"from", current.Manifest.Key(),
				"to", img.Manifest.Key(),
			)
			return CodeRejected
		}
	}

	if err := tx.SetCode(ctx, instanceID, target, seq); err != nil {
		if store.IsNotFound(err) {
			return InstanceNotFound
		}
		r.logger.Error("set code hash: write pointer", "instance", instanceID, "error", err)
		return CodeRejected
	}
	return Success
}
