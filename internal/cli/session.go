package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/setcode/internal/engine"
	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/programs"
	"github.com/roach88/setcode/internal/registry"
	"github.com/roach88/setcode/internal/store"
	"github.com/roach88/setcode/internal/upgrade"
)

// session is an open database with the registry and engine over it.
type session struct {
	store    *store.Store
	registry *registry.Registry
	engine   *engine.Engine
}

// openSession opens opts.Database and wires the bundled programs, the
// upgrade capability, the registry, and the engine.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required (or set db in the config file)")
	}
	logger := opts.logger()

	policy, err := registry.ParsePolicy(opts.Policy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid policy", err)
	}
	auth, err := upgrade.ParseAuthorizer(opts.Authorizer, opts.Permission)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid authorizer", err)
	}
	capability, err := upgrade.New(auth, upgrade.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid authorizer", err)
	}
	catalog, err := programs.NewCatalog(capability)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	reg := registry.New(st, catalog, registry.WithPolicy(policy), registry.WithLogger(logger))
	eng, err := engine.New(ctx, st, reg, catalog, engine.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	logger.Debug("session opened",
		"db", opts.Database,
		"policy", policy.String(),
		"authorizer", opts.Authorizer,
	)
	return &session{store: st, registry: reg, engine: eng}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// resolveImage finds an image by hash (hex or CID) or by "name@version".
func (s *session) resolveImage(ctx context.Context, ref string) (ir.CodeImage, error) {
	if strings.Contains(ref, "@") {
		images, err := s.registry.Images(ctx)
		if err != nil {
			return ir.CodeImage{}, err
		}
		var found []ir.CodeImage
		for _, img := range images {
			if img.Manifest.Key() == ref {
				found = append(found, img)
			}
		}
		switch len(found) {
		case 0:
			return ir.CodeImage{}, NewExitError(ExitCommandError, fmt.Sprintf("no image %s is deployed", ref))
		case 1:
			return found[0], nil
		default:
			return ir.CodeImage{}, NewExitError(ExitCommandError, fmt.Sprintf("%d images claim %s; use a hash", len(found), ref))
		}
	}

	hash, err := ir.ParseCodeHash(ref)
	if err != nil {
		return ir.CodeImage{}, WrapExitError(ExitCommandError, "invalid image reference", err)
	}
	img, err := s.registry.Lookup(ctx, hash)
	if errors.Is(err, registry.ErrNotFound) {
		return ir.CodeImage{}, WrapExitError(ExitCommandError, "unknown image", err)
	}
	return img, err
}

// hostError converts an engine error into an ExitError with the error's
// code, for commands that never reached a program.
func hostError(f *OutputFormatter, err error) error {
	code, ok := engine.ErrorCodeOf(err)
	if !ok {
		code = "E_INTERNAL"
	}
	if outErr := f.Error(string(code), err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, string(code), err)
}
