package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
)

// Capability replaces the code behind the current instance.
// It is stateless apart from its configuration and safe for concurrent use.
type Capability struct {
	auth   Authorizer
	logger *slog.Logger
}

// Option configures a Capability.
type Option func(*Capability)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Capability) {
		c.logger = l
	}
}

// New creates a Capability guarded by auth.
func New(auth Authorizer, opts ...Option) (*Capability, error) {
	if auth == nil {
		return nil, errors.New("upgrade: nil authorizer (use AllowAll to opt out)")
	}
	c := &Capability{auth: auth, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(auth Authorizer, opts ...Option) *Capability {
	c, err := New(auth, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// RequestCodeReplacement asks the registry to point the current instance
// at target. It returns nil once the registry accepted the request, an
// error matching ErrUnauthorized if the caller may not upgrade, and an
// error matching ErrUpgradeFailed for any registry refusal.
//
// Success means the request was recorded; the host makes it durable only
// if the enclosing call commits. The new code runs from the next call.
func (c *Capability) RequestCodeReplacement(ctx context.Context, env program.Env, target ir.CodeHash) error {
	if err := c.auth.Authorize(env); err != nil {
		c.logger.Warn("code replacement unauthorized",
			"instance", env.InstanceID(),
			"caller", env.Caller().Identity,
			"target", target.String(),
		)
		if !errors.Is(err, ErrUnauthorized) {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return err
	}

	from := env.CodeHash()
	c.logger.Debug("requesting code replacement",
		"instance", env.InstanceID(),
		"from", from.String(),
		"target", target.String(),
	)

	if err := env.SetCodeHash(ctx, target.Raw()); err != nil {
		c.logger.Warn("code replacement failed",
			"instance", env.InstanceID(),
			"target", target.String(),
			"cause", err,
		)
		return &FailedError{Target: target, Cause: err}
	}

	c.logger.Info("code replaced",
		"instance", env.InstanceID(),
		"from", from.Short(),
		"to", target.Short(),
	)
	return nil
}
