package upgrade

import (
	"fmt"

	"github.com/roach88/setcode/internal/program"
)

// Authorizer decides whether the current caller may replace the code of
// the current instance. A nil return permits the request.
type Authorizer interface {
	Authorize(env program.Env) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(env program.Env) error

func (f AuthorizerFunc) Authorize(env program.Env) error {
	return f(env)
}

// Owner permits only the identity that instantiated the instance.
func Owner() Authorizer {
	return AuthorizerFunc(func(env program.Env) error {
		if caller := env.Caller().Identity; caller != env.Owner() {
			return fmt.Errorf("%w: %q is not the owner", ErrUnauthorized, caller)
		}
		return nil
	})
}

// Permission permits callers carrying permission p.
func Permission(p string) Authorizer {
	return AuthorizerFunc(func(env program.Env) error {
		caller := env.Caller()
		if !caller.Has(p) {
			return fmt.Errorf("%w: %q lacks permission %q", ErrUnauthorized, caller.Identity, p)
		}
		return nil
	})
}

// AnyOf permits the request if any of auths does.
func AnyOf(auths ...Authorizer) Authorizer {
	return AuthorizerFunc(func(env program.Env) error {
		if len(auths) == 0 {
			return fmt.Errorf("%w: no authorizers", ErrUnauthorized)
		}
		var first error
		for _, a := range auths {
			err := a.Authorize(env)
			if err == nil {
				return nil
			}
			if first == nil {
				first = err
			}
		}
		return first
	})
}

// AllowAll permits every caller. This is the unguarded behavior: anyone
// who can send the upgrade message can replace the code.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(program.Env) error { return nil })
}

// ParseAuthorizer maps a configuration name to an Authorizer.
// permission is used by "permission" and "any".
func ParseAuthorizer(name, permission string) (Authorizer, error) {
	switch name {
	case "", "owner":
		return Owner(), nil
	case "permission":
		if permission == "" {
			return nil, fmt.Errorf("authorizer %q needs a permission", name)
		}
		return Permission(permission), nil
	case "any":
		if permission == "" {
			return nil, fmt.Errorf("authorizer %q needs a permission", name)
		}
		return AnyOf(Owner(), Permission(permission)), nil
	case "allow-all":
		return AllowAll(), nil
	default:
		return nil, fmt.Errorf("unknown authorizer %q (want owner, permission, any, or allow-all)", name)
	}
}
