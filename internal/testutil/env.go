package testutil

import (
	"context"
	"sync"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
)

// Env is an in-memory program.Env for handler tests.
//
// SetCodeHash records every raw identifier it receives and consults
// Registry for the outcome. A nil Registry accepts everything. On
// success Pointer moves to the requested image while CodeHash keeps
// reporting the image executing the call, as the host does.
//
// Thread-safety: all methods are safe for concurrent use.
type Env struct {
	mu sync.Mutex

	ID       string
	OwnerID  string
	Who      ir.Caller
	Code     ir.CodeHash
	State    ir.Object
	Registry func(raw []byte) error

	pointer  ir.CodeHash
	requests [][]byte
}

var _ program.Env = (*Env)(nil)

// NewEnv creates an Env for instance "inst-1" owned and called by owner.
func NewEnv(owner string, code ir.CodeHash) *Env {
	return &Env{
		ID:      "inst-1",
		OwnerID: owner,
		Who:     ir.Caller{Identity: owner, Permissions: []string{}},
		Code:    code,
		State:   ir.Object{},
		pointer: code,
	}
}

// As returns e with the caller replaced.
func (e *Env) As(identity string, permissions ...string) *Env {
	e.mu.Lock()
	defer e.mu.Unlock()
	if permissions == nil {
		permissions = []string{}
	}
	e.Who = ir.Caller{Identity: identity, Permissions: permissions}
	return e
}

func (e *Env) InstanceID() string { return e.ID }
func (e *Env) Owner() string      { return e.OwnerID }

func (e *Env) Caller() ir.Caller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Who
}

func (e *Env) CodeHash() ir.CodeHash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Code
}

func (e *Env) Get(key string) (ir.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.State[key]
	return v, ok
}

func (e *Env) Set(key string, v ir.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State == nil {
		e.State = ir.Object{}
	}
	e.State[key] = v
}

func (e *Env) SetCodeHash(_ context.Context, raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, append([]byte(nil), raw...))
	if e.Registry != nil {
		if err := e.Registry(raw); err != nil {
			return err
		}
	}
	h, err := ir.CodeHashFromRaw(raw)
	if err != nil {
		return err
	}
	e.pointer = h
	return nil
}

// Pointer returns the code pointer as the registry last set it.
func (e *Env) Pointer() ir.CodeHash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pointer
}

// Requests returns copies of the raw identifiers passed to SetCodeHash.
func (e *Env) Requests() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.requests))
	for i, r := range e.requests {
		out[i] = append([]byte(nil), r...)
	}
	return out
}
