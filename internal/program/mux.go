package program

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/setcode/internal/ir"
)

// ErrUnknownMessage is returned when a message has no handler.
var ErrUnknownMessage = errors.New("unknown message")

// HandlerFunc handles a single message.
type HandlerFunc func(ctx context.Context, env Env, args ir.Object) (ir.Object, error)

// Mux dispatches messages to handlers by name.
// Register all handlers before the first call; Mux is read-only afterwards.
type Mux struct {
	handlers map[string]HandlerFunc
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

// Register binds name to h. It panics if name is empty, h is nil, or
// name is already registered.
func (m *Mux) Register(name string, h HandlerFunc) {
	if name == "" {
		panic("program: empty message name")
	}
	if h == nil {
		panic("program: nil handler for " + name)
	}
	if _, dup := m.handlers[name]; dup {
		panic("program: duplicate handler for " + name)
	}
	m.handlers[name] = h
}

// Handle implements Program.
func (m *Mux) Handle(ctx context.Context, env Env, message string, args ir.Object) (ir.Object, error) {
	h, ok := m.handlers[message]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, message)
	}
	if args == nil {
		args = ir.Object{}
	}
	result, err := h(ctx, env, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = ir.Object{}
	}
	return result, nil
}

// Messages returns the registered message names in sorted order.
func (m *Mux) Messages() []string {
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
