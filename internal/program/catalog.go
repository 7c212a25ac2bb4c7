package program

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/setcode/internal/ir"
)

// ErrIncompatible is returned when no implementation can run an image.
var ErrIncompatible = errors.New("incompatible code image")

// Factory builds a Program for a manifest.
type Factory func(m ir.Manifest) (Program, error)

// Catalog maps "name@version" to the Go implementation of that program.
// It plays the part of the platform: an image the catalog cannot load is
// not deployable. Safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory for name@version.
func (c *Catalog) Register(name string, version int64, f Factory) error {
	if f == nil {
		return fmt.Errorf("register %s: nil factory", ir.ProgramKey(name, version))
	}
	key := ir.ProgramKey(name, version)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[key]; dup {
		return fmt.Errorf("register %s: already registered", key)
	}
	c.factories[key] = f
	return nil
}

// Load builds the Program for m. When the program can list its messages,
// every message in the manifest must have a handler.
func (c *Catalog) Load(m ir.Manifest) (Program, error) {
	c.mu.RLock()
	f, ok := c.factories[m.Key()]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no implementation for %s", ErrIncompatible, m.Key())
	}

	p, err := f(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIncompatible, m.Key(), err)
	}

	if lister, ok := p.(MessageLister); ok {
		handled := lister.Messages()
		for _, sig := range m.Messages {
			if !slices.Contains(handled, sig.Name) {
				return nil, fmt.Errorf("%w: %s declares %q but does not handle it", ErrIncompatible, m.Key(), sig.Name)
			}
		}
	}
	return p, nil
}

// Keys returns the registered program keys in sorted order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.factories))
	for k := range c.factories {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
