// Package programs wires the bundled program implementations into a catalog.
package programs

import (
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/programs/counter"
	"github.com/roach88/setcode/internal/upgrade"
)

// NewCatalog returns a catalog holding every bundled program. capability
// serves the upgrade message of every upgradeable program.
func NewCatalog(capability *upgrade.Capability) (*program.Catalog, error) {
	cat := program.NewCatalog()
	if err := counter.Register(cat, capability); err != nil {
		return nil, err
	}
	return cat, nil
}
