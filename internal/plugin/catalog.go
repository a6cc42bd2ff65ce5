package plugin

import (
	"sort"
	"strings"
	"sync"

	"dima/internal/registry"
)

// RegisterFunc is the registration entry point every plugin exports: a
// compiled .so plugin under the symbol name Register, a catalog package as
// the function it registers with.
type RegisterFunc func(*registry.Registry) error

// Catalog maps package descriptor names to compiled-in registration
// functions.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]RegisterFunc
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]RegisterFunc)}
}

// Add installs a package under name. Adding an existing name replaces it.
func (c *Catalog) Add(name string, register RegisterFunc) {
	name = strings.TrimSpace(name)
	if name == "" || register == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = register
}

// Lookup returns the registration function for name.
func (c *Catalog) Lookup(name string) (RegisterFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	register, ok := c.entries[strings.TrimSpace(name)]
	return register, ok
}

// Names returns the catalog contents sorted alphabetically.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultCatalog = NewCatalog()

// DefaultCatalog returns the process-wide catalog compiled-in component
// packages register with from init.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
