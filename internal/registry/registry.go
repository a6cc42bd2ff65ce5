package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"dima/internal/component"
	"dima/internal/pipeline"
	"dima/internal/services"
)

// Registry stores component implementations by kind and name. It is safe for
// concurrent use; plugins may register from init-time goroutines while the
// orchestrator resolves.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]any
	order   map[Kind][]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[Kind]map[string]any),
		order:   make(map[Kind][]string),
	}
}

// Register adds an implementation under (kind, name). Registering an existing
// name fails unless override is set; an override keeps the original position
// in listing order. The implementation must satisfy the interface its kind
// requires.
func (r *Registry) Register(kind Kind, name string, impl any, override bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrRegistration, "", "register", "component name must not be empty", nil)
	}
	if !kind.valid() {
		return services.Wrap(services.ErrRegistration, "", "register",
			fmt.Sprintf("unknown component kind %q", kind), nil)
	}
	if err := checkCapability(kind, name, impl); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName := r.entries[kind]
	if byName == nil {
		byName = make(map[string]any)
		r.entries[kind] = byName
	}
	if _, exists := byName[name]; exists {
		if !override {
			return services.Wrap(services.ErrRegistration, "", "register",
				fmt.Sprintf("%s %q is already registered", kind, name), nil)
		}
	} else {
		r.order[kind] = append(r.order[kind], name)
	}
	byName[name] = impl
	return nil
}

// Get returns the implementation registered under (kind, name).
func (r *Registry) Get(kind Kind, name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.entries[kind][strings.TrimSpace(name)]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "resolve",
			fmt.Sprintf("no %s registered under %q (known: %s)", kind, name, strings.Join(r.listLocked(kind), ", ")), nil)
	}
	return impl, nil
}

// Has reports whether (kind, name) is registered.
func (r *Registry) Has(kind Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[kind][strings.TrimSpace(name)]
	return ok
}

// List returns the names registered under kind in registration order.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(kind)
}

func (r *Registry) listLocked(kind Kind) []string {
	names := make([]string, len(r.order[kind]))
	copy(names, r.order[kind])
	return names
}

// Encoder resolves a registered encoder by name.
func (r *Registry) Encoder(name string) (component.Encoder, error) {
	impl, err := r.Get(KindEncoder, name)
	if err != nil {
		return nil, err
	}
	return impl.(component.Encoder), nil
}

// Decoder resolves a registered decoder by name.
func (r *Registry) Decoder(name string) (component.Decoder, error) {
	impl, err := r.Get(KindDecoder, name)
	if err != nil {
		return nil, err
	}
	return impl.(component.Decoder), nil
}

// Metric resolves a registered metric by name.
func (r *Registry) Metric(name string) (component.Metric, error) {
	impl, err := r.Get(KindMetric, name)
	if err != nil {
		return nil, err
	}
	return impl.(component.Metric), nil
}

// Stage resolves a registered stage by name. Registry satisfies
// pipeline.Resolver through this method.
func (r *Registry) Stage(name string) (pipeline.Stage, error) {
	impl, err := r.Get(KindStage, name)
	if err != nil {
		return nil, err
	}
	return impl.(pipeline.Stage), nil
}

// Snapshot returns every registered (kind, name) pair, kinds in display
// order and names in registration order. Used by the components listing.
func (r *Registry) Snapshot() map[Kind][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Kind][]string, len(r.order))
	for _, kind := range Kinds() {
		if names := r.listLocked(kind); len(names) > 0 {
			out[kind] = names
		}
	}
	return out
}

// SortedNames returns the names under kind sorted alphabetically. Listing
// order is registration order; sorting is for stable display output.
func (r *Registry) SortedNames(kind Kind) []string {
	names := r.List(kind)
	sort.Strings(names)
	return names
}

func checkCapability(kind Kind, name string, impl any) error {
	if impl == nil {
		return services.Wrap(services.ErrRegistration, "", "register",
			fmt.Sprintf("%s %q has a nil implementation", kind, name), nil)
	}
	var ok bool
	switch kind {
	case KindEncoder:
		_, ok = impl.(component.Encoder)
	case KindDecoder:
		_, ok = impl.(component.Decoder)
	case KindMetric:
		_, ok = impl.(component.Metric)
	case KindStage:
		_, ok = impl.(pipeline.Stage)
	}
	if !ok {
		return services.Wrap(services.ErrRegistration, "", "register",
			fmt.Sprintf("%s %q does not implement the %s contract (got %T)", kind, name, kind, impl), nil)
	}
	return nil
}
