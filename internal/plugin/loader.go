package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"plugin"
	"strings"

	"dima/internal/config"
	"dima/internal/logging"
	"dima/internal/registry"
	"dima/internal/services"
)

// entryPointSymbol is the symbol a compiled .so plugin must export.
const entryPointSymbol = "Register"

// Opener resolves a plugin path to its registration entry point. The
// default uses the Go plugin runtime; tests inject fakes.
type Opener func(path string) (RegisterFunc, error)

// Option configures the loader.
type Option func(*Loader)

// WithOpener injects a custom plugin opener (primarily for tests).
func WithOpener(open Opener) Option {
	return func(l *Loader) {
		if open != nil {
			l.open = open
		}
	}
}

// WithCatalog selects the catalog used for package descriptors. Defaults to
// the process-wide catalog.
func WithCatalog(catalog *Catalog) Option {
	return func(l *Loader) {
		if catalog != nil {
			l.catalog = catalog
		}
	}
}

// Loader resolves plugin descriptors and runs their registration entry
// points against a registry.
type Loader struct {
	registry *registry.Registry
	catalog  *Catalog
	logger   *slog.Logger
	open     Opener
}

// NewLoader constructs a loader bound to a registry. A nil logger disables
// logging.
func NewLoader(reg *registry.Registry, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	loader := &Loader{
		registry: reg,
		catalog:  DefaultCatalog(),
		logger:   logger.With(logging.String(logging.FieldComponent, "plugin-loader")),
		open:     openSharedObject,
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Load resolves every descriptor and runs its registration entry point.
// With failFast set, the first failure stops loading and is returned. Without
// it, every descriptor is attempted; failures are collected and returned
// joined after the rest have loaded. Components registered by plugins that
// loaded before a failure stay registered either way.
func (l *Loader) Load(refs []config.PluginRef, failFast bool) error {
	var failures []error
	for _, ref := range refs {
		if err := l.loadOne(ref); err != nil {
			if failFast {
				return err
			}
			failures = append(failures, err)
			continue
		}
	}
	return errors.Join(failures...)
}

func (l *Loader) loadOne(ref config.PluginRef) error {
	label := describeRef(ref)

	register, err := l.resolve(ref)
	if err != nil {
		l.logger.Error("plugin load failed",
			logging.String(logging.FieldEventType, "plugin_load_failure"),
			logging.String(logging.FieldPlugin, label),
			logging.Error(err),
		)
		return err
	}

	if err := register(l.registry); err != nil {
		err = services.Wrap(services.ErrPluginLoad, "", "register",
			fmt.Sprintf("plugin %s failed while registering", label), err)
		l.logger.Error("plugin registration failed",
			logging.String(logging.FieldEventType, "plugin_load_failure"),
			logging.String(logging.FieldPlugin, label),
			logging.Error(err),
		)
		return err
	}

	l.logger.Info("plugin loaded",
		logging.String(logging.FieldEventType, "plugin_loaded"),
		logging.String(logging.FieldPlugin, label),
	)
	return nil
}

func (l *Loader) resolve(ref config.PluginRef) (RegisterFunc, error) {
	path := strings.TrimSpace(ref.Path)
	pkg := strings.TrimSpace(ref.Package)
	switch {
	case path != "" && pkg != "":
		return nil, services.Wrap(services.ErrPluginLoad, "", "resolve",
			"descriptor sets both path and package", nil)
	case path != "":
		register, err := l.open(path)
		if err != nil {
			return nil, services.Wrap(services.ErrPluginLoad, "", "resolve",
				fmt.Sprintf("open plugin %q", path), err)
		}
		return register, nil
	case pkg != "":
		register, ok := l.catalog.Lookup(pkg)
		if !ok {
			known := strings.Join(l.catalog.Names(), ", ")
			if known == "" {
				known = "none"
			}
			return nil, services.Wrap(services.ErrPluginLoad, "", "resolve",
				fmt.Sprintf("unknown plugin package %q (known: %s)", pkg, known), nil)
		}
		return register, nil
	default:
		return nil, services.Wrap(services.ErrPluginLoad, "", "resolve",
			"descriptor sets neither path nor package", nil)
	}
}

func describeRef(ref config.PluginRef) string {
	if path := strings.TrimSpace(ref.Path); path != "" {
		return path
	}
	return strings.TrimSpace(ref.Package)
}

func openSharedObject(path string) (RegisterFunc, error) {
	shared, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := shared.Lookup(entryPointSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin exports no %s entry point: %w", entryPointSymbol, err)
	}
	switch fn := symbol.(type) {
	case func(*registry.Registry) error:
		return fn, nil
	case *RegisterFunc:
		if *fn == nil {
			return nil, fmt.Errorf("plugin %s entry point is nil", entryPointSymbol)
		}
		return *fn, nil
	default:
		return nil, fmt.Errorf("plugin %s entry point has type %T, want func(*registry.Registry) error", entryPointSymbol, symbol)
	}
}
