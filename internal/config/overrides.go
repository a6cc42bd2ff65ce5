package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"dima/internal/services"
)

// ApplyOverrides applies dotted key=value assignments (from --set flags) on
// top of a loaded configuration. Keys use the TOML section names, for example
// "training.batch_size=256" or "encoder.name=cheap".
func ApplyOverrides(cfg *Config, overrides []string) error {
	if len(overrides) == 0 {
		return nil
	}

	tree := make(map[string]any)
	for _, raw := range overrides {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return services.Wrap(services.ErrConfiguration, "", "overrides",
				fmt.Sprintf("invalid override %q (expected key=value)", raw), nil)
		}
		if err := setNested(tree, strings.Split(key, "."), parseOverrideValue(strings.TrimSpace(value))); err != nil {
			return services.Wrap(services.ErrConfiguration, "", "overrides",
				fmt.Sprintf("invalid override %q", raw), err)
		}
	}

	encoded, err := toml.Marshal(tree)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "overrides", "encode overrides", err)
	}
	if err := toml.Unmarshal(encoded, cfg); err != nil {
		return services.Wrap(services.ErrConfiguration, "", "overrides", "apply overrides", err)
	}

	if err := cfg.normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

func setNested(tree map[string]any, path []string, value any) error {
	if len(path) == 1 {
		tree[path[0]] = value
		return nil
	}
	child, exists := tree[path[0]]
	if !exists {
		next := make(map[string]any)
		tree[path[0]] = next
		return setNested(next, path[1:], value)
	}
	next, ok := child.(map[string]any)
	if !ok {
		return fmt.Errorf("key %q is both a value and a section", path[0])
	}
	return setNested(next, path[1:], value)
}

func parseOverrideValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
