package config

import (
	"fmt"
	"strings"

	"dima/internal/services"
)

// Validate checks the configuration for values the pipeline cannot operate
// with. It reports the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		return services.Wrap(services.ErrConfiguration, "", "paths", "workspace_dir must be set", nil)
	}
	if strings.TrimSpace(c.Encoder.Name) == "" {
		return services.Wrap(services.ErrConfiguration, "", "encoder", "name must be set", nil)
	}
	if strings.TrimSpace(c.Decoder.Name) == "" {
		return services.Wrap(services.ErrConfiguration, "", "decoder", "name must be set", nil)
	}
	if c.Dataset.MinSequenceLen < 0 || c.Dataset.MaxSequenceLen < 0 {
		return services.Wrap(services.ErrConfiguration, "", "dataset", "sequence length bounds must be non-negative", nil)
	}
	if c.Dataset.MaxSequenceLen > 0 && c.Dataset.MinSequenceLen > c.Dataset.MaxSequenceLen {
		return services.Wrap(services.ErrConfiguration, "", "dataset",
			fmt.Sprintf("min_sequence_len %d exceeds max_sequence_len %d", c.Dataset.MinSequenceLen, c.Dataset.MaxSequenceLen), nil)
	}
	if c.Training.NumGPUs < 1 {
		return services.Wrap(services.ErrConfiguration, "", "training", "num_gpus must be at least 1", nil)
	}
	if c.Generation.NumSamples < 1 {
		return services.Wrap(services.ErrConfiguration, "", "generation", "num_samples must be at least 1", nil)
	}
	if c.Tools.TimeoutSeconds < 0 {
		return services.Wrap(services.ErrConfiguration, "", "tools", "timeout_seconds must be non-negative", nil)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return services.Wrap(services.ErrConfiguration, "", "logging",
			fmt.Sprintf("unsupported format %q (expected console or json)", c.Logging.Format), nil)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return services.Wrap(services.ErrConfiguration, "", "logging",
			fmt.Sprintf("unsupported level %q", c.Logging.Level), nil)
	}

	return nil
}
