package config

import (
	"os"
	"strings"
)

// normalize expands paths, trims string fields, and applies environment
// fallbacks. It runs after decoding and before validation.
func (c *Config) normalize() error {
	pathFields := []*string{
		&c.Paths.WorkspaceDir,
		&c.Paths.DataDir,
		&c.Paths.WeightsDir,
		&c.Paths.StatisticsDir,
		&c.Paths.CheckpointsDir,
		&c.Paths.SamplesDir,
		&c.Paths.LogDir,
	}
	for _, field := range pathFields {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}

	for _, field := range []*string{
		&c.Dataset.ReferencesPath,
		&c.Decoder.Checkpoint,
		&c.Generation.Checkpoint,
	} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Dataset.Name = strings.TrimSpace(c.Dataset.Name)
	c.Dataset.Hub = strings.TrimSpace(c.Dataset.Hub)
	c.Encoder.Name = strings.TrimSpace(c.Encoder.Name)
	c.Encoder.Model = strings.TrimSpace(c.Encoder.Model)
	c.Decoder.Name = strings.TrimSpace(c.Decoder.Name)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	if c.Dataset.HubToken == "" {
		c.Dataset.HubToken = strings.TrimSpace(os.Getenv("HF_TOKEN"))
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	names := make([]string, 0, len(c.Metrics.Names))
	for _, name := range c.Metrics.Names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	c.Metrics.Names = names

	return nil
}
