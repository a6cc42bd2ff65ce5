package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains workspace directory configuration.
type Paths struct {
	WorkspaceDir   string `toml:"workspace_dir"`
	DataDir        string `toml:"data_dir"`
	WeightsDir     string `toml:"weights_dir"`
	StatisticsDir  string `toml:"statistics_dir"`
	CheckpointsDir string `toml:"checkpoints_dir"`
	SamplesDir     string `toml:"samples_dir"`
	LogDir         string `toml:"log_dir"`
}

// Dataset describes the source corpus and the sequence filters applied to it.
type Dataset struct {
	Name           string `toml:"name"`
	Hub            string `toml:"hub"`
	HubToken       string `toml:"hub_token"`
	MinSequenceLen int    `toml:"min_sequence_len"`
	MaxSequenceLen int    `toml:"max_sequence_len"`
	ReferencesPath string `toml:"references_path"`
}

// Encoder selects the latent encoder used for training and inference.
type Encoder struct {
	Name  string `toml:"name"`
	Model string `toml:"model"`
}

// Decoder selects the decoder used to map latents back to sequences.
type Decoder struct {
	Name       string `toml:"name"`
	Checkpoint string `toml:"checkpoint"`
}

// Training contains knobs passed through to the external training
// collaborators. The core never interprets them beyond forwarding.
type Training struct {
	BatchSize  int `toml:"batch_size"`
	MaxSteps   int `toml:"max_steps"`
	NumGPUs    int `toml:"num_gpus"`
	MasterPort int `toml:"master_port"`
}

// Generation controls inference sampling.
type Generation struct {
	NumSamples int    `toml:"num_samples"`
	Checkpoint string `toml:"checkpoint"`
}

// Metrics selects the named metrics evaluated on generated samples.
type Metrics struct {
	Names      []string `toml:"names"`
	MaxSamples int      `toml:"max_samples"`
}

// Tools names the external collaborator commands each stage invokes. Each
// value is an executable resolved through PATH (or an absolute path).
type Tools struct {
	DataPrep       string `toml:"data_prep"`
	FetchWeights   string `toml:"fetch_weights"`
	Statistics     string `toml:"statistics"`
	TrainDecoder   string `toml:"train_decoder"`
	TrainDiffusion string `toml:"train_diffusion"`
	Sample         string `toml:"sample"`
	Metrics        string `toml:"metrics"`
	Encode         string `toml:"encode"`
	Decode         string `toml:"decode"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline.
//
// Configuration sections by subsystem:
//   - Paths: workspace and artifact directories
//   - Dataset: corpus selection and sequence-length filters
//   - Encoder / Decoder: component selection by registry name
//   - Training: knobs forwarded to external training collaborators
//   - Generation: inference sampling settings
//   - Metrics: metric names evaluated on generated samples
//   - Tools: external collaborator commands per stage
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Dataset       Dataset       `toml:"dataset"`
	Encoder       Encoder       `toml:"encoder"`
	Decoder       Decoder       `toml:"decoder"`
	Training      Training      `toml:"training"`
	Generation    Generation    `toml:"generation"`
	Metrics       Metrics       `toml:"metrics"`
	Tools         Tools         `toml:"tools"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dima/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/dima/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dima.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.WorkspaceDir,
		c.Paths.DataDir,
		c.Paths.WeightsDir,
		c.Paths.StatisticsDir,
		c.Paths.CheckpointsDir,
		c.Paths.SamplesDir,
		c.Paths.LogDir,
	} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
