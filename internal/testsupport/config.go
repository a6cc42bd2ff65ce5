package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dima/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp workspace per test.
// It defaults common fields, applies any provided options, and creates the
// workspace directory layout.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = base
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WeightsDir = filepath.Join(base, "weights")
	cfgVal.Paths.StatisticsDir = filepath.Join(base, "statistics")
	cfgVal.Paths.CheckpointsDir = filepath.Join(base, "checkpoints")
	cfgVal.Paths.SamplesDir = filepath.Join(base, "samples")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithDataset overrides the dataset name on the test config.
func WithDataset(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dataset.Name = name
	}
}

// WithEncoder overrides the encoder selection on the test config.
func WithEncoder(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoder.Name = name
	}
}

// WithStubbedTools writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external tool set is
// stubbed.
func WithStubbedTools(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			tools := b.cfg.Tools
			names = []string{
				tools.DataPrep, tools.FetchWeights, tools.Statistics,
				tools.TrainDecoder, tools.TrainDiffusion, tools.Sample,
				tools.Metrics, tools.Encode, tools.Decode,
			}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.WorkspaceDir
}
