package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default returns the repository defaults applied before any file is read.
func Default() Config {
	base := defaultWorkspaceDir()
	return Config{
		Paths: Paths{
			WorkspaceDir:   base,
			DataDir:        filepath.Join(base, "data"),
			WeightsDir:     filepath.Join(base, "weights"),
			StatisticsDir:  filepath.Join(base, "statistics"),
			CheckpointsDir: filepath.Join(base, "checkpoints"),
			SamplesDir:     filepath.Join(base, "samples"),
			LogDir:         filepath.Join(base, "logs"),
		},
		Dataset: Dataset{
			Name:           "afdb",
			Hub:            "bayes-group-diffusion/AFDB-v2",
			MinSequenceLen: 64,
			MaxSequenceLen: 510,
		},
		Encoder: Encoder{
			Name:  "esm2",
			Model: "facebook/esm2_t33_650M_UR50D",
		},
		Decoder: Decoder{
			Name: "lm_head",
		},
		Training: Training{
			BatchSize:  512,
			MaxSteps:   1_000_000,
			NumGPUs:    1,
			MasterPort: 31345,
		},
		Generation: Generation{
			NumSamples: 2048,
		},
		Metrics: Metrics{
			Names: []string{"fid", "mmd", "esm_pppl"},
		},
		Tools: Tools{
			DataPrep:       "dima-dataprep",
			FetchWeights:   "dima-fetch",
			Statistics:     "dima-stats",
			TrainDecoder:   "dima-train-decoder",
			TrainDiffusion: "dima-train-diffusion",
			Sample:         "dima-sample",
			Metrics:        "dima-metrics",
			Encode:         "dima-encode",
			Decode:         "dima-decode",
			TimeoutSeconds: 0,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func defaultWorkspaceDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "dima")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/share/dima"
	}
	return filepath.Join(home, ".local", "share", "dima")
}
