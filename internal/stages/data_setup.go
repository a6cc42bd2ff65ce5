package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// DataSetup downloads and filters the training corpus through the data-prep
// collaborator.
type DataSetup struct {
	base
}

// NewDataSetup constructs the data setup stage.
func NewDataSetup(deps Deps) *DataSetup {
	return &DataSetup{base: newBase(NameDataSetup, deps)}
}

func (s *DataSetup) datasetDir() string {
	return filepath.Join(s.cfg.Paths.DataDir, s.cfg.Dataset.Name)
}

// Validate checks the dataset selection and workspace layout.
func (s *DataSetup) Validate(ctx context.Context, req pipeline.Request) []string {
	var problems []string
	if strings.TrimSpace(s.cfg.Dataset.Name) == "" {
		problems = append(problems, "dataset name is not configured")
	}
	if strings.TrimSpace(s.cfg.Dataset.Hub) == "" {
		problems = append(problems, "dataset hub is not configured")
	}
	if strings.TrimSpace(s.cfg.Paths.DataDir) == "" {
		problems = append(problems, "data directory is not configured")
	}
	return problems
}

// Run prepares the dataset directory, skipping when it is already populated.
func (s *DataSetup) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	dir := s.datasetDir()
	outputs := map[string]any{pipeline.KeyDatasetDir: dir}

	if dirPopulated(dir) {
		s.log.Info("dataset already prepared", logging.String("dataset_dir", dir))
		return skipped(fmt.Sprintf("dataset %s already prepared", s.cfg.Dataset.Name), outputs), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed(nil), services.Wrap(services.ErrExecution, s.name, "prepare", "create dataset directory", err)
	}

	args := []string{
		"--dataset", s.cfg.Dataset.Name,
		"--hub", s.cfg.Dataset.Hub,
		"--min-len", strconv.Itoa(s.cfg.Dataset.MinSequenceLen),
		"--max-len", strconv.Itoa(s.cfg.Dataset.MaxSequenceLen),
		"--output", dir,
	}
	var env []string
	if token := strings.TrimSpace(s.cfg.Dataset.HubToken); token != "" {
		env = append(env, "HF_TOKEN="+token)
	}

	if _, err := s.run.Run(ctx, toolrunner.Command{
		Name:    s.name,
		Binary:  s.cfg.Tools.DataPrep,
		Args:    args,
		Env:     env,
		Timeout: s.toolTimeout(),
	}); err != nil {
		return failed(nil), err
	}

	return succeeded(fmt.Sprintf("dataset %s prepared", s.cfg.Dataset.Name), outputs), nil
}
