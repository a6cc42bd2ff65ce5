package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"dima/internal/fileutil"
	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services/toolrunner"
)

// Statistics computes the latent distribution statistics used to normalize
// embeddings during diffusion training.
type Statistics struct {
	base
}

// NewStatistics constructs the statistics stage.
func NewStatistics(deps Deps) *Statistics {
	return &Statistics{base: newBase(NameStatistics, deps)}
}

func (s *Statistics) statisticsPath() string {
	name := fmt.Sprintf("%s_%s.json", s.cfg.Dataset.Name, s.cfg.Encoder.Name)
	return filepath.Join(s.cfg.Paths.StatisticsDir, name)
}

// Validate requires a prepared dataset in the run context.
func (s *Statistics) Validate(ctx context.Context, req pipeline.Request) []string {
	var problems []string
	if _, ok := contextPath(req.Context, pipeline.KeyDatasetDir); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing dataset directory", pipeline.KeyDatasetDir))
	}
	if s.cfg.Paths.StatisticsDir == "" {
		problems = append(problems, "statistics directory is not configured")
	}
	return problems
}

// Run computes statistics through the collaborator, skipping when the
// statistics file already exists.
func (s *Statistics) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	path := s.statisticsPath()
	outputs := map[string]any{pipeline.KeyStatisticsPath: path}

	if fileutil.Exists(path) {
		s.log.Info("statistics already computed", logging.String("statistics_path", path))
		return skipped("statistics already computed", outputs), nil
	}

	datasetDir, ok := contextPath(req.Context, pipeline.KeyDatasetDir)
	if !ok {
		return failed(nil), servicesValidation(s.name, []string{"dataset directory missing from run context"})
	}

	if _, err := s.run.Run(ctx, toolrunner.Command{
		Name:   s.name,
		Binary: s.cfg.Tools.Statistics,
		Args: []string{
			"--dataset-dir", datasetDir,
			"--encoder", s.cfg.Encoder.Name,
			"--output", path,
		},
		Timeout: s.toolTimeout(),
	}); err != nil {
		return failed(nil), err
	}

	return succeeded("statistics computed", outputs), nil
}
