package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"dima/internal/fileutil"
	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services/toolrunner"
)

// DiffusionTraining trains the latent diffusion model, the centerpiece of
// the pipeline and typically its longest stage.
type DiffusionTraining struct {
	base
}

// NewDiffusionTraining constructs the diffusion training stage.
func NewDiffusionTraining(deps Deps) *DiffusionTraining {
	return &DiffusionTraining{base: newBase(NameDiffusionTraining, deps)}
}

func (s *DiffusionTraining) checkpointPath() string {
	name := fmt.Sprintf("diffusion_%s_%s.pt", s.cfg.Dataset.Name, s.cfg.Encoder.Name)
	return filepath.Join(s.cfg.Paths.CheckpointsDir, name)
}

// Validate requires the dataset, weights, and statistics artifacts.
func (s *DiffusionTraining) Validate(ctx context.Context, req pipeline.Request) []string {
	var problems []string
	if _, ok := contextPath(req.Context, pipeline.KeyDatasetDir); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing dataset directory", pipeline.KeyDatasetDir))
	}
	if _, ok := contextPath(req.Context, pipeline.KeyWeightsDir); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing weights directory", pipeline.KeyWeightsDir))
	}
	if _, ok := contextPath(req.Context, pipeline.KeyStatisticsPath); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing statistics file", pipeline.KeyStatisticsPath))
	}
	return problems
}

// Run trains the diffusion model, skipping when its checkpoint exists.
func (s *DiffusionTraining) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	path := s.checkpointPath()
	outputs := map[string]any{pipeline.KeyDiffusionCheckpoint: path}
	if fileutil.Exists(path) {
		s.log.Info("diffusion checkpoint already present", logging.String("checkpoint", path))
		return skipped("diffusion checkpoint already present", outputs), nil
	}

	if problems := s.Validate(ctx, req); len(problems) > 0 {
		return failed(nil), servicesValidation(s.name, problems)
	}

	datasetDir, _ := contextPath(req.Context, pipeline.KeyDatasetDir)
	weightsDir, _ := contextPath(req.Context, pipeline.KeyWeightsDir)
	statisticsPath, _ := contextPath(req.Context, pipeline.KeyStatisticsPath)

	if _, err := s.run.Run(ctx, toolrunner.Command{
		Name:   s.name,
		Binary: s.cfg.Tools.TrainDiffusion,
		Args: []string{
			"--encoder", s.cfg.Encoder.Name,
			"--dataset-dir", datasetDir,
			"--weights-dir", weightsDir,
			"--statistics", statisticsPath,
			"--batch-size", strconv.Itoa(paramInt(req.Params, "batch_size", s.cfg.Training.BatchSize)),
			"--max-steps", strconv.Itoa(paramInt(req.Params, "max_steps", s.cfg.Training.MaxSteps)),
			"--num-gpus", strconv.Itoa(s.cfg.Training.NumGPUs),
			"--master-port", strconv.Itoa(s.cfg.Training.MasterPort),
			"--output", path,
		},
		Timeout: s.toolTimeout(),
	}); err != nil {
		return failed(nil), err
	}

	return succeeded("diffusion model trained", outputs), nil
}
