package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"dima/internal/fileutil"
	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services/toolrunner"
)

// DecoderTraining trains the sequence decoder on encoder latents. Intrinsic
// decoders ship pretrained and skip the stage entirely.
type DecoderTraining struct {
	base
}

// NewDecoderTraining constructs the decoder training stage.
func NewDecoderTraining(deps Deps) *DecoderTraining {
	return &DecoderTraining{base: newBase(NameDecoderTraining, deps)}
}

func (s *DecoderTraining) checkpointPath() string {
	if path := strings.TrimSpace(s.cfg.Decoder.Checkpoint); path != "" {
		return path
	}
	name := fmt.Sprintf("decoder_%s_%s.pt", s.cfg.Decoder.Name, s.cfg.Encoder.Name)
	return filepath.Join(s.cfg.Paths.CheckpointsDir, name)
}

// Validate requires a resolvable decoder and, for trainable decoders, the
// upstream dataset and statistics artifacts.
func (s *DecoderTraining) Validate(ctx context.Context, req pipeline.Request) []string {
	decoder, err := s.reg.Decoder(s.cfg.Decoder.Name)
	if err != nil {
		return []string{err.Error()}
	}
	if decoder.Intrinsic() {
		return nil
	}
	var problems []string
	if _, ok := contextPath(req.Context, pipeline.KeyDatasetDir); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing dataset directory", pipeline.KeyDatasetDir))
	}
	if _, ok := contextPath(req.Context, pipeline.KeyStatisticsPath); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing statistics file", pipeline.KeyStatisticsPath))
	}
	return problems
}

// Run trains the decoder, skipping for intrinsic decoders and existing
// checkpoints.
func (s *DecoderTraining) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	decoder, err := s.reg.Decoder(s.cfg.Decoder.Name)
	if err != nil {
		return failed(nil), err
	}
	if decoder.Intrinsic() {
		s.log.Info("decoder is intrinsic, no training needed", logging.String("decoder", decoder.Name()))
		return skipped(fmt.Sprintf("decoder %s is intrinsic", decoder.Name()), nil), nil
	}

	path := s.checkpointPath()
	outputs := map[string]any{pipeline.KeyDecoderCheckpoint: path}
	if fileutil.Exists(path) {
		s.log.Info("decoder checkpoint already present", logging.String("checkpoint", path))
		return skipped("decoder checkpoint already present", outputs), nil
	}

	datasetDir, _ := contextPath(req.Context, pipeline.KeyDatasetDir)
	statisticsPath, _ := contextPath(req.Context, pipeline.KeyStatisticsPath)

	if _, err := s.run.Run(ctx, toolrunner.Command{
		Name:   s.name,
		Binary: s.cfg.Tools.TrainDecoder,
		Args: []string{
			"--decoder", decoder.Name(),
			"--encoder", s.cfg.Encoder.Name,
			"--dataset-dir", datasetDir,
			"--statistics", statisticsPath,
			"--batch-size", strconv.Itoa(paramInt(req.Params, "batch_size", s.cfg.Training.BatchSize)),
			"--num-gpus", strconv.Itoa(s.cfg.Training.NumGPUs),
			"--master-port", strconv.Itoa(s.cfg.Training.MasterPort),
			"--output", path,
		},
		Timeout: s.toolTimeout(),
	}); err != nil {
		return failed(nil), err
	}

	return succeeded(fmt.Sprintf("decoder %s trained", decoder.Name()), outputs), nil
}
