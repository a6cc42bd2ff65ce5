package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services/toolrunner"
)

// Inference samples new sequences from the trained diffusion model.
type Inference struct {
	base
}

// NewInference constructs the inference stage.
func NewInference(deps Deps) *Inference {
	return &Inference{base: newBase(NameInference, deps)}
}

// diffusionCheckpoint prefers an explicitly configured checkpoint over the
// one the training stage produced.
func (s *Inference) diffusionCheckpoint(run *pipeline.Context) (string, bool) {
	if path := strings.TrimSpace(s.cfg.Generation.Checkpoint); path != "" {
		return path, true
	}
	return contextPath(run, pipeline.KeyDiffusionCheckpoint)
}

func (s *Inference) samplesPath(runID string) string {
	name := fmt.Sprintf("samples_%s.fasta", runID)
	if runID == "" {
		name = "samples.fasta"
	}
	return filepath.Join(s.cfg.Paths.SamplesDir, name)
}

// Validate requires a diffusion checkpoint and, for trainable decoders, a
// decoder checkpoint.
func (s *Inference) Validate(ctx context.Context, req pipeline.Request) []string {
	var problems []string
	if _, ok := s.diffusionCheckpoint(req.Context); !ok {
		problems = append(problems, "no diffusion checkpoint available (train first or set generation.checkpoint)")
	}
	decoder, err := s.reg.Decoder(s.cfg.Decoder.Name)
	if err != nil {
		problems = append(problems, err.Error())
	} else if !decoder.Intrinsic() {
		if _, ok := contextPath(req.Context, pipeline.KeyDecoderCheckpoint); !ok {
			problems = append(problems, fmt.Sprintf("context key %s does not name an existing decoder checkpoint", pipeline.KeyDecoderCheckpoint))
		}
	}
	if s.cfg.Paths.SamplesDir == "" {
		problems = append(problems, "samples directory is not configured")
	}
	return problems
}

// Run generates samples. Unlike the training stages it always reruns: each
// run gets its own samples file.
func (s *Inference) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	checkpoint, ok := s.diffusionCheckpoint(req.Context)
	if !ok {
		return failed(nil), servicesValidation(s.name, []string{"no diffusion checkpoint available (train first or set generation.checkpoint)"})
	}

	path := s.samplesPath(req.RunID)
	outputs := map[string]any{pipeline.KeySamplesPath: path}
	numSamples := paramInt(req.Params, "num_samples", s.cfg.Generation.NumSamples)

	args := []string{
		"--checkpoint", checkpoint,
		"--encoder", s.cfg.Encoder.Name,
		"--decoder", s.cfg.Decoder.Name,
		"--num-samples", strconv.Itoa(numSamples),
		"--output", path,
	}
	if statisticsPath, ok := contextPath(req.Context, pipeline.KeyStatisticsPath); ok {
		args = append(args, "--statistics", statisticsPath)
	}
	if decoderCheckpoint, ok := contextPath(req.Context, pipeline.KeyDecoderCheckpoint); ok {
		args = append(args, "--decoder-checkpoint", decoderCheckpoint)
	}

	if _, err := s.run.Run(ctx, toolrunner.Command{
		Name:    s.name,
		Binary:  s.cfg.Tools.Sample,
		Args:    args,
		Timeout: s.toolTimeout(),
	}); err != nil {
		return failed(nil), err
	}

	s.log.Info("samples generated",
		logging.String("samples_path", path),
		logging.Int("num_samples", numSamples),
	)
	return succeeded(fmt.Sprintf("%d samples generated", numSamples), outputs), nil
}
