package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"dima/internal/component"
	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services/toolrunner"
)

// ModelSetup resolves the configured encoder and decoder from the registry,
// checks their compatibility, and fetches pretrained weights.
type ModelSetup struct {
	base
}

// NewModelSetup constructs the model setup stage.
func NewModelSetup(deps Deps) *ModelSetup {
	return &ModelSetup{base: newBase(NameModelSetup, deps)}
}

func (s *ModelSetup) weightsDir() string {
	return filepath.Join(s.cfg.Paths.WeightsDir, s.cfg.Encoder.Name)
}

func (s *ModelSetup) resolve() (component.Encoder, component.Decoder, []string) {
	var problems []string
	encoder, err := s.reg.Encoder(s.cfg.Encoder.Name)
	if err != nil {
		problems = append(problems, err.Error())
	}
	decoder, err := s.reg.Decoder(s.cfg.Decoder.Name)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if encoder != nil && decoder != nil && decoder.InputDim() != 0 && decoder.InputDim() != encoder.OutputDim() {
		problems = append(problems, fmt.Sprintf(
			"decoder %s expects dim %d but encoder %s produces dim %d",
			decoder.Name(), decoder.InputDim(), encoder.Name(), encoder.OutputDim()))
	}
	return encoder, decoder, problems
}

// Validate confirms the encoder/decoder pair resolves and is compatible.
func (s *ModelSetup) Validate(ctx context.Context, req pipeline.Request) []string {
	_, _, problems := s.resolve()
	if s.cfg.Paths.WeightsDir == "" {
		problems = append(problems, "weights directory is not configured")
	}
	return problems
}

// Run fetches pretrained weights and records the resolved component names.
func (s *ModelSetup) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	encoder, decoder, problems := s.resolve()
	if len(problems) > 0 {
		return failed(nil), servicesValidation(s.name, problems)
	}

	dir := s.weightsDir()
	outputs := map[string]any{
		pipeline.KeyWeightsDir:  dir,
		pipeline.KeyEncoderName: encoder.Name(),
		pipeline.KeyDecoderName: decoder.Name(),
	}

	if dirPopulated(dir) {
		s.log.Info("weights already fetched",
			logging.String("weights_dir", dir),
			logging.String("encoder", encoder.Name()),
		)
		return skipped(fmt.Sprintf("weights for %s already fetched", encoder.Name()), outputs), nil
	}

	if _, err := s.run.Run(ctx, toolrunner.Command{
		Name:   s.name,
		Binary: s.cfg.Tools.FetchWeights,
		Args: []string{
			"--encoder", encoder.Name(),
			"--model", s.cfg.Encoder.Model,
			"--output", dir,
		},
		Timeout: s.toolTimeout(),
	}); err != nil {
		return failed(nil), err
	}

	return succeeded(fmt.Sprintf("weights for %s fetched", encoder.Name()), outputs), nil
}
