package stages

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"dima/internal/config"
	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/registry"
	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// Stage names as registered and referenced from pipeline definitions.
const (
	NameDataSetup         = "data_setup"
	NameModelSetup        = "model_setup"
	NameStatistics        = "statistics"
	NameDecoderTraining   = "decoder_training"
	NameDiffusionTraining = "diffusion_training"
	NameInference         = "inference"
	NameMetricsEvaluation = "metrics_evaluation"
)

// Names returns the built-in stages in canonical order.
func Names() []string {
	return []string{
		NameDataSetup,
		NameModelSetup,
		NameStatistics,
		NameDecoderTraining,
		NameDiffusionTraining,
		NameInference,
		NameMetricsEvaluation,
	}
}

// Runner is the slice of the tool runner the stages need.
// *toolrunner.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, cmd toolrunner.Command) ([]byte, error)
}

// Deps carries the collaborators every stage shares.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Runner   Runner
	Registry *registry.Registry
}

// Register installs every built-in stage into the registry.
func Register(reg *registry.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = reg
	}
	all := []pipeline.Stage{
		NewDataSetup(deps),
		NewModelSetup(deps),
		NewStatistics(deps),
		NewDecoderTraining(deps),
		NewDiffusionTraining(deps),
		NewInference(deps),
		NewMetricsEvaluation(deps),
	}
	for _, stage := range all {
		if err := reg.Register(registry.KindStage, stage.Name(), stage, false); err != nil {
			return err
		}
	}
	return nil
}

// base carries the shared stage state and helpers.
type base struct {
	name string
	cfg  *config.Config
	log  *slog.Logger
	run  Runner
	reg  *registry.Registry
}

func newBase(name string, deps Deps) base {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return base{
		name: name,
		cfg:  deps.Config,
		log:  logger.With(logging.String(logging.FieldComponent, name)),
		run:  deps.Runner,
		reg:  deps.Registry,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) toolTimeout() time.Duration {
	return time.Duration(b.cfg.Tools.TimeoutSeconds) * time.Second
}

func succeeded(detail string, outputs map[string]any) pipeline.Result {
	return pipeline.Result{Status: pipeline.StatusSucceeded, Detail: detail, Outputs: outputs}
}

func skipped(detail string, outputs map[string]any) pipeline.Result {
	return pipeline.Result{Status: pipeline.StatusSkipped, Detail: detail, Outputs: outputs}
}

func failed(outputs map[string]any) pipeline.Result {
	return pipeline.Result{Status: pipeline.StatusFailed, Outputs: outputs}
}

// servicesValidation folds precondition problems into one tagged error.
func servicesValidation(stage string, problems []string) error {
	return services.Wrap(services.ErrValidation, stage, "validate", strings.Join(problems, "; "), nil)
}

// dirPopulated reports whether path is a directory with at least one entry.
func dirPopulated(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

// contextPath reads a path-valued key from the run context and reports
// whether it names an existing file or directory.
func contextPath(run *pipeline.Context, key string) (string, bool) {
	value := strings.TrimSpace(run.GetString(key))
	if value == "" {
		return "", false
	}
	_, err := os.Stat(value)
	return value, err == nil
}
