package stages

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dima/internal/component"
	"dima/internal/fileutil"
	"dima/internal/logging"
	"dima/internal/pipeline"
	"dima/internal/services"
)

// MetricsEvaluation scores the generated samples with every configured
// metric and writes a JSON report.
type MetricsEvaluation struct {
	base
}

// NewMetricsEvaluation constructs the metrics evaluation stage.
func NewMetricsEvaluation(deps Deps) *MetricsEvaluation {
	return &MetricsEvaluation{base: newBase(NameMetricsEvaluation, deps)}
}

func (s *MetricsEvaluation) metricNames(params map[string]any) []string {
	if names := paramStringSlice(params, "metrics"); len(names) > 0 {
		return names
	}
	return s.cfg.Metrics.Names
}

func (s *MetricsEvaluation) resolveMetrics(params map[string]any) ([]component.Metric, []string) {
	var (
		metrics  []component.Metric
		problems []string
		needRefs bool
	)
	names := s.metricNames(params)
	if len(names) == 0 {
		problems = append(problems, "no metrics configured")
	}
	for _, name := range names {
		metric, err := s.reg.Metric(name)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if metric.RequiresReferences() {
			needRefs = true
		}
		metrics = append(metrics, metric)
	}
	if needRefs && strings.TrimSpace(s.cfg.Dataset.ReferencesPath) == "" {
		problems = append(problems, "distribution metrics need dataset.references_path")
	}
	return metrics, problems
}

// Validate resolves every configured metric and checks reference
// availability for the ones that compare distributions.
func (s *MetricsEvaluation) Validate(ctx context.Context, req pipeline.Request) []string {
	_, problems := s.resolveMetrics(req.Params)
	if _, ok := contextPath(req.Context, pipeline.KeySamplesPath); !ok {
		problems = append(problems, fmt.Sprintf("context key %s does not name an existing samples file", pipeline.KeySamplesPath))
	}
	return problems
}

// report is the JSON document written for each evaluation.
type report struct {
	RunID       string             `json:"run_id,omitempty"`
	SamplesPath string             `json:"samples_path"`
	NumSamples  int                `json:"num_samples"`
	Values      map[string]float64 `json:"values"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Run evaluates every metric and writes the report. One failing metric fails
// the stage; values computed before the failure are surfaced in the result
// outputs for the run summary.
func (s *MetricsEvaluation) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	metrics, problems := s.resolveMetrics(req.Params)
	if len(problems) > 0 {
		return failed(nil), servicesValidation(s.name, problems)
	}

	samplesPath, ok := contextPath(req.Context, pipeline.KeySamplesPath)
	if !ok {
		return failed(nil), servicesValidation(s.name, []string{"samples file missing from run context"})
	}
	predictions, err := readSequences(samplesPath)
	if err != nil {
		return failed(nil), services.Wrap(services.ErrExecution, s.name, "read samples", samplesPath, err)
	}
	if limit := s.cfg.Metrics.MaxSamples; limit > 0 && len(predictions) > limit {
		predictions = predictions[:limit]
	}

	var references []string
	if path := strings.TrimSpace(s.cfg.Dataset.ReferencesPath); path != "" {
		references, err = readSequences(path)
		if err != nil {
			return failed(nil), services.Wrap(services.ErrExecution, s.name, "read references", path, err)
		}
	}

	values := make(map[string]float64, len(metrics))
	for _, metric := range metrics {
		value, err := metric.Compute(ctx, predictions, references, req.Params)
		if err != nil {
			outputs := map[string]any{"metrics_evaluation.partial_values": values}
			return failed(outputs), services.Wrap(services.ErrExecution, s.name, metric.Name(), "metric computation failed", err)
		}
		values[metric.Name()] = value
		s.log.Info("metric computed",
			logging.String("metric", metric.Name()),
			logging.Float64("value", value),
		)
	}

	reportPath := s.reportPath(req.RunID)
	doc := report{
		RunID:       req.RunID,
		SamplesPath: samplesPath,
		NumSamples:  len(predictions),
		Values:      values,
		GeneratedAt: time.Now().UTC(),
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return failed(nil), services.Wrap(services.ErrExecution, s.name, "encode report", "", err)
	}
	if err := fileutil.WriteFileAtomic(reportPath, encoded, 0o644); err != nil {
		return failed(nil), services.Wrap(services.ErrExecution, s.name, "write report", reportPath, err)
	}

	outputs := map[string]any{
		pipeline.KeyMetricsReport:   reportPath,
		"metrics_evaluation.values": values,
	}
	return succeeded(fmt.Sprintf("%d metrics evaluated", len(values)), outputs), nil
}

func (s *MetricsEvaluation) reportPath(runID string) string {
	name := fmt.Sprintf("metrics_%s.json", runID)
	if runID == "" {
		name = "metrics.json"
	}
	return filepath.Join(s.cfg.Paths.SamplesDir, name)
}

// readSequences reads one sequence per line, tolerating FASTA input by
// folding record lines and dropping headers.
func readSequences(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		sequences []string
		current   strings.Builder
		fasta     bool
	)
	flush := func() {
		if current.Len() > 0 {
			sequences = append(sequences, current.String())
			current.Reset()
		}
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			fasta = true
			flush()
			continue
		}
		if fasta {
			current.WriteString(line)
		} else {
			sequences = append(sequences, line)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sequences, nil
}
