package components

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"dima/internal/component"
	"dima/internal/config"
	"dima/internal/registry"
	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// scriptedRunner replays canned tool output and records the invocation.
type scriptedRunner struct {
	stdout []byte
	err    error
	got    toolrunner.Command
	input  []byte
}

func (s *scriptedRunner) Run(_ context.Context, cmd toolrunner.Command) ([]byte, error) {
	s.got = cmd
	// Snapshot the staged input now: the component removes the temp file
	// once its call returns, so reading it later would miss it.
	s.input = nil
	for i, arg := range cmd.Args {
		if arg == "--input" && i+1 < len(cmd.Args) {
			s.input, _ = os.ReadFile(cmd.Args[i+1])
		}
	}
	return s.stdout, s.err
}

func (s *scriptedRunner) inputPayload(t *testing.T) map[string]any {
	t.Helper()
	var path string
	for i, arg := range s.got.Args {
		if arg == "--input" && i+1 < len(s.got.Args) {
			path = s.got.Args[i+1]
		}
	}
	if path == "" {
		t.Fatalf("no --input flag in args %v", s.got.Args)
	}
	data := s.input
	if data == nil {
		t.Fatalf("read staged input: no input captured for %s", path)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode staged input: %v", err)
	}
	return payload
}

var testTools = Tools{Encode: "dima-encode", Decode: "dima-decode", Metrics: "dima-metrics"}

func TestEncoderMetadata(t *testing.T) {
	tests := []struct {
		name string
		dim  int
	}{
		{"esm2", 1280},
		{"saprot", 1280},
		{"cheap", 1024},
	}
	runner := &scriptedRunner{}
	encoders := map[string]interface {
		Name() string
		OutputDim() int
	}{
		"esm2":   NewESM2(runner, testTools, ""),
		"saprot": NewSaProt(runner, testTools),
		"cheap":  NewCHEAP(runner, testTools),
	}
	for _, tc := range tests {
		enc := encoders[tc.name]
		if enc.Name() != tc.name {
			t.Fatalf("name = %q, want %q", enc.Name(), tc.name)
		}
		if enc.OutputDim() != tc.dim {
			t.Fatalf("%s dim = %d, want %d", tc.name, enc.OutputDim(), tc.dim)
		}
	}
}

func TestEncodeDelegatesToTool(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"dim": 1280, "vectors": [[0.1], [0.2]]}`)}
	enc := NewESM2(runner, testTools, "facebook/esm2_t12_35M_UR50D")

	// The canned output deliberately mismatches dim to prove the check; use
	// matching batch size first.
	embeddings, err := enc.Encode(context.Background(), []string{"MKV", "MAA"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if embeddings.Len() != 2 || embeddings.Dim != 1280 {
		t.Fatalf("embeddings = %d vectors dim %d", embeddings.Len(), embeddings.Dim)
	}
	if runner.got.Binary != "dima-encode" {
		t.Fatalf("binary = %q", runner.got.Binary)
	}
	joined := strings.Join(runner.got.Args, " ")
	if !strings.Contains(joined, "--encoder esm2") || !strings.Contains(joined, "esm2_t12_35M") {
		t.Fatalf("args = %q", joined)
	}

	payload := runner.inputPayload(t)
	seqs, _ := payload["sequences"].([]any)
	if len(seqs) != 2 || seqs[0] != "MKV" {
		t.Fatalf("staged sequences = %v", payload["sequences"])
	}
}

func TestEncodeRejectsDimMismatch(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"dim": 640, "vectors": [[0.1]]}`)}
	enc := NewESM2(runner, testTools, "")
	_, err := enc.Encode(context.Background(), []string{"MKV"})
	if !errors.Is(err, services.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
}

func TestEncodeRejectsCountMismatch(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"dim": 1280, "vectors": [[0.1]]}`)}
	enc := NewESM2(runner, testTools, "")
	_, err := enc.Encode(context.Background(), []string{"MKV", "MAA"})
	if !errors.Is(err, services.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
}

func TestEncodeEmptyBatchSkipsTool(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("must not run")}
	enc := NewCHEAP(runner, testTools)
	embeddings, err := enc.Encode(context.Background(), nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if embeddings.Dim != 1024 || embeddings.Len() != 0 {
		t.Fatalf("embeddings = %+v", embeddings)
	}
}

func TestDecoderMetadata(t *testing.T) {
	runner := &scriptedRunner{}
	lmHead := NewLMHead(runner, testTools)
	if lmHead.Intrinsic() || lmHead.InputDim() != 0 {
		t.Fatalf("lm_head metadata = intrinsic %v dim %d", lmHead.Intrinsic(), lmHead.InputDim())
	}
	cheap := NewCHEAPDecoder(runner, testTools)
	if !cheap.Intrinsic() || cheap.InputDim() != 1024 {
		t.Fatalf("cheap metadata = intrinsic %v dim %d", cheap.Intrinsic(), cheap.InputDim())
	}
}

func TestDecodeDelegatesToTool(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"sequences": ["MKV"]}`)}
	dec := NewLMHead(runner, testTools)

	seqs, err := dec.Decode(context.Background(), embeddingsOf(1280, 1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(seqs) != 1 || seqs[0] != "MKV" {
		t.Fatalf("sequences = %v", seqs)
	}
	if runner.got.Binary != "dima-decode" {
		t.Fatalf("binary = %q", runner.got.Binary)
	}
}

func TestDecodeRejectsWrongDim(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"sequences": ["MKV"]}`)}
	dec := NewCHEAPDecoder(runner, testTools)
	_, err := dec.Decode(context.Background(), embeddingsOf(1280, 1))
	if !errors.Is(err, services.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
}

func TestMetricReferenceRequirements(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"value": 0.5}`)}
	tests := []struct {
		name         string
		requiresRefs bool
	}{
		{"fid", true},
		{"mmd", true},
		{"esm_pppl", false},
		{"plddt", false},
	}
	metrics := map[string]interface {
		Name() string
		RequiresReferences() bool
	}{
		"fid":      NewFID(runner, testTools),
		"mmd":      NewMMD(runner, testTools),
		"esm_pppl": NewESMPseudoPerplexity(runner, testTools),
		"plddt":    NewPLDDT(runner, testTools),
	}
	for _, tc := range tests {
		if got := metrics[tc.name].RequiresReferences(); got != tc.requiresRefs {
			t.Fatalf("%s RequiresReferences = %v", tc.name, got)
		}
	}
}

func TestMetricComputeValidation(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{"value": 0.5}`)}
	fid := NewFID(runner, testTools)

	_, err := fid.Compute(context.Background(), []string{"MKV"}, nil, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation without references, got %v", err)
	}
	_, err = fid.Compute(context.Background(), nil, []string{"MAA"}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation without predictions, got %v", err)
	}

	value, err := fid.Compute(context.Background(), []string{"MKV"}, []string{"MAA"}, map[string]any{"max_samples": 100})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if value != 0.5 {
		t.Fatalf("value = %v", value)
	}
	payload := runner.inputPayload(t)
	if _, ok := payload["references"]; !ok {
		t.Fatal("references missing from staged input")
	}
	params, _ := payload["params"].(map[string]any)
	if params["max_samples"] != float64(100) {
		t.Fatalf("params = %v", payload["params"])
	}
}

func TestMetricComputeRejectsMissingValue(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte(`{}`)}
	metric := NewPLDDT(runner, testTools)
	_, err := metric.Compute(context.Background(), []string{"MKV"}, nil, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestMetricComputeRejectsGarbageOutput(t *testing.T) {
	runner := &scriptedRunner{stdout: []byte("Traceback (most recent call last):")}
	metric := NewMMD(runner, testTools)
	_, err := metric.Compute(context.Background(), []string{"MKV"}, []string{"MAA"}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	cfg := config.Default()
	reg := registry.New()
	if err := RegisterBuiltins(reg, nil, &cfg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	wantEncoders := []string{"esm2", "saprot", "cheap"}
	if got := reg.List(registry.KindEncoder); len(got) != len(wantEncoders) {
		t.Fatalf("encoders = %v", got)
	}
	for _, name := range []string{"lm_head", "transformer", "cheap"} {
		if !reg.Has(registry.KindDecoder, name) {
			t.Fatalf("decoder %q missing", name)
		}
	}
	for _, name := range []string{"fid", "mmd", "esm_pppl", "plddt"} {
		if !reg.Has(registry.KindMetric, name) {
			t.Fatalf("metric %q missing", name)
		}
	}

	// Registering twice collides on every name.
	if err := RegisterBuiltins(reg, nil, &cfg); !errors.Is(err, services.ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
}

func embeddingsOf(dim, count int) *component.Embeddings {
	vectors := make([][]float64, count)
	for i := range vectors {
		vectors[i] = make([]float64, dim)
	}
	return &component.Embeddings{Dim: dim, Vectors: vectors}
}
