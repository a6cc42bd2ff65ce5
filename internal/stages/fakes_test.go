package stages

import (
	"context"
	"errors"
	"testing"

	"dima/internal/component"
	"dima/internal/registry"
)

type fakeEncoder struct {
	name string
	dim  int
}

func (f *fakeEncoder) Name() string   { return f.name }
func (f *fakeEncoder) OutputDim() int { return f.dim }
func (f *fakeEncoder) Encode(context.Context, []string) (*component.Embeddings, error) {
	return &component.Embeddings{Dim: f.dim}, nil
}

type fakeDecoder struct {
	name      string
	inputDim  int
	intrinsic bool
}

func (f *fakeDecoder) Name() string    { return f.name }
func (f *fakeDecoder) InputDim() int   { return f.inputDim }
func (f *fakeDecoder) Intrinsic() bool { return f.intrinsic }
func (f *fakeDecoder) Decode(context.Context, *component.Embeddings) ([]string, error) {
	return nil, nil
}

type fakeMetric struct {
	name         string
	requiresRefs bool
	value        float64
	err          error
	gotPreds     []string
	gotRefs      []string
}

func (f *fakeMetric) Name() string             { return f.name }
func (f *fakeMetric) RequiresReferences() bool { return f.requiresRefs }
func (f *fakeMetric) Compute(_ context.Context, predictions, references []string, _ map[string]any) (float64, error) {
	f.gotPreds = predictions
	f.gotRefs = references
	if f.err != nil {
		return 0, f.err
	}
	return f.value, nil
}

var errMetricBoom = errors.New("fold server unreachable")

func registerFakeComponents(t *testing.T, reg *registry.Registry) {
	t.Helper()
	entries := []struct {
		kind registry.Kind
		name string
		impl any
	}{
		{registry.KindEncoder, "esm2", &fakeEncoder{name: "esm2", dim: 1280}},
		{registry.KindEncoder, "cheap", &fakeEncoder{name: "cheap", dim: 1024}},
		{registry.KindDecoder, "lm_head", &fakeDecoder{name: "lm_head"}},
		{registry.KindDecoder, "cheap", &fakeDecoder{name: "cheap", inputDim: 1024, intrinsic: true}},
		{registry.KindDecoder, "narrow", &fakeDecoder{name: "narrow", inputDim: 640}},
		{registry.KindMetric, "fid", &fakeMetric{name: "fid", requiresRefs: true, value: 0.31}},
		{registry.KindMetric, "esm_pppl", &fakeMetric{name: "esm_pppl", value: 7.2}},
		{registry.KindMetric, "plddt", &fakeMetric{name: "plddt", err: errMetricBoom}},
	}
	for _, e := range entries {
		if err := reg.Register(e.kind, e.name, e.impl, false); err != nil {
			t.Fatal(err)
		}
	}
}
