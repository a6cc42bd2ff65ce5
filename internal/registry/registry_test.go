package registry

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"dima/internal/component"
	"dima/internal/pipeline"
	"dima/internal/services"
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

type fakeStage struct{ name string }

func (f *fakeStage) Name() string                                        { return f.name }
func (f *fakeStage) Validate(context.Context, pipeline.Request) []string { return nil }
func (f *fakeStage) Run(context.Context, pipeline.Request) (pipeline.Result, error) {
	return pipeline.Result{Status: pipeline.StatusSucceeded}, nil
}

func TestRegisterAndResolve(t *testing.T) {
	reg := New()
	enc := &fakeEncoder{name: "esm2", dim: 1280}
	if err := reg.Register(KindEncoder, "esm2", enc, false); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Encoder("esm2")
	if err != nil {
		t.Fatalf("Encoder: %v", err)
	}
	if got.OutputDim() != 1280 {
		t.Fatalf("resolved wrong encoder: dim %d", got.OutputDim())
	}
	if !reg.Has(KindEncoder, "esm2") {
		t.Fatal("Has reported false for a registered name")
	}
}

func TestRegisterDuplicateRequiresOverride(t *testing.T) {
	reg := New()
	if err := reg.Register(KindEncoder, "esm2", &fakeEncoder{name: "esm2", dim: 1280}, false); err != nil {
		t.Fatal(err)
	}

	err := reg.Register(KindEncoder, "esm2", &fakeEncoder{name: "esm2", dim: 640}, false)
	if !errors.Is(err, services.ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	// The original stays in place after a rejected duplicate.
	enc, err := reg.Encoder("esm2")
	if err != nil {
		t.Fatal(err)
	}
	if enc.OutputDim() != 1280 {
		t.Fatalf("rejected duplicate replaced the original: dim %d", enc.OutputDim())
	}

	if err := reg.Register(KindEncoder, "esm2", &fakeEncoder{name: "esm2", dim: 640}, true); err != nil {
		t.Fatalf("override Register: %v", err)
	}
	enc, err = reg.Encoder("esm2")
	if err != nil {
		t.Fatal(err)
	}
	if enc.OutputDim() != 640 {
		t.Fatalf("override did not replace: dim %d", enc.OutputDim())
	}
}

func TestOverrideKeepsListPosition(t *testing.T) {
	reg := New()
	for _, name := range []string{"esm2", "saprot", "cheap"} {
		if err := reg.Register(KindEncoder, name, &fakeEncoder{name: name, dim: 8}, false); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.Register(KindEncoder, "saprot", &fakeEncoder{name: "saprot", dim: 16}, true); err != nil {
		t.Fatal(err)
	}
	want := []string{"esm2", "saprot", "cheap"}
	if got := reg.List(KindEncoder); !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
}

func TestCapabilityCheck(t *testing.T) {
	reg := New()
	err := reg.Register(KindStage, "bogus", &fakeEncoder{name: "bogus"}, false)
	if !errors.Is(err, services.ErrRegistration) {
		t.Fatalf("expected ErrRegistration for a capability mismatch, got %v", err)
	}
	err = reg.Register(KindEncoder, "nil", nil, false)
	if !errors.Is(err, services.ErrRegistration) {
		t.Fatalf("expected ErrRegistration for nil impl, got %v", err)
	}
	err = reg.Register(Kind("widget"), "x", &fakeEncoder{}, false)
	if !errors.Is(err, services.ErrRegistration) {
		t.Fatalf("expected ErrRegistration for unknown kind, got %v", err)
	}
}

func TestResolveUnknownListsKnownNames(t *testing.T) {
	reg := New()
	if err := reg.Register(KindEncoder, "esm2", &fakeEncoder{name: "esm2"}, false); err != nil {
		t.Fatal(err)
	}
	_, err := reg.Encoder("esm3")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "esm2") {
		t.Fatalf("error does not list known names: %v", err)
	}
}

func TestNamesAreScopedPerKind(t *testing.T) {
	reg := New()
	if err := reg.Register(KindEncoder, "cheap", &fakeEncoder{name: "cheap"}, false); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(KindStage, "cheap", &fakeStage{name: "cheap"}, false); err != nil {
		t.Fatalf("same name under a different kind should register: %v", err)
	}
}

func TestRegistrySatisfiesResolver(t *testing.T) {
	reg := New()
	if err := reg.Register(KindStage, "inference", &fakeStage{name: "inference"}, false); err != nil {
		t.Fatal(err)
	}
	var resolver pipeline.Resolver = reg
	stage, err := resolver.Stage("inference")
	if err != nil {
		t.Fatalf("resolver Stage: %v", err)
	}
	if stage.Name() != "inference" {
		t.Fatalf("resolved stage %q", stage.Name())
	}
}

func TestSnapshot(t *testing.T) {
	reg := New()
	if err := reg.Register(KindEncoder, "esm2", &fakeEncoder{name: "esm2"}, false); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(KindStage, "inference", &fakeStage{name: "inference"}, false); err != nil {
		t.Fatal(err)
	}
	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d kinds", len(snap))
	}
	if !reflect.DeepEqual(snap[KindEncoder], []string{"esm2"}) {
		t.Fatalf("encoders = %v", snap[KindEncoder])
	}
	if _, ok := snap[KindMetric]; ok {
		t.Fatal("snapshot contains an empty kind")
	}
}
