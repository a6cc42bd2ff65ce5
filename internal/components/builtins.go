package components

import (
	"time"

	"dima/internal/config"
	"dima/internal/registry"
	"dima/internal/services/toolrunner"
)

// NewTools derives the collaborator binding for built-ins from configuration.
func NewTools(cfg *config.Config) Tools {
	return Tools{
		Encode:  cfg.Tools.Encode,
		Decode:  cfg.Tools.Decode,
		Metrics: cfg.Tools.Metrics,
		Timeout: time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
	}
}

// RegisterBuiltins installs every built-in encoder, decoder, and metric into
// the registry. Plugins loaded afterwards can replace any of them by
// re-registering the same name with override.
func RegisterBuiltins(reg *registry.Registry, runner *toolrunner.Runner, cfg *config.Config) error {
	tools := NewTools(cfg)

	// The configured model identifier only applies to the encoder it was
	// configured for; everything else keeps its canonical model.
	esm2Model := ""
	if cfg.Encoder.Name == "esm2" {
		esm2Model = cfg.Encoder.Model
	}

	type entry struct {
		kind registry.Kind
		name string
		impl any
	}
	entries := []entry{
		{registry.KindEncoder, "esm2", NewESM2(runner, tools, esm2Model)},
		{registry.KindEncoder, "saprot", NewSaProt(runner, tools)},
		{registry.KindEncoder, "cheap", NewCHEAP(runner, tools)},
		{registry.KindDecoder, "lm_head", NewLMHead(runner, tools)},
		{registry.KindDecoder, "transformer", NewTransformer(runner, tools)},
		{registry.KindDecoder, "cheap", NewCHEAPDecoder(runner, tools)},
		{registry.KindMetric, "fid", NewFID(runner, tools)},
		{registry.KindMetric, "mmd", NewMMD(runner, tools)},
		{registry.KindMetric, "esm_pppl", NewESMPseudoPerplexity(runner, tools)},
		{registry.KindMetric, "plddt", NewPLDDT(runner, tools)},
	}
	for _, e := range entries {
		if err := reg.Register(e.kind, e.name, e.impl, false); err != nil {
			return err
		}
	}
	return nil
}
