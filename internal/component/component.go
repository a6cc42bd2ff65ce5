package component

import "context"

// Embeddings is a batch of latent vectors produced by an Encoder. Every
// vector has length Dim.
type Embeddings struct {
	Dim     int
	Vectors [][]float64
}

// Len returns the number of vectors in the batch.
func (e *Embeddings) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Vectors)
}

// Encoder maps protein sequences into a continuous latent space.
type Encoder interface {
	// Name returns the registry name of the encoder.
	Name() string
	// OutputDim returns the dimensionality of produced embeddings.
	OutputDim() int
	// Encode embeds a batch of sequences.
	Encode(ctx context.Context, sequences []string) (*Embeddings, error)
}

// Decoder maps latent embeddings back into protein sequences.
type Decoder interface {
	// Name returns the registry name of the decoder.
	Name() string
	// InputDim returns the embedding dimensionality the decoder expects.
	// Zero means the decoder adapts to any dimensionality.
	InputDim() int
	// Intrinsic reports whether the decoder is built into an encoder and
	// needs no separate training.
	Intrinsic() bool
	// Decode reconstructs sequences from a batch of embeddings.
	Decode(ctx context.Context, embeddings *Embeddings) ([]string, error)
}

// Metric scores generated sequences, optionally against a reference set.
type Metric interface {
	// Name returns the registry name of the metric.
	Name() string
	// RequiresReferences reports whether the metric compares the generated
	// distribution against reference sequences.
	RequiresReferences() bool
	// Compute evaluates the metric. References may be nil when
	// RequiresReferences reports false. Params carries metric-specific
	// settings from the pipeline definition.
	Compute(ctx context.Context, predictions, references []string, params map[string]any) (float64, error)
}
