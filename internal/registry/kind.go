package registry

// Kind partitions the registry namespace. Names are unique within a kind but
// may repeat across kinds.
type Kind string

const (
	// KindEncoder holds component.Encoder implementations.
	KindEncoder Kind = "encoder"
	// KindDecoder holds component.Decoder implementations.
	KindDecoder Kind = "decoder"
	// KindMetric holds component.Metric implementations.
	KindMetric Kind = "metric"
	// KindStage holds pipeline.Stage implementations.
	KindStage Kind = "stage"
)

// Kinds returns every registry kind in display order.
func Kinds() []Kind {
	return []Kind{KindEncoder, KindDecoder, KindMetric, KindStage}
}

func (k Kind) String() string {
	return string(k)
}

func (k Kind) valid() bool {
	switch k {
	case KindEncoder, KindDecoder, KindMetric, KindStage:
		return true
	}
	return false
}
