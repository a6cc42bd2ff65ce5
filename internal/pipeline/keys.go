package pipeline

// Well-known context keys. Stages publish artifacts under these names so
// downstream stages can find them regardless of which implementation
// produced them.
const (
	// KeyDatasetDir is the prepared dataset directory.
	KeyDatasetDir = "data_setup.dataset_dir"
	// KeyWeightsDir is the directory holding fetched model weights.
	KeyWeightsDir = "model_setup.weights_dir"
	// KeyEncoderName is the registry name of the encoder the run resolved.
	KeyEncoderName = "model_setup.encoder"
	// KeyDecoderName is the registry name of the decoder the run resolved.
	KeyDecoderName = "model_setup.decoder"
	// KeyStatisticsPath is the dataset statistics file used to normalize
	// latents.
	KeyStatisticsPath = "statistics.path"
	// KeyDecoderCheckpoint is the trained decoder checkpoint.
	KeyDecoderCheckpoint = "decoder_training.checkpoint"
	// KeyDiffusionCheckpoint is the trained diffusion model checkpoint.
	KeyDiffusionCheckpoint = "diffusion_training.checkpoint"
	// KeySamplesPath is the file of generated sequences.
	KeySamplesPath = "inference.samples_path"
	// KeyMetricsReport is the metrics evaluation report file.
	KeyMetricsReport = "metrics_evaluation.report_path"
)
