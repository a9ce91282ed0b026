package whisperx

// Config selects the WhisperX model and runtime.
type Config struct {
	Model string
	// Language is an ISO 639-1 code or language name; empty lets WhisperX
	// detect it per chunk.
	Language    string
	CUDAEnabled bool
	// VADMethod is "silero" (default) or "pyannote", which needs HFToken.
	VADMethod string
	HFToken   string
}

// Defaults and fixed decoding parameters passed to WhisperX.
const (
	DefaultModel      = "large-v3"
	BatchSize         = "4"
	BeamSize          = "5"
	Temperature       = "0.0"
	SegmentResolution = "sentence"
	OutputFormat      = "json"

	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"

	CPUDevice      = "cpu"
	CPUComputeType = "float32"
	CUDADevice     = "cuda"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"

	UVXCommand    = "uvx"
	FFmpegCommand = "ffmpeg"
)
