package whisperx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"scribe/internal/language"
)

// Runner executes an external command. Tests replace it to avoid spawning processes.
type Runner func(ctx context.Context, name string, args ...string) error

// Service runs ffmpeg normalization and WhisperX transcription.
type Service struct {
	cfg    Config
	ffmpeg string
	runner Runner
}

// NewService returns a service that invokes ffmpegBinary (ffmpeg from PATH
// when empty) and WhisperX through uvx.
func NewService(cfg Config, ffmpegBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VADMethod == "" {
		cfg.VADMethod = VADMethodSilero
	}
	cfg.Language = language.ToISO2(cfg.Language)
	return &Service{cfg: cfg, ffmpeg: ffmpegBinary, runner: execRunner}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner Runner) {
	if runner != nil {
		s.runner = runner
	}
}

// Model returns the WhisperX model that will be requested.
func (s *Service) Model() string { return s.cfg.Model }

// Normalize converts source into the mono 16 kHz 16-bit PCM WAV the pipeline
// reads. Only the first audio stream is kept.
func (s *Service) Normalize(ctx context.Context, source, dest string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", source,
		"-map", "0:a:0", "-vn", "-sn", "-dn",
		"-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
		dest,
	}
	if err := s.runner(ctx, s.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg normalize: %w", err)
	}
	return nil
}

// TranscribeFile runs WhisperX over a WAV file and returns its segments with
// times relative to the start of the file. outputDir receives the JSON output.
func (s *Service) TranscribeFile(ctx context.Context, source, outputDir string) ([]Segment, error) {
	if source == "" {
		return nil, fmt.Errorf("transcribe: source path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if err := s.runner(ctx, UVXCommand, s.buildArgs(source, outputDir)...); err != nil {
		return nil, fmt.Errorf("whisperx: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	segments, err := LoadSegments(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisperx: %w", err)
	}
	return segments, nil
}

func (s *Service) buildArgs(source, outputDir string) []string {
	device := []string{"--device", CPUDevice, "--compute_type", CPUComputeType}
	index := []string{"--index-url", PypiIndexURL}
	if s.cfg.CUDAEnabled {
		device = []string{"--device", CUDADevice}
		index = []string{"--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL}
	}

	args := append(index,
		"whisperx", source,
		"--model", s.cfg.Model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
		"--vad_method", s.cfg.VADMethod,
	)
	if s.cfg.VADMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}
	return append(args, device...)
}

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// Torch 2.6 defaults torch.load to weights_only, which pyannote checkpoints fail.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(string(output)))
	}
	return nil
}
