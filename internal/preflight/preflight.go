package preflight

import (
	"context"
	"fmt"
	"strings"

	"scribe/internal/config"
	"scribe/internal/deps"
	"scribe/internal/services/whisperx"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Blocking is set when the check backs a critical stage.
	Blocking bool
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding stage is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		blocking(CheckDirectoryAccess("State directory", cfg.Paths.StateDir)),
		blocking(CheckFreeSpace("State free space", cfg.Paths.StateDir, MinFreeBytes)),
	}
	if cfg.StageEnabled(config.StageExport) {
		r := CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir)
		r.Blocking = !cfg.StageOptional(config.StageExport)
		results = append(results, r)
	}

	for _, status := range CheckSystemDeps(cfg) {
		r := Result{Name: status.Name, Passed: status.Available, Blocking: !status.Optional}
		switch {
		case status.Available:
			r.Detail = status.Command
		case status.Detail != "":
			r.Detail = fmt.Sprintf("%s (%s)", status.Detail, status.Description)
		default:
			r.Detail = status.Description
		}
		results = append(results, r)
	}

	if strings.EqualFold(cfg.Transcription.Engine, config.EngineOpenAI) {
		results = append(results, blocking(CheckTranscriptionEndpoint(ctx, cfg.Transcription.BaseURL, cfg.Transcription.APIKey)))
	}

	if cfg.StageEnabled(config.StageClassification) {
		critical := !cfg.StageOptional(config.StageClassification)
		llmCfg := cfg.GetLLM()
		var r Result
		if llmCfg.APIKey == "" {
			r = Result{Name: "Classification LLM", Passed: !critical, Detail: "API key missing; classification will be skipped"}
		} else {
			r = CheckLLM(ctx, "Classification LLM", llmCfg)
		}
		r.Blocking = critical
		results = append(results, r)
	}

	return results
}

// Blocked returns the failed checks that must stop a run.
func Blocked(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && r.Blocking {
			out = append(out, r)
		}
	}
	return out
}

// CheckSystemDeps evaluates the external programs the configured stages
// invoke.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required to convert sources that are not 16-bit PCM WAV",
			Optional:    true,
		},
	}
	if strings.EqualFold(cfg.Transcription.Engine, config.EngineWhisperX) {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     whisperx.UVXCommand,
			Description: "Required for WhisperX transcription",
		})
	}
	if cfg.StageEnabled(config.StageDiarization) {
		requirements = append(requirements, deps.Requirement{
			Name:        "Diarization command",
			Command:     cfg.Diarization.Command,
			Description: "Speaker labels are UNKNOWN without it",
			Optional:    cfg.StageOptional(config.StageDiarization),
		})
	}
	return deps.CheckBinaries(requirements)
}

func blocking(r Result) Result {
	r.Blocking = true
	return r
}
