package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"scribe/internal/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateVAD(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateChunking() error {
	ch := c.Chunking
	if ch.MaxChunkSeconds <= 0 {
		return errors.New("chunking.max_chunk_seconds must be positive")
	}
	if ch.OverlapSeconds < 0 || ch.OverlapSeconds >= ch.MaxChunkSeconds {
		return errors.New("chunking.overlap_seconds must be between 0 and max_chunk_seconds")
	}
	if ch.SearchWindowSeconds < 0 || 2*ch.SearchWindowSeconds >= ch.MaxChunkSeconds {
		return errors.New("chunking.search_window_seconds must be non-negative and less than half of max_chunk_seconds")
	}
	if ch.WidthSaturationSeconds <= 0 {
		return errors.New("chunking.width_saturation_seconds must be positive")
	}
	return nil
}

func (c *Config) validateVAD() error {
	if c.VAD.FrameMs <= 0 {
		return errors.New("vad.frame_ms must be positive")
	}
	if c.VAD.EnergyThreshold <= 0 {
		return errors.New("vad.energy_threshold must be positive")
	}
	if c.VAD.MinSpeechMs < 0 || c.VAD.MinSilenceMs < 0 {
		return errors.New("vad.min_speech_ms and vad.min_silence_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if lang := c.Transcription.Language; lang != "" && language.ToISO2(lang) != lang {
		return fmt.Errorf("transcription.language: unrecognized value %q (use an ISO 639-1 code such as \"en\", or leave empty to auto-detect)", lang)
	}
	switch c.Transcription.Engine {
	case EngineWhisperX:
		switch c.Transcription.VADMethod {
		case "silero", "pyannote":
		default:
			return fmt.Errorf("transcription.vad_method: unsupported value %q (want silero or pyannote)", c.Transcription.VADMethod)
		}
	case EngineOpenAI:
		if c.Transcription.BaseURL == "" {
			return errors.New("transcription.base_url is required for the openai engine")
		}
	default:
		return fmt.Errorf("transcription.engine: unsupported value %q (want whisperx or openai)", c.Transcription.Engine)
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.MinMatchTokens < 1 {
		return errors.New("merge.min_match_tokens must be at least 1")
	}
	if c.Merge.MinMatchRatio <= 0 || c.Merge.MinMatchRatio > 1 {
		return errors.New("merge.min_match_ratio must be in (0, 1]")
	}
	if c.Merge.SpliceTolerance < 0 {
		return errors.New("merge.splice_tolerance must be non-negative")
	}
	return nil
}

func (c *Config) validateExport() error {
	for _, format := range c.Export.Formats {
		switch format {
		case "json", "txt", "srt", "vtt":
		default:
			return fmt.Errorf("export.formats: unsupported format %q", format)
		}
	}
	return nil
}

func (c *Config) validateStages() error {
	for _, list := range [][]string{c.Stages.Disabled, c.Stages.Optional} {
		for _, name := range list {
			if !slices.Contains(StageNames, name) {
				return fmt.Errorf("stages: unknown stage %q", name)
			}
			if slices.Contains(CoreStages, name) {
				return fmt.Errorf("stages: %s is a core stage and cannot be disabled or made optional", name)
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	u, err := url.Parse(topic)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic: %q is not an http(s) topic URL", topic)
	}
	if strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("notifications.ntfy_topic: %q has no topic path", topic)
	}
	return nil
}
