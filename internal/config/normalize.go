package config

import (
	"fmt"
	"os"
	"strings"

	"scribe/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeDiarization()
	c.normalizeClassification()
	c.normalizeLLM()
	c.normalizeExport()
	c.normalizeStages()
	c.normalizeLogging()
	c.normalizeNotifications()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = defaultMetricsListen
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.Engine = strings.ToLower(strings.TrimSpace(t.Engine))
	if t.Engine == "" {
		t.Engine = EngineWhisperX
	}
	t.Model = strings.TrimSpace(t.Model)
	t.Language = strings.TrimSpace(t.Language)
	if code := language.ToISO2(t.Language); code != "" {
		t.Language = code
	}
	t.VADMethod = strings.ToLower(strings.TrimSpace(t.VADMethod))
	if t.VADMethod == "" {
		t.VADMethod = defaultWhisperXVADMethod
	}
	t.BaseURL = strings.TrimRight(strings.TrimSpace(t.BaseURL), "/")
	if t.Engine == EngineOpenAI {
		if t.BaseURL == "" {
			t.BaseURL = defaultOpenAIBaseURL
		}
		if t.Model == "" || t.Model == defaultWhisperXModel {
			t.Model = defaultOpenAIModel
		}
		if t.APIKey == "" {
			if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
				t.APIKey = strings.TrimSpace(value)
			}
		}
	}
	if t.Model == "" {
		t.Model = defaultWhisperXModel
	}
	if t.HFToken == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			t.HFToken = strings.TrimSpace(value)
		}
	}
	if t.Concurrency <= 0 {
		t.Concurrency = defaultTranscriptionWorkers
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = defaultTranscriptionTimeout
	}
}

func (c *Config) normalizeDiarization() {
	d := &c.Diarization
	d.Command = strings.TrimSpace(d.Command)
	if d.HFToken == "" {
		d.HFToken = c.Transcription.HFToken
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = defaultDiarizationTimeout
	}
}

func (c *Config) normalizeClassification() {
	categories := make([]string, 0, len(c.Classification.Categories))
	seen := make(map[string]struct{})
	for _, category := range c.Classification.Categories {
		category = strings.ToLower(strings.TrimSpace(category))
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	if len(categories) == 0 {
		categories = append(categories, defaultCategories...)
	}
	c.Classification.Categories = categories
	if c.Classification.BatchSize <= 0 {
		c.Classification.BatchSize = defaultClassificationBatch
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		for _, key := range []string{"SCRIBE_LLM_API_KEY", "OPENROUTER_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeExport() {
	formats := make([]string, 0, len(c.Export.Formats))
	seen := make(map[string]struct{})
	for _, format := range c.Export.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			continue
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}
	c.Export.Formats = formats
}

func (c *Config) normalizeStages() {
	c.Stages.Disabled = lowerAll(c.Stages.Disabled)
	c.Stages.Optional = lowerAll(c.Stages.Optional)
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "pretty", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	n := &c.Notifications
	n.NtfyTopic = strings.TrimSpace(n.NtfyTopic)
	if n.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SCRIBE_NTFY_TOPIC"); ok {
			n.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if n.RequestTimeoutSeconds <= 0 {
		n.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}
