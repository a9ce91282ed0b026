package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"scribe/internal/audio"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

const (
	openAIPath           = "/audio/transcriptions"
	verboseJSON          = "verbose_json"
	defaultOpenAITimeout = 10 * time.Minute
)

// HTTPConfig configures an OpenAI-compatible transcription endpoint.
type HTTPConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
}

// HTTP transcribes chunks through an OpenAI-compatible
// /audio/transcriptions endpoint using the verbose_json response format.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP constructs an HTTP transcriber. A nil client gets a default one;
// per-call deadlines come from the context.
func NewHTTP(cfg HTTPConfig, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: defaultOpenAITimeout}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &HTTP{cfg: cfg, client: client}
}

type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the chunk audio and parses the segment list.
func (h *HTTP) Transcribe(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error) {
	wav, err := h.chunkAudio(chunk)
	if err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrValidation, "transcription", "encode chunk",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	body, contentType, err := h.buildForm(chunk, wav)
	if err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrValidation, "transcription", "build request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+openAIPath, body)
	if err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrConfiguration, "transcription", "build request", "", err)
	}
	req.Header.Set("Content-Type", contentType)
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return transcript.ChunkTranscript{}, err
		}
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrTransient, "transcription", "http",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrTransient, "transcription", "read response", "", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return transcript.ChunkTranscript{}, statusError(resp.StatusCode, payload)
	}

	var parsed verboseResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrExternalTool, "transcription", "decode response", "", err)
	}
	if parsed.Error != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrExternalTool, "transcription", "api error",
			strings.TrimSpace(parsed.Error.Message), nil)
	}

	segments := make([]transcript.Segment, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		segments = append(segments, transcript.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	if len(segments) == 0 && strings.TrimSpace(parsed.Text) != "" {
		segments = append(segments, transcript.Segment{Start: 0, End: chunk.Duration(), Text: parsed.Text})
	}
	return localize(chunk, segments), nil
}

func (h *HTTP) chunkAudio(chunk audio.Chunk) ([]byte, error) {
	if chunk.Samples != nil {
		return audio.EncodeWAV(audio.Buffer{SampleRate: chunk.SampleRate, Samples: chunk.Samples})
	}
	if chunk.Path == "" {
		return nil, fmt.Errorf("chunk %d has neither samples nor a file", chunk.Index)
	}
	return os.ReadFile(chunk.Path)
}

func (h *HTTP) buildForm(chunk audio.Chunk, wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", fmt.Sprintf("chunk_%04d.wav", chunk.Index))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	fields := map[string]string{
		"model":           h.cfg.Model,
		"response_format": verboseJSON,
	}
	if lang := strings.TrimSpace(h.cfg.Language); lang != "" {
		fields["language"] = strings.ToLower(lang)
	}
	for _, key := range []string{"model", "response_format", "language"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func statusError(code int, body []byte) error {
	msg := fmt.Sprintf("http %d: %s", code, truncate(strings.TrimSpace(string(body)), 200))
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "transcription", "http", msg, nil)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "transcription", "http", msg, nil)
	default:
		return services.Wrap(services.ErrExternalTool, "transcription", "http", msg, nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
