package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	source     string
	api        *fakeTranscriptionAPI
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	for _, key := range []string{"OPENAI_API_KEY", "SCRIBE_LLM_API_KEY", "OPENROUTER_API_KEY", "HF_TOKEN", "SCRIBE_NTFY_TOPIC"} {
		t.Setenv(key, "")
	}
	api := newFakeTranscriptionAPI(t)

	cfg := testsupport.NewConfig(t, testsupport.WithChunking(10, 1, 3))
	cfg.Transcription.Engine = config.EngineOpenAI
	cfg.Transcription.BaseURL = api.server.URL
	cfg.Transcription.APIKey = "test-key"
	cfg.Transcription.Model = "whisper-1"
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "scribe.toml")
	writeTestConfig(t, configPath, cfg)

	source := filepath.Join(base, "lecture.wav")
	testsupport.WriteSpeechWAV(t, source, 1000,
		testsupport.Span{Seconds: 6, Speech: true},
		testsupport.Span{Seconds: 1.5},
		testsupport.Span{Seconds: 6, Speech: true},
		testsupport.Span{Seconds: 1.5},
		testsupport.Span{Seconds: 6, Speech: true},
	)

	return &cliTestEnv{cfg: cfg, configPath: configPath, source: source, api: api}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// fakeTranscriptionAPI answers the OpenAI-compatible endpoints with one
// segment in the middle of each uploaded chunk, worded after the chunk index.
type fakeTranscriptionAPI struct {
	server *httptest.Server
	calls  atomic.Int32

	mu     sync.Mutex
	status int
}

func newFakeTranscriptionAPI(t *testing.T) *fakeTranscriptionAPI {
	t.Helper()
	api := &fakeTranscriptionAPI{}
	dir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"whisper-1"}]}`))
	})
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)
		if status := api.failStatus(); status != 0 {
			http.Error(w, `{"error":{"message":"model overloaded"}}`, status)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(header.Filename, "chunk_"), ".wav"))
		if err != nil {
			http.Error(w, "bad file name", http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(file); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		path := filepath.Join(dir, fmt.Sprintf("upload_%d_%d.wav", index, api.calls.Load()))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		wav, err := audio.OpenWAV(path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d := wav.Duration()
		_ = wav.Close()

		resp := map[string]any{
			"text": "",
			"segments": []map[string]any{{
				"start": d * 0.35,
				"end":   d * 0.6,
				"text":  fmt.Sprintf("alpha%d bravo%d charlie%d", index, index, index),
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeTranscriptionAPI) failWith(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

func (a *fakeTranscriptionAPI) failStatus() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}
