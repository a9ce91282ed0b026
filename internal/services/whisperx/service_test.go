package whisperx

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestTranscribeFileReadsJSONOutput(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "chunk_0001.wav")
	var gotName string
	var gotArgs []string

	svc := NewService(Config{Model: "small", Language: "English"}, "")
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		payload := `{"segments":[{"text":" hello there","start":0.5,"end":1.25},{"text":"general","start":1.5,"end":2}]}`
		return os.WriteFile(filepath.Join(dir, "out", "chunk_0001.json"), []byte(payload), 0o644)
	})

	segments, err := svc.TranscribeFile(context.Background(), source, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if gotName != UVXCommand {
		t.Fatalf("expected uvx invocation, got %q", gotName)
	}
	if !slices.Contains(gotArgs, "small") || !slices.Contains(gotArgs, "en") {
		t.Fatalf("expected model and language in args, got %v", gotArgs)
	}
	if len(segments) != 2 || strings.TrimSpace(segments[0].Text) != "hello there" || segments[1].End != 2 {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

func TestTranscribeFileRequiresSource(t *testing.T) {
	svc := NewService(Config{}, "")
	if _, err := svc.TranscribeFile(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestBuildArgsCUDAAndPyannote(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true, VADMethod: VADMethodPyannote, HFToken: "hf_x"}, "")
	args := svc.buildArgs("/tmp/a.wav", "/tmp/out")
	joined := strings.Join(args, " ")
	for _, want := range []string{CUDAIndexURL, "--device cuda", "--hf_token hf_x", "--model " + DefaultModel} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if !strings.HasSuffix(joined, "--device cuda") {
		t.Fatalf("device flags should close the command: %q", joined)
	}
	if strings.Contains(joined, "--language") {
		t.Fatalf("language should be omitted when unset: %q", joined)
	}
}

func TestNormalizeUsesRunner(t *testing.T) {
	svc := NewService(Config{}, "/opt/ffmpeg")
	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	})
	if err := svc.Normalize(context.Background(), "in.mp3", "out.wav"); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if gotName != "/opt/ffmpeg" {
		t.Fatalf("expected custom ffmpeg binary, got %q", gotName)
	}
	if gotArgs[len(gotArgs)-1] != "out.wav" || !slices.Contains(gotArgs, "16000") {
		t.Fatalf("unexpected args %v", gotArgs)
	}
}
