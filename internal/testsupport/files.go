package testsupport

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/audio"
)

// WriteFile writes size bytes of filler to path, creating parent
// directories. Content is irrelevant to callers that only need a file to exist.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, int(max(size, 1))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Span is a stretch of synthetic audio: a loud square wave when Speech is
// set, digital silence otherwise.
type Span struct {
	Seconds float64
	Speech  bool
}

// WriteSpeechWAV writes a mono 16-bit WAV made of spans at rate and returns
// its duration in seconds.
func WriteSpeechWAV(t testing.TB, path string, rate int, spans ...Span) float64 {
	t.Helper()

	var samples []int16
	for _, s := range spans {
		n := int(math.Round(s.Seconds * float64(rate)))
		for i := 0; i < n; i++ {
			var v int16
			if s.Speech {
				v = 3000
				if i%2 == 1 {
					v = -3000
				}
			}
			samples = append(samples, v)
		}
	}
	buf := audio.Buffer{SampleRate: rate, Samples: samples}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := audio.WriteWAV(path, buf); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
	return buf.Duration()
}
