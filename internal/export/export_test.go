package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/services"
	"scribe/internal/transcript"
)

func sampleDocument() Document {
	return Document{
		RunID:       "standup",
		Duration:    3725.5,
		GeneratedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Degraded:    []DegradedStage{{Stage: "classification", Reason: "llm unavailable"}},
		Segments: []transcript.Segment{
			{Start: 0.5, End: 2.25, Text: "Morning all.", Speaker: "SPEAKER_00"},
			{Start: 2.5, End: 4, Text: "Let's start.", Speaker: "SPEAKER_00"},
			{Start: 3661.001, End: 3663.4, Text: "Bye!", Speaker: "SPEAKER_01"},
		},
	}
}

func TestRenderSRT(t *testing.T) {
	data, err := Render(sampleDocument(), FormatSRT)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "1\n00:00:00,500 --> 00:00:02,250\nSPEAKER_00: Morning all.\n\n" +
		"2\n00:00:02,500 --> 00:00:04,000\nSPEAKER_00: Let's start.\n\n" +
		"3\n01:01:01,001 --> 01:01:03,400\nSPEAKER_01: Bye!\n\n"
	if string(data) != want {
		t.Fatalf("unexpected srt:\n%s", data)
	}
}

func TestRenderVTT(t *testing.T) {
	data, err := Render(sampleDocument(), FormatVTT)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := string(data)
	if !strings.HasPrefix(out, "WEBVTT\n\n00:00:00.500 --> 00:00:02.250\n<v SPEAKER_00>Morning all.\n") {
		t.Fatalf("unexpected vtt:\n%s", out)
	}
}

func TestRenderTextGroupsSpeakers(t *testing.T) {
	data, err := Render(sampleDocument(), FormatText)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "[00:00:00] SPEAKER_00: Morning all. Let's start.\n\n[01:01:01] SPEAKER_01: Bye!\n"
	if string(data) != want {
		t.Fatalf("unexpected text:\n%q", data)
	}
}

func TestWriteAllFormats(t *testing.T) {
	dir := t.TempDir()
	paths, err := Write(dir, sampleDocument(), Formats)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(paths) != len(Formats) {
		t.Fatalf("paths = %v", paths)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "transcript.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if doc.RunID != "standup" || len(doc.Segments) != 3 || len(doc.Degraded) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if _, err := Write(t.TempDir(), sampleDocument(), []string{"docx"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if IsSupported("docx") || !IsSupported("vtt") {
		t.Fatal("IsSupported mismatch")
	}
}
