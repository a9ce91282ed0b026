package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/testsupport"
)

type captured struct {
	title, tags, priority, body string
}

func newTopic(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "scribe/") {
			t.Errorf("unexpected user agent %q", got)
		}
		mu.Lock()
		reqs = append(reqs, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("topic says no"))
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifyRunFinished(context.Background(), notifications.RunSummary{RunID: "r", State: "ABORTED"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

func TestNotifyRunFinishedFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		summary        notifications.RunSummary
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "succeeded",
			summary: notifications.RunSummary{
				RunID:    "r1",
				Source:   "/audio/lecture.wav",
				State:    "SUCCEEDED",
				Duration: 95 * time.Second,
				Degraded: []string{"diarization"},
			},
			expectTitle:   "Scribe - Transcript Ready",
			expectMessage: "Transcript ready: lecture.wav (1m35s)\nPlaceholder output from: diarization",
			expectTags:    "scribe,run,completed",
		},
		{
			name:           "aborted",
			summary:        notifications.RunSummary{RunID: "r2", Source: "talk.mp3", State: "ABORTED", Error: "stage transcription failed"},
			expectTitle:    "Scribe - Run Failed",
			expectMessage:  "Run r2 for talk.mp3 failed: stage transcription failed",
			expectTags:     "scribe,error,alert",
			expectPriority: "high",
		},
		{
			name:          "cancelled",
			summary:       notifications.RunSummary{RunID: "r3", State: "CANCELLED"},
			expectTitle:   "Scribe - Run Interrupted",
			expectMessage: "Run r3 for r3 was interrupted\nResume with: scribe run --resume --run-id r3",
			expectTags:    "scribe,run,interrupted",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, requests := newTopic(t, http.StatusOK)
			cfg := testsupport.NewConfig(t)
			cfg.Notifications.NtfyTopic = server.URL + "/scribe"
			svc := notifications.NewService(cfg)
			if err := svc.NotifyRunFinished(context.Background(), tc.summary); err != nil {
				t.Fatalf("NotifyRunFinished: %v", err)
			}
			got := requests()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			req := got[0]
			if req.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", req.title, tc.expectTitle)
			}
			if req.body != tc.expectMessage {
				t.Fatalf("message = %q, want %q", req.body, tc.expectMessage)
			}
			if req.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", req.tags, tc.expectTags)
			}
			if req.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", req.priority, tc.expectPriority)
			}
		})
	}
}

func TestSuccessCanBeMuted(t *testing.T) {
	server, requests := newTopic(t, http.StatusOK)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL + "/scribe"
	cfg.Notifications.NotifySuccess = false
	svc := notifications.NewService(cfg)

	if err := svc.NotifyRunFinished(context.Background(), notifications.RunSummary{RunID: "ok", State: "SUCCEEDED"}); err != nil {
		t.Fatalf("NotifyRunFinished: %v", err)
	}
	if err := svc.NotifyRunFinished(context.Background(), notifications.RunSummary{RunID: "bad", State: "ABORTED"}); err != nil {
		t.Fatalf("NotifyRunFinished: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].title != "Scribe - Run Failed" {
		t.Fatalf("expected only the failure to be sent, got %+v", got)
	}
}

func TestSendReportsHTTPErrors(t *testing.T) {
	server, _ := newTopic(t, http.StatusForbidden)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL + "/scribe"
	err := notifications.NewService(cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403: topic says no") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

type recordingService struct {
	summaries []notifications.RunSummary
	err       error
}

func (r *recordingService) NotifyRunFinished(_ context.Context, s notifications.RunSummary) error {
	r.summaries = append(r.summaries, s)
	return r.err
}

func (r *recordingService) TestNotification(context.Context) error { return nil }

func TestObserverBuildsSummaryFromRun(t *testing.T) {
	svc := &recordingService{err: errors.New("offline")}
	obs := notifications.NewObserver(svc, "/audio/lecture.wav", nil)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	run := pipeline.Run{
		RunID:     "r",
		State:     pipeline.StateSucceeded,
		StartedAt: start,
		Stages: []pipeline.StageState{
			{Name: "merging", Status: pipeline.StatusComplete},
			{Name: "classification", Status: pipeline.StatusSkipped, Degraded: true},
		},
	}
	obs.RunStarted(run)
	obs.StageChanged(run, run.Stages[0])
	if len(svc.summaries) != 0 {
		t.Fatalf("only RunFinished should notify, got %d", len(svc.summaries))
	}
	run.FinishedAt = start.Add(2 * time.Minute)
	obs.RunFinished(run)

	if len(svc.summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(svc.summaries))
	}
	got := svc.summaries[0]
	if got.Source != "/audio/lecture.wav" || got.State != "SUCCEEDED" || got.Duration != 2*time.Minute {
		t.Fatalf("unexpected summary %+v", got)
	}
	if len(got.Degraded) != 1 || got.Degraded[0] != "classification" {
		t.Fatalf("degraded = %v", got.Degraded)
	}
}
