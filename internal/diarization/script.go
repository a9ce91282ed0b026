package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"scribe/internal/services"
	"scribe/internal/transcript"
)

// AudioPlaceholder in ScriptConfig.Args is replaced by the audio path. When
// no argument contains it, the path is appended.
const AudioPlaceholder = "{audio}"

// CommandRunner executes name with args and extra environment, returning
// stdout. Tests replace it to avoid spawning processes.
type CommandRunner func(ctx context.Context, name string, args, env []string) ([]byte, error)

// ScriptConfig describes the external diarization command.
type ScriptConfig struct {
	Command string
	Args    []string
	HFToken string
}

// Script runs an external diarization command. The command prints either a
// JSON array of turns or an object with a "turns" or "segments" array.
type Script struct {
	cfg    ScriptConfig
	runner CommandRunner
}

// NewScript returns a Script diarizer.
func NewScript(cfg ScriptConfig) *Script {
	return &Script{cfg: cfg, runner: execRunner}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Script) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		s.runner = runner
	}
}

// Diarize runs the command over audioPath and assigns its turns to segments.
func (s *Script) Diarize(ctx context.Context, audioPath string, segments []transcript.Segment) ([]transcript.Segment, error) {
	command := strings.TrimSpace(s.cfg.Command)
	if command == "" {
		return nil, services.Wrap(services.ErrConfiguration, "diarization", "script", "diarization.command is not set", nil)
	}
	var env []string
	if s.cfg.HFToken != "" {
		env = append(env, "HF_TOKEN="+s.cfg.HFToken)
	}
	out, err := s.runner(ctx, command, s.args(audioPath), env)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarization", "script", command, err)
	}
	turns, err := ParseTurns(out)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarization", "parse output", "", err)
	}
	if len(turns) == 0 && len(segments) > 0 {
		return nil, services.Wrap(services.ErrExternalTool, "diarization", "parse output", "no speaker turns returned", nil)
	}
	return Assign(segments, turns), nil
}

func (s *Script) args(audioPath string) []string {
	args := make([]string, 0, len(s.cfg.Args)+1)
	substituted := false
	for _, a := range s.cfg.Args {
		if strings.Contains(a, AudioPlaceholder) {
			a = strings.ReplaceAll(a, AudioPlaceholder, audioPath)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, audioPath)
	}
	return args
}

// ParseTurns decodes diarization output. Both {"speaker","start","end"} and
// the pyannote sidecar's {"speaker_id","start_time","end_time"} shapes are
// accepted.
func ParseTurns(data []byte) ([]Turn, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty output")
	}
	var rows []rawTurn
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("decode turns: %w", err)
		}
	} else {
		var wrapped struct {
			Turns    []rawTurn `json:"turns"`
			Segments []rawTurn `json:"segments"`
			Error    string    `json:"error"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode turns: %w", err)
		}
		if wrapped.Error != "" {
			return nil, fmt.Errorf("diarizer reported: %s", wrapped.Error)
		}
		rows = wrapped.Turns
		if len(rows) == 0 {
			rows = wrapped.Segments
		}
	}
	turns := make([]Turn, 0, len(rows))
	for _, r := range rows {
		t := r.turn()
		if t.End < t.Start {
			return nil, fmt.Errorf("turn for %s ends at %.3f before it starts at %.3f", t.Speaker, t.End, t.Start)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

type rawTurn struct {
	Speaker   string   `json:"speaker"`
	SpeakerID string   `json:"speaker_id"`
	Start     *float64 `json:"start"`
	End       *float64 `json:"end"`
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

func (r rawTurn) turn() Turn {
	t := Turn{Speaker: strings.TrimSpace(r.Speaker)}
	if t.Speaker == "" {
		t.Speaker = strings.TrimSpace(r.SpeakerID)
	}
	switch {
	case r.Start != nil:
		t.Start = *r.Start
	case r.StartTime != nil:
		t.Start = *r.StartTime
	}
	switch {
	case r.End != nil:
		t.End = *r.End
	case r.EndTime != nil:
		t.End = *r.EndTime
	}
	return t
}

func execRunner(ctx context.Context, name string, args, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
