package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPlanning      = errors.New("planning error")
	ErrCheckpoint    = errors.New("checkpoint error")
)

var markers = []struct {
	err  error
	kind string
	hint string
}{
	{ErrPlanning, "planning", "input produced no usable chunks; check the recording is audible PCM WAV"},
	{ErrCheckpoint, "checkpoint", "the damaged checkpoint was quarantined; rerun with --resume"},
	{ErrConfiguration, "configuration", "review scribe config (scribe config show)"},
	{ErrValidation, "validation", "inspect the stage output referenced in the log"},
	{ErrNotFound, "not_found", "verify the path or run identifier exists"},
	{ErrTimeout, "timeout", "raise transcription.timeout_seconds or use a smaller chunking.max_chunk_seconds"},
	{ErrExternalTool, "external_tool", "check the external tool is installed and reachable (scribe check)"},
	{ErrTransient, "transient", "retry the run with --resume"},
}

// ErrorDetails summarises a wrapped service error for logs and CLI output.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
	Cause   string
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Details classifies err by its marker. Unmarked errors report kind "unknown".
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "unknown", Message: err.Error(), Hint: "check logs for details"}
	for _, m := range markers {
		if errors.Is(err, m.err) {
			details.Kind = m.kind
			details.Hint = m.hint
			break
		}
	}
	if cause := errors.Unwrap(err); cause != nil {
		details.Cause = rootCause(err).Error()
	}
	return details
}

// IsRetryable reports whether a failure may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func rootCause(err error) error {
	for {
		switch wrapped := err.(type) {
		case interface{ Unwrap() []error }:
			errs := wrapped.Unwrap()
			if len(errs) == 0 {
				return err
			}
			err = errs[len(errs)-1]
		case interface{ Unwrap() error }:
			next := wrapped.Unwrap()
			if next == nil {
				return err
			}
			err = next
		default:
			return err
		}
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
