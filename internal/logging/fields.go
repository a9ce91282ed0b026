package logging

// Structured logging keys shared across packages.
const (
	FieldComponent  = "component"
	FieldRunID      = "run_id"
	FieldStage      = "stage"
	FieldChunkIndex = "chunk_index"
	// FieldRequestID tags every record of one stage attempt.
	FieldRequestID = "request_id"

	// FieldEventType classifies a log line for filtering (stage_start, merge_ambiguity, ...).
	FieldEventType = "event_type"
	FieldErrorKind = "error_kind"
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"

	FieldProgressPercent = "progress_percent"
	FieldProgressMessage = "progress_message"
)
