// Package notifications announces finished transcription runs.
//
// The default implementation publishes to an ntfy topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Observer
// adapts a Service to pipeline.Observer so the executor can drive it without
// knowing about HTTP.
package notifications
