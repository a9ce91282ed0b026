// Package llm provides an OpenRouter-compatible chat client used for segment
// classification.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON response.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: decode model output that may be wrapped in code fences.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 4 attempts by
// default). Context cancellation aborts retries immediately.
package llm
