// Package textutil provides text helpers shared across the pipeline.
//
// The primary use cases are:
//   - Sanitizing externally supplied run identifiers before they become path
//     segments
//   - Producing filesystem-safe tokens for artifact names
//   - Tokenizing transcript text for overlap alignment
package textutil
