// Package export renders a finished transcript to files.
//
// Supported formats are json (the full document, including which stages
// were degraded), txt (speaker-prefixed paragraphs), srt and vtt. Every file
// is written atomically so a crash never leaves a truncated transcript.
package export
