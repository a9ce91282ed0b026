// Package vad finds speech in PCM audio.
//
// EnergyDetector classifies fixed-size frames by RMS energy and applies
// minimum speech and silence durations so brief clicks and short pauses do not
// fragment the result. RangeProbe serves arbitrary time ranges of a recording
// and reports intervals in absolute seconds; it holds no state between calls.
package vad
