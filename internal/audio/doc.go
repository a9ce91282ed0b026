// Package audio reads and writes the 16-bit PCM WAV audio the pipeline
// operates on.
//
// WAVFile serves arbitrary time ranges through ReadAt so multi-hour recordings
// never need to be decoded into memory at once. Multi-channel input is
// downmixed to mono on read. Chunk carries one planned slice of the timeline
// and drops its samples once the transcription boundary is done with them.
package audio
