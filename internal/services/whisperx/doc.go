// Package whisperx wraps the WhisperX command line for chunk transcription and
// the ffmpeg invocation that normalises arbitrary inputs into mono 16 kHz PCM.
//
// The service never interprets audio itself: it writes nothing but command
// arguments and reads back the JSON segment file WhisperX emits. Tests inject
// a command runner to avoid spawning processes.
package whisperx
