// Package language maps the language names and codes users write in
// configuration onto the ISO 639-1 codes transcription engines accept.
package language
