// Package classification labels transcript segments with content categories
// using an LLM.
package classification
