// Package fileutil holds small filesystem helpers shared by the checkpoint
// store, the chunk writer, and exporters: durable atomic writes, stale temp
// cleanup, and content hashing.
package fileutil
