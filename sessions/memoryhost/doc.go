// Package memoryhost provides an in-memory sessions.Directory suitable for
// tests, development, and single-process servers. All state is ephemeral and
// discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Ordering          : FIFO per session
//	Backpressure      : bounded channel, full -> sessions.ErrSessionFull
//	Concurrency       : safe (single mutex; sends never block)
//
// Example:
//
//	dir := memoryhost.New(memoryhost.WithCapacity(100))
//	// transport wires this directory into ssehttp.New(...)
//
// For multi-node deployments prefer redishost.
package memoryhost
