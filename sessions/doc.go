// Package sessions defines the session directory used by the SSE transport. A
// session is created when a client opens a push stream and lives until that
// stream ends. Each session owns a bounded, ordered channel of outbound
// payloads; messages submitted for a session are routed to that channel only.
//
// Layers & Roles
//
//	Transport  -> opens a session per push stream, submits payloads by id
//	Directory  -> id allocation, lookup, bounded delivery, teardown
//	Session    -> the owner's view: id plus the receive side of its channel
//
// Implementations
//
//	memoryhost : process-local map of Go channels
//	redishost  : Redis liveness keys + per-session streams, so that any node
//	             can deliver to a session owned by another node
//
// sessionhosttest holds a conformance suite both implementations run.
package sessions
