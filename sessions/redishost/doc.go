// Package redishost implements sessions.Directory on Redis so that a POST
// landing on any node can reach a push stream held open by another.
//
// Design Notes
//   - Liveness: one key per session with a TTL the owning node keeps refreshing
//   - Delivery: a Lua script checks liveness and pending length, then XADDs
//   - Forwarding: the owner XREADs its session stream, hands each entry to the
//     local channel and XDELs it, so XLEN counts undelivered payloads
//   - Teardown: Close deletes both keys; an owner whose liveness key vanished
//     stops forwarding and closes the channel
//
// Example:
//
//	dir, err := redishost.New(redishost.Config{RedisAddr: "localhost:6379"})
//	if err != nil { ... }
//	defer dir.Shutdown()
//
// Use memoryhost for a single process.
package redishost
