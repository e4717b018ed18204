// Package ssehttp implements the session-multiplexed HTTP transport. It mounts
// as a standard net/http handler exposing two routes: one opens a long-lived
// Server-Sent Events stream, the other accepts JSON-RPC requests addressed to
// an open stream by session id.
//
// Responsibilities
//   - Session lifecycle (via sessions.Directory; opened on GET, closed on disconnect)
//   - Request reconstruction from loosely shaped POST bodies
//   - Synchronous replies plus push delivery of successful responses
//
// Construction
//
//	h := ssehttp.New(
//	    server,                          // *mcpservice.Server
//	    ssehttp.WithDirectory(dir),      // defaults to an in-memory directory
//	    ssehttp.WithLogger(logger),
//	)
//	http.ListenAndServe(":3000", h)
//
// # Wire Shape
//
// GET /sse answers with text/event-stream. The first event is
//
//	event: endpoint
//	data: /message?sessionId=<id>
//
// and every payload delivered to the session afterwards is written as an
// "event: message" frame. Comment lines are sent as keep-alives.
//
// POST /message?sessionId=<id> dispatches the body and returns the JSON-RPC
// response. Successful responses are also pushed onto the session's stream;
// error responses are only returned directly. Notifications get 202.
//
// # Error Handling
//
// Transport-level errors map to HTTP status codes with a small JSON body
// ({"error":{"code":<status>,"message":"..."}}) that is not a JSON-RPC
// envelope. Unknown session ids never reach the dispatcher.
//
// # Scaling
//
// With a shared Directory (see sessions/redishost) the POST may land on any
// node; the response is routed to the node that holds the stream.
package ssehttp
