// Package stdio implements a minimal single-connection MCP transport over
// stdin/stdout. It is intended for embedding servers as subprocesses, local
// development, and environments where spawning a child process and piping JSON
// is simpler than running an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : None; the whole stream is one implicit session
//	Framing          : One JSON-RPC object per line, UTF-8, '\n' terminated
//	Ordering         : Responses are written in request order
//
// Malformed lines are answered with a parse error and never end the loop.
// Notifications are dispatched but produce no output.
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "my-stdio-server", Version: "0.1.0"}),
//	    mcpservice.WithToolProvider(calculator.Calculator{}),
//	)
//	h := stdio.NewHandler(srv)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//
// For networked deployments prefer the ssehttp transport, which multiplexes
// many sessions over HTTP.
package stdio
