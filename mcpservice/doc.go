// Package mcpservice holds the transport-independent side of a tool host: the
// Tool abstraction, the Registry that owns registered tools and the Server
// that bundles the registry with the identity reported during initialize.
//
// Tools can be built three ways:
//   - NewTool from an explicit, ordered parameter list (see package schema);
//   - TypedTool from a Go argument struct whose schema is reflected;
//   - by implementing Tool directly.
//
// Quick start:
//
//	type AddArgs struct {
//	    A int64 `json:"a" jsonschema:"description=First number"`
//	    B int64 `json:"b" jsonschema:"description=Second number"`
//	}
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "math", Version: "1.0.0"}),
//	    mcpservice.WithTools(
//	        mcpservice.TypedTool("math_add", func(ctx context.Context, a AddArgs) (*mcpservice.ToolResult, error) {
//	            return mcpservice.ValueResult(a.A + a.B), nil
//	        }, mcpservice.WithToolDescription("Adds two numbers")),
//	    ),
//	)
//
// Errors returned from a tool handler mean the tool could not be invoked and
// surface as protocol errors. Failures meant for the caller are returned as a
// ToolResult built with Errorf or Fallible.
package mcpservice
