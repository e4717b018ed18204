// Package mcp contains protocol data types and constants shared across
// transports and the tool registry. It mirrors the wire representation of the
// tool-serving subset of the Model Context Protocol while keeping the surface
// Go-friendly (exported structs with json tags, string constants for method
// names).
//
// The package is intentionally free of transport logic: the stdio and SSE
// transports import these types but implement their own framing and session
// handling. Likewise mcpservice builds descriptors and results from these
// concrete types and hands them to the engine for JSON-RPC serialization.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes.
//
// # Capabilities
//
// ServerCapabilities advertises, under "tools", a map of every registered
// tool name to true.
//
// # Schemas
//
// ToolInputSchema is always an object schema. SchemaType models the JSON
// Schema "type" keyword, which is a single name for required arguments and a
// ["<type>","null"] union for optional ones.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
//
// # Pagination
//
// Tool listings are never paginated: ListToolsResult.NextPageToken is always
// empty and omitted from the wire.
package mcp
