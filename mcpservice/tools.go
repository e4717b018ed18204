package mcpservice

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-toolhost-go/mcp"
	"github.com/ggoodman/mcp-toolhost-go/schema"
)

// ToolResult is the normalized output of a tool invocation. A business
// failure is reported with IsError=true and still travels as a successful
// RPC response.
type ToolResult = mcp.CallToolResult

// Tool is a named, self-describing callable operation.
//
// Call returns a non-nil error only when the tool could not be invoked at all
// (missing or malformed arguments, internal failure). Such errors become
// protocol-level errors; failures the caller should see as content belong in
// a ToolResult with IsError set.
type Tool interface {
	Name() string
	Describe() mcp.Tool
	Call(ctx context.Context, args Arguments) (*ToolResult, error)
}

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, args Arguments) (*ToolResult, error)

// ToolOption configures NewTool and TypedTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	doc         string
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolDoc supplies free-form documentation from which parameter
// descriptions are extracted (see schema.ParamDoc). When no description was
// set, the first paragraph of the doc is used as the tool description.
func WithToolDoc(doc string) ToolOption {
	return func(c *toolConfig) { c.doc = doc }
}

func (c toolConfig) toolDescription() string {
	if c.description != "" {
		return c.description
	}
	return firstParagraph(c.doc)
}

// NewTool constructs a StaticTool from an ordered parameter list. The input
// schema is derived from params; the handler receives the raw name-keyed
// arguments. A tool declared without parameters refuses non-empty arguments.
func NewTool(name string, params []schema.Param, fn ToolHandler, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.toolDescription(),
		InputSchema: schema.Derive(params, cfg.doc),
	}

	exposed := 0
	for _, p := range params {
		if p.Name != schema.SelfParam {
			exposed++
		}
	}

	handler := func(ctx context.Context, args Arguments) (*ToolResult, error) {
		if exposed == 0 && len(args) > 0 {
			return nil, fmt.Errorf("%w: expected no arguments", ErrInvalidArgument)
		}
		return fn(ctx, args)
	}
	return StaticTool{Descriptor: desc, Handler: handler}
}
