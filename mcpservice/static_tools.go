package mcpservice

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ggoodman/mcp-toolhost-go/mcp"
	"github.com/ggoodman/mcp-toolhost-go/schema"
)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

var _ Tool = StaticTool{}

func (t StaticTool) Name() string       { return t.Descriptor.Name }
func (t StaticTool) Describe() mcp.Tool { return t.Descriptor }

// Call invokes the handler. Nil arguments are treated as an empty object.
func (t StaticTool) Call(ctx context.Context, args Arguments) (*ToolResult, error) {
	if t.Handler == nil {
		return nil, fmt.Errorf("tool %q has no handler", t.Descriptor.Name)
	}
	if args == nil {
		args = Arguments{}
	}
	res, err := t.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return TextResult(""), nil
	}
	return res, nil
}

// TypedTool wraps a strongly typed args function into a StaticTool. The input
// schema is reflected from A and the arguments are bound into A before fn is
// invoked. Binding failures are invocation errors, not business errors.
func TypedTool[A any](name string, fn func(ctx context.Context, args A) (*ToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.toolDescription(),
		InputSchema: schema.Derive(schema.FromStruct[A](), cfg.doc),
	}
	required := desc.InputSchema.Required

	return StaticTool{
		Descriptor: desc,
		Handler: func(ctx context.Context, args Arguments) (*ToolResult, error) {
			for _, name := range required {
				if !args.Has(name) {
					return nil, fmt.Errorf("%w: %s", ErrMissingArgument, name)
				}
			}
			var a A
			if err := args.Bind(&a); err != nil {
				return nil, err
			}
			return fn(ctx, a)
		},
	}
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *ToolResult {
	return &ToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *ToolResult {
	msg := fmt.Sprintf(format, a...)
	return &ToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: msg}}, IsError: true}
}

// ValueResult renders v as text: strings verbatim, numbers in their shortest
// decimal form, and anything else through fmt.
func ValueResult(v any) *ToolResult {
	return TextResult(FormatValue(v))
}

// Fallible converts a (value, error) pair into a ToolResult: an error becomes
// a business failure carrying the error text.
func Fallible[T any](v T, err error) *ToolResult {
	if err != nil {
		return Errorf("%s", err.Error())
	}
	return ValueResult(v)
}

// FormatValue is the text rendering used by ValueResult.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func firstParagraph(doc string) string {
	doc = strings.TrimSpace(doc)
	if i := strings.Index(doc, "\n\n"); i >= 0 {
		doc = doc[:i]
	}
	return strings.Join(strings.Fields(doc), " ")
}
