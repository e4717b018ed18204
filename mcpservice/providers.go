package mcpservice

// ToolProvider groups related tools, typically the operations of one
// component, so they can be registered together.
type ToolProvider interface {
	Tools() []Tool
}

// ToolProviderFunc adapts a function to a ToolProvider.
type ToolProviderFunc func() []Tool

func (f ToolProviderFunc) Tools() []Tool { return f() }

// StaticTools adapts a fixed list of tools to a ToolProvider.
func StaticTools(tools ...StaticTool) ToolProvider {
	out := make([]Tool, len(tools))
	for i, t := range tools {
		out[i] = t
	}
	return ToolProviderFunc(func() []Tool { return out })
}
