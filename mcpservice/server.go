package mcpservice

import (
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-toolhost-go/mcp"
)

// DefaultInstructions is returned from initialize unless overridden.
const DefaultInstructions = "Use tools/list to see available tools"

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server is the transport-independent tool host: its identity, the
// instructions returned during initialize and the registry of tools.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	registry     *Registry
	log          *slog.Logger

	pendingTools     []Tool
	pendingProviders []ToolProvider
}

// NewServer builds a Server using functional options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		info:         mcp.ImplementationInfo{Name: "toolhost", Version: "0.1.0"},
		instructions: DefaultInstructions,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(WithRegistryLogger(s.log))
	}
	s.registry.RegisterMany(s.pendingTools...)
	for _, p := range s.pendingProviders {
		s.registry.RegisterProvider(p)
	}
	s.pendingTools, s.pendingProviders = nil, nil
	return s
}

// WithServerInfo sets a static server info value.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets static human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithRegistry uses an existing registry instead of creating one.
func WithRegistry(r *Registry) ServerOption {
	return func(s *Server) { s.registry = r }
}

// WithTools registers tools at construction.
func WithTools(tools ...Tool) ServerOption {
	return func(s *Server) { s.pendingTools = append(s.pendingTools, tools...) }
}

// WithToolProvider registers every tool of p at construction.
func WithToolProvider(p ToolProvider) ServerOption {
	return func(s *Server) { s.pendingProviders = append(s.pendingProviders, p) }
}

// WithLogger sets the logger used by the server and its default registry.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func (s *Server) Info() mcp.ImplementationInfo { return s.info }
func (s *Server) Instructions() string         { return s.instructions }
func (s *Server) Registry() *Registry          { return s.registry }

// Capabilities advertises every registered tool name.
func (s *Server) Capabilities() mcp.ServerCapabilities {
	names := s.registry.Names()
	tools := make(map[string]bool, len(names))
	for _, n := range names {
		tools[n] = true
	}
	return mcp.ServerCapabilities{Tools: tools}
}
