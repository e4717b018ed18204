package mcp

import (
	"encoding/json"
	"fmt"
)

// Capabilities
// ServerCapabilities advertises server features. Tools maps every registered
// tool name to true.
type ServerCapabilities struct {
	Tools map[string]bool `json:"tools"`
}

// ClientCapabilities advertises client features. The server records them for
// diagnostics only.
type ClientCapabilities struct {
	Experimental map[string]any `json:"experimental,omitempty"`
	Sampling     map[string]any `json:"sampling,omitempty"`
	Roots        *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
}

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Content types

// ContentTypeText is the only content kind produced by tools.
const ContentTypeText = "text"

// ContentBlock is a typed content part of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Tools
// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is the object schema describing a tool's arguments.
// Properties and Required are always emitted, even when empty.
type ToolInputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

// SchemaProperty is a simplified schema node describing one argument.
type SchemaProperty struct {
	Type        SchemaType                `json:"type,omitempty"`
	Format      string                    `json:"format,omitzero"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
}

// SchemaType is a JSON Schema "type" keyword. A single type marshals as a
// string; a union (e.g. ["integer","null"]) marshals as an array.
type SchemaType []string

// Types returns a SchemaType for the given type names.
func Types(names ...string) SchemaType { return SchemaType(names) }

// Nullable reports whether "null" is one of the allowed types.
func (t SchemaType) Nullable() bool {
	for _, n := range t {
		if n == "null" {
			return true
		}
	}
	return false
}

// Primary returns the first non-null type name.
func (t SchemaType) Primary() string {
	for _, n := range t {
		if n != "null" {
			return n
		}
	}
	return ""
}

func (t SchemaType) MarshalJSON() ([]byte, error) {
	switch len(t) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(t[0])
	default:
		return json.Marshal([]string(t))
	}
}

func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = SchemaType{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("schema type must be a string or an array of strings: %w", err)
	}
	*t = SchemaType(many)
	return nil
}

// LatestProtocolVersion is the protocol revision this server speaks.
const LatestProtocolVersion = "2024-11-05"
