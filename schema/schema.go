// Package schema derives the JSON input schema advertised for a tool from an
// ordered list of parameter descriptions.
//
// Each parameter contributes one property. Optional parameters are left out of
// "required" and their type is widened to accept null. Descriptions come from
// the parameter itself or, failing that, from the tool's free-form
// documentation (see ParamDoc).
package schema

import (
	"github.com/ggoodman/mcp-toolhost-go/mcp"
)

// Kind is the JSON type family of a parameter.
type Kind string

const (
	KindString    Kind = "string"
	KindInteger32 Kind = "integer32"
	KindInteger64 Kind = "integer64"
	KindNumber    Kind = "number"
	KindBoolean   Kind = "boolean"
	KindObject    Kind = "object"
	KindArray     Kind = "array"
)

// SelfParam is the receiver parameter name. Parameters with this name are
// never exposed.
const SelfParam = "self"

// Param describes one named tool argument.
type Param struct {
	Name        string
	Kind        Kind
	Optional    bool
	Description string
	// Items is the element description for KindArray. Nil means any element.
	Items *Param
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInteger32, KindInteger64, KindNumber, KindBoolean, KindObject, KindArray:
		return true
	}
	return false
}

// Derive builds the object schema for params. The result always carries a
// non-nil properties map and required list so that a tool without parameters
// serializes as {"type":"object","properties":{},"required":[]}.
func Derive(params []Param, doc string) mcp.ToolInputSchema {
	out := mcp.ToolInputSchema{
		Type:       "object",
		Properties: make(map[string]mcp.SchemaProperty, len(params)),
		Required:   []string{},
	}
	for _, p := range params {
		if p.Name == SelfParam {
			continue
		}
		prop := Property(p)
		if prop.Description == "" {
			prop.Description = ParamDoc(doc, p.Name)
		}
		out.Properties[p.Name] = prop
		if !p.Optional {
			out.Required = append(out.Required, p.Name)
		}
	}
	return out
}

// Property returns the schema fragment for a single parameter.
func Property(p Param) mcp.SchemaProperty {
	var prop mcp.SchemaProperty
	switch p.Kind {
	case KindInteger32:
		prop = mcp.SchemaProperty{Type: mcp.Types("integer"), Format: "int32"}
	case KindInteger64:
		prop = mcp.SchemaProperty{Type: mcp.Types("integer"), Format: "int64"}
	case KindNumber:
		prop = mcp.SchemaProperty{Type: mcp.Types("number"), Format: "double"}
	case KindBoolean:
		prop = mcp.SchemaProperty{Type: mcp.Types("boolean")}
	case KindObject:
		prop = mcp.SchemaProperty{Type: mcp.Types("object")}
	case KindArray:
		items := mcp.SchemaProperty{}
		if p.Items != nil {
			items = Property(*p.Items)
		}
		prop = mcp.SchemaProperty{Type: mcp.Types("array"), Items: &items}
	default:
		prop = mcp.SchemaProperty{Type: mcp.Types("string")}
	}
	if p.Optional {
		prop.Type = append(prop.Type, "null")
	}
	prop.Description = p.Description
	return prop
}
