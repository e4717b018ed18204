package schema

import (
	"slices"

	"github.com/invopop/jsonschema"
)

// FromStruct reflects the argument struct A into an ordered parameter list.
// Property names follow the json tags, fields tagged omitempty are optional
// and `jsonschema:"description=..."` tags become descriptions. Go integers
// map to KindInteger64. A non-struct A yields no parameters.
func FromStruct[A any]() []Param {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" || s.Properties == nil {
		return nil
	}

	params := make([]Param, 0, s.Properties.Len())
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		p := fromSchema(el.Value)
		p.Name = el.Key
		p.Optional = !slices.Contains(s.Required, el.Key)
		params = append(params, p)
	}
	return params
}

func fromSchema(s *jsonschema.Schema) Param {
	if s == nil {
		return Param{Kind: KindObject}
	}
	p := Param{Description: s.Description}
	switch s.Type {
	case "string":
		p.Kind = KindString
	case "integer":
		p.Kind = KindInteger64
		if s.Format == "int32" {
			p.Kind = KindInteger32
		}
	case "number":
		p.Kind = KindNumber
	case "boolean":
		p.Kind = KindBoolean
	case "array":
		p.Kind = KindArray
		if s.Items != nil {
			item := fromSchema(s.Items)
			p.Items = &item
		}
	default:
		p.Kind = KindObject
	}
	return p
}
