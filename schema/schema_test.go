package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ggoodman/mcp-toolhost-go/mcp"
)

const addDoc = `Adds two numbers together.

# Arguments
* ` + "`a`" + ` - First number to add
* ` + "`b`" + ` - Second number to add
- precision is controlled by the caller
`

func TestDeriveRequiredMatchesNonOptional(t *testing.T) {
	params := []Param{
		{Name: "self", Kind: KindObject},
		{Name: "a", Kind: KindInteger64},
		{Name: "b", Kind: KindInteger64},
		{Name: "note", Kind: KindString, Optional: true},
	}
	got := Derive(params, addDoc)

	if got.Type != "object" {
		t.Fatalf("expected object schema, got %q", got.Type)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(got.Required, want) {
		t.Fatalf("required = %v, want %v", got.Required, want)
	}
	if _, ok := got.Properties["self"]; ok {
		t.Fatalf("self must not be exposed")
	}
	if len(got.Properties) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(got.Properties))
	}
	if d := got.Properties["a"].Description; d != "First number to add" {
		t.Fatalf("a description = %q", d)
	}
	note := got.Properties["note"]
	if !note.Type.Nullable() || note.Type.Primary() != "string" {
		t.Fatalf("optional type should be [string null], got %v", note.Type)
	}
}

func TestDeriveWireShape(t *testing.T) {
	got := Derive([]Param{
		{Name: "a", Kind: KindInteger64, Description: "First number"},
		{Name: "limit", Kind: KindInteger32, Optional: true},
	}, "")
	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"object","properties":{"a":{"type":"integer","format":"int64","description":"First number"},"limit":{"type":["integer","null"],"format":"int32"}},"required":["a"]}`
	if string(b) != want {
		t.Fatalf("schema mismatch\n got: %s\nwant: %s", b, want)
	}
}

func TestDeriveNoParams(t *testing.T) {
	b, err := json.Marshal(Derive(nil, "doc"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"type":"object","properties":{},"required":[]}`; string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestPropertyKinds(t *testing.T) {
	tests := []struct {
		param  Param
		typ    string
		format string
	}{
		{Param{Kind: KindString}, "string", ""},
		{Param{Kind: KindInteger32}, "integer", "int32"},
		{Param{Kind: KindInteger64}, "integer", "int64"},
		{Param{Kind: KindNumber}, "number", "double"},
		{Param{Kind: KindBoolean}, "boolean", ""},
		{Param{Kind: KindObject}, "object", ""},
		{Param{Kind: KindArray}, "array", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.param.Kind), func(t *testing.T) {
			p := Property(tt.param)
			if p.Type.Primary() != tt.typ || p.Format != tt.format {
				t.Fatalf("got type=%v format=%q, want %s/%q", p.Type, p.Format, tt.typ, tt.format)
			}
		})
	}

	arr := Property(Param{Kind: KindArray, Items: &Param{Kind: KindNumber}})
	if arr.Items == nil || arr.Items.Type.Primary() != "number" {
		t.Fatalf("expected number items, got %+v", arr.Items)
	}
	empty := Property(Param{Kind: KindArray})
	b, _ := json.Marshal(empty)
	if string(b) != `{"type":"array","items":{}}` {
		t.Fatalf("untyped array encoded as %s", b)
	}
}

func TestParamDoc(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"a", "* `a` - First number", "First number"},
		{"b", "  - `b`: the divisor", ": the divisor"},
		{"query", "* query - search terms", "search terms"},
		{"x", "- x - horizontal", "horizontal"},
		{"path", "Reads `path` and returns its contents", "and returns its contents"},
		{"missing", "* `a` - First number", ""},
		{"a", "", ""},
		{"a", "Adds two numbers - also known as a sum.\n\n* `a` - First number\n* `b` - Second number", "First number"},
		{"a", "- ab - second\n- a - first", "first"},
		{"id", "* identifier - ignored\n* `id` - Record id", "Record id"},
		{"a", "Uses `ab` and `a` - the base", "the base"},
	}
	for _, tt := range tests {
		if got := ParamDoc(tt.doc, tt.name); got != tt.want {
			t.Errorf("ParamDoc(%q, %q) = %q, want %q", tt.doc, tt.name, got, tt.want)
		}
	}
}

type searchArgs struct {
	Query string   `json:"query" jsonschema:"description=Search terms"`
	Limit int      `json:"limit,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Exact bool     `json:"exact"`
}

func TestFromStruct(t *testing.T) {
	params := FromStruct[searchArgs]()
	if len(params) != 4 {
		t.Fatalf("expected 4 params, got %d: %+v", len(params), params)
	}
	byName := map[string]Param{}
	for _, p := range params {
		byName[p.Name] = p
	}
	if q := byName["query"]; q.Kind != KindString || q.Optional || q.Description != "Search terms" {
		t.Fatalf("query = %+v", q)
	}
	if l := byName["limit"]; l.Kind != KindInteger64 || !l.Optional {
		t.Fatalf("limit = %+v", l)
	}
	if tg := byName["tags"]; tg.Kind != KindArray || tg.Items == nil || tg.Items.Kind != KindString {
		t.Fatalf("tags = %+v", tg)
	}

	s := Derive(params, "")
	if want := []string{"query", "exact"}; !reflect.DeepEqual(s.Required, want) {
		t.Fatalf("required = %v, want %v", s.Required, want)
	}
	if got := s.Properties["limit"].Type; !reflect.DeepEqual(got, mcp.Types("integer", "null")) {
		t.Fatalf("limit type = %v", got)
	}

	if got := FromStruct[int](); got != nil {
		t.Fatalf("non-struct should yield nil, got %+v", got)
	}
}
