// Package toolfile compiles declarative YAML tool definitions into tools.
//
// A file holds a list of definitions:
//
//	tools:
//	  - name: greet
//	    doc: |
//	      Greet someone.
//
//	      * `name` - Who to greet
//	    params:
//	      - name: name
//	        type: string
//	      - name: excited
//	        type: boolean
//	        optional: true
//	    template: 'Hello, {{.name}}{{if .excited}}!{{end}}'
//	    error_template: '{{if eq .name ""}}name must not be empty{{end}}'
//
// Invoking a compiled tool renders template over the call arguments. When
// error_template renders non-blank text the call is a business failure
// carrying that text instead. Optional parameters the caller left out render
// as the empty string.
package toolfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
	"github.com/ggoodman/mcp-toolhost-go/schema"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid tool definition")

// File is the top-level document of a tool file.
type File struct {
	Tools []Definition `yaml:"tools"`
}

// Definition declares one tool.
type Definition struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description,omitempty"`
	Doc           string     `yaml:"doc,omitempty"`
	Params        []ParamDef `yaml:"params,omitempty"`
	Template      string     `yaml:"template"`
	ErrorTemplate string     `yaml:"error_template,omitempty"`
	// IsError marks every rendered result as a business failure.
	IsError bool `yaml:"is_error,omitempty"`
}

// ParamDef declares one parameter. Type is a schema kind name; Items is the
// element kind of an array.
type ParamDef struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Optional    bool   `yaml:"optional,omitempty"`
	Description string `yaml:"description,omitempty"`
	Items       string `yaml:"items,omitempty"`
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

// Parse decodes a tool file. Unknown keys are rejected; an empty file
// declares no tools.
func Parse(data []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("toolfile: parse yaml: %w", err)
	}
	return f.Tools, nil
}

// SchemaParams validates the parameter declarations and converts them.
func (d Definition) SchemaParams() ([]schema.Param, error) {
	params := make([]schema.Param, 0, len(d.Params))
	seen := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("%w %q: parameter without a name", ErrInvalidDefinition, d.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w %q: duplicate parameter %q", ErrInvalidDefinition, d.Name, p.Name)
		}
		seen[p.Name] = true

		kind := schema.Kind(p.Type)
		if !kind.Valid() {
			return nil, fmt.Errorf("%w %q: parameter %q has unknown type %q", ErrInvalidDefinition, d.Name, p.Name, p.Type)
		}
		sp := schema.Param{Name: p.Name, Kind: kind, Optional: p.Optional, Description: p.Description}
		if p.Items != "" {
			ik := schema.Kind(p.Items)
			if kind != schema.KindArray || !ik.Valid() {
				return nil, fmt.Errorf("%w %q: parameter %q has invalid items %q", ErrInvalidDefinition, d.Name, p.Name, p.Items)
			}
			sp.Items = &schema.Param{Kind: ik}
		}
		params = append(params, sp)
	}
	return params, nil
}

// Compile validates d and builds the tool it declares.
func Compile(d Definition) (mcpservice.StaticTool, error) {
	if strings.TrimSpace(d.Name) == "" {
		return mcpservice.StaticTool{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if d.Template == "" {
		return mcpservice.StaticTool{}, fmt.Errorf("%w %q: template is required", ErrInvalidDefinition, d.Name)
	}
	params, err := d.SchemaParams()
	if err != nil {
		return mcpservice.StaticTool{}, err
	}

	tmpl, err := template.New(d.Name).Funcs(funcs).Parse(d.Template)
	if err != nil {
		return mcpservice.StaticTool{}, fmt.Errorf("%w %q: template: %v", ErrInvalidDefinition, d.Name, err)
	}
	var errTmpl *template.Template
	if d.ErrorTemplate != "" {
		if errTmpl, err = template.New(d.Name + ".error").Funcs(funcs).Parse(d.ErrorTemplate); err != nil {
			return mcpservice.StaticTool{}, fmt.Errorf("%w %q: error_template: %v", ErrInvalidDefinition, d.Name, err)
		}
	}

	isError := d.IsError
	handler := func(ctx context.Context, args mcpservice.Arguments) (*mcpservice.ToolResult, error) {
		data, err := templateData(params, args)
		if err != nil {
			return nil, err
		}
		if errTmpl != nil {
			msg, err := render(errTmpl, data)
			if err != nil {
				return nil, err
			}
			if msg = strings.TrimSpace(msg); msg != "" {
				return mcpservice.Errorf("%s", msg), nil
			}
		}
		out, err := render(tmpl, data)
		if err != nil {
			return nil, err
		}
		res := mcpservice.TextResult(out)
		res.IsError = isError
		return res, nil
	}

	opts := []mcpservice.ToolOption{mcpservice.WithToolDoc(d.Doc)}
	if d.Description != "" {
		opts = append(opts, mcpservice.WithToolDescription(d.Description))
	}
	return mcpservice.NewTool(d.Name, params, handler, opts...), nil
}

func templateData(params []schema.Param, args mcpservice.Arguments) (map[string]any, error) {
	for _, p := range params {
		if !p.Optional && !args.Has(p.Name) {
			return nil, fmt.Errorf("%w: %s", mcpservice.ErrMissingArgument, p.Name)
		}
	}
	data, err := args.Values()
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		if data[p.Name] == nil {
			data[p.Name] = ""
		}
	}
	return data, nil
}

func render(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// LoadFile parses and compiles every definition in the file at path.
func LoadFile(path string) ([]mcpservice.StaticTool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toolfile: read %s: %w", path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tools := make([]mcpservice.StaticTool, 0, len(defs))
	for _, d := range defs {
		t, err := Compile(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// LoadGlob loads every file under root whose slash-separated relative path
// matches pattern (doublestar syntax, e.g. "**/*.tool.yaml"). Files are
// loaded in lexical order so later files win on name collisions. Files that
// fail to load are reported together; the tools of the other files are still
// returned.
func LoadGlob(root, pattern string) ([]mcpservice.StaticTool, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("toolfile: invalid pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("toolfile: glob %q: %w", pattern, err)
	}
	slices.Sort(matches)

	var (
		tools []mcpservice.StaticTool
		errs  []error
	)
	for _, m := range matches {
		ts, err := LoadFile(filepath.Join(root, filepath.FromSlash(m)))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tools = append(tools, ts...)
	}
	return tools, errors.Join(errs...)
}

// Provider loads the matching files once and exposes their tools.
func Provider(root, pattern string) (mcpservice.ToolProvider, error) {
	tools, err := LoadGlob(root, pattern)
	if err != nil {
		return nil, err
	}
	return mcpservice.StaticTools(tools...), nil
}
