package toolfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
)

const greetYAML = `
tools:
  - name: greet
    doc: |
      Greet someone.

      * ` + "`name`" + ` - Who to greet
    params:
      - name: name
        type: string
      - name: excited
        type: boolean
        optional: true
    template: 'Hello, {{.name}}{{if .excited}}!{{end}}'
    error_template: '{{if eq .name ""}}name must not be empty{{end}}'
  - name: tags
    description: Join tags
    params:
      - name: tags
        type: array
        items: string
    template: '{{json .tags}}'
`

func invoke(t *testing.T, tool mcpservice.Tool, args string) (*mcpservice.ToolResult, error) {
	t.Helper()
	parsed, err := mcpservice.ParseArguments(json.RawMessage(args))
	if err != nil {
		t.Fatalf("parse args: %v", err)
	}
	return tool.Call(context.Background(), parsed)
}

func compileAll(t *testing.T, src string) map[string]mcpservice.StaticTool {
	t.Helper()
	defs, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := make(map[string]mcpservice.StaticTool, len(defs))
	for _, d := range defs {
		tool, err := Compile(d)
		if err != nil {
			t.Fatalf("compile %s: %v", d.Name, err)
		}
		out[tool.Name()] = tool
	}
	return out
}

func TestCompile_RendersTemplate(t *testing.T) {
	tools := compileAll(t, greetYAML)
	greet := tools["greet"]

	tests := []struct {
		args    string
		want    string
		isError bool
	}{
		{`{"name":"Ada"}`, "Hello, Ada", false},
		{`{"name":"Ada","excited":true}`, "Hello, Ada!", false},
		{`{"name":"Ada","excited":null}`, "Hello, Ada", false},
		{`{"name":""}`, "name must not be empty", true},
	}
	for _, tc := range tests {
		res, err := invoke(t, greet, tc.args)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.args, err)
		}
		if res.IsError != tc.isError || len(res.Content) != 1 || res.Content[0].Text != tc.want {
			t.Fatalf("%s: got %+v, want %q (isError=%v)", tc.args, res, tc.want, tc.isError)
		}
	}

	res, err := invoke(t, tools["tags"], `{"tags":["a","b"]}`)
	if err != nil || res.Content[0].Text != `["a","b"]` {
		t.Fatalf("tags: got %+v, %v", res, err)
	}
}

func TestCompile_Descriptor(t *testing.T) {
	tools := compileAll(t, greetYAML)

	desc := tools["greet"].Describe()
	if desc.Description != "Greet someone." {
		t.Fatalf("unexpected description %q", desc.Description)
	}
	if got := desc.InputSchema.Required; len(got) != 1 || got[0] != "name" {
		t.Fatalf("unexpected required %v", got)
	}
	if desc.InputSchema.Properties["name"].Description != "Who to greet" {
		t.Fatalf("expected doc-derived parameter description, got %+v", desc.InputSchema.Properties["name"])
	}
	if tools["tags"].Describe().Description != "Join tags" {
		t.Fatalf("explicit description not used")
	}
}

func TestCompile_MissingArgument(t *testing.T) {
	tools := compileAll(t, greetYAML)
	_, err := invoke(t, tools["greet"], `{"excited":true}`)
	if !errors.Is(err, mcpservice.ErrMissingArgument) {
		t.Fatalf("expected ErrMissingArgument, got %v", err)
	}
}

func TestCompile_IsError(t *testing.T) {
	tools := compileAll(t, `
tools:
  - name: fail
    template: always fails
    is_error: true
`)
	res, err := invoke(t, tools["fail"], `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || res.Content[0].Text != "always fails" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := invoke(t, tools["fail"], `{"x":1}`); !errors.Is(err, mcpservice.ErrInvalidArgument) {
		t.Fatalf("expected arguments to be refused, got %v", err)
	}
}

func TestCompile_InvalidDefinitions(t *testing.T) {
	tests := map[string]Definition{
		"no name":            {Template: "x"},
		"no template":        {Name: "t"},
		"bad kind":           {Name: "t", Template: "x", Params: []ParamDef{{Name: "a", Type: "float"}}},
		"duplicate":          {Name: "t", Template: "x", Params: []ParamDef{{Name: "a", Type: "string"}, {Name: "a", Type: "number"}}},
		"items on non-array": {Name: "t", Template: "x", Params: []ParamDef{{Name: "a", Type: "string", Items: "string"}}},
		"bad template":       {Name: "t", Template: "{{.a"},
	}
	for name, d := range tests {
		if _, err := Compile(d); !errors.Is(err, ErrInvalidDefinition) {
			t.Errorf("%s: expected ErrInvalidDefinition, got %v", name, err)
		}
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("tools:\n  - name: t\n    template: x\n    bogus: true\n"))
	if err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func toolYAML(name, text string) string {
	return "tools:\n  - name: " + name + "\n    template: '" + text + "'\n"
}

func TestLoadGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.tool.yaml"), toolYAML("one", "first"))
	writeFile(t, filepath.Join(root, "nested", "deep", "b.tool.yaml"), toolYAML("two", "second"))
	writeFile(t, filepath.Join(root, "nested", "ignored.yaml"), toolYAML("three", "third"))
	writeFile(t, filepath.Join(root, "z.tool.yaml"), toolYAML("one", "override"))

	tools, err := LoadGlob(root, "**/*.tool.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reg := mcpservice.NewRegistry()
	for _, tool := range tools {
		reg.Register(tool)
	}
	if got := strings.Join(reg.Names(), ","); got != "one,two" {
		t.Fatalf("unexpected tools %s", got)
	}
	one, _ := reg.Lookup("one")
	res, err := invoke(t, one, `{}`)
	if err != nil || res.Content[0].Text != "override" {
		t.Fatalf("expected later file to win, got %+v, %v", res, err)
	}
}

func TestLoadGlob_ReportsBrokenFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good.tool.yaml"), toolYAML("good", "ok"))
	writeFile(t, filepath.Join(root, "bad.tool.yaml"), "tools: [")

	tools, err := LoadGlob(root, "*.tool.yaml")
	if err == nil || !strings.Contains(err.Error(), "bad.tool.yaml") {
		t.Fatalf("expected error naming the broken file, got %v", err)
	}
	if len(tools) != 1 || tools[0].Name() != "good" {
		t.Fatalf("expected the good file to load, got %d tools", len(tools))
	}

	if _, err := Provider(root, "*.tool.yaml"); err == nil {
		t.Fatalf("expected provider to fail")
	}
	if _, err := LoadGlob(root, "[unterminated"); err == nil {
		t.Fatalf("expected invalid pattern to fail")
	}
}

func waitForText(t *testing.T, reg *mcpservice.Registry, changes <-chan struct{}, name, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if tool, ok := reg.Lookup(name); ok {
			res, err := invoke(t, tool, `{}`)
			if err == nil && res.Content[0].Text == want {
				return
			}
		}
		select {
		case <-changes:
		case <-deadline:
			t.Fatalf("timed out waiting for %s to render %q", name, want)
		}
	}
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "initial.tool.yaml"), toolYAML("initial", "v1"))

	reg := mcpservice.NewRegistry()
	changes, stop := reg.Subscribe()
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, reg, root, "**/*.tool.yaml", WithDebounce(10*time.Millisecond)) }()

	waitForText(t, reg, changes, "initial", "v1")

	writeFile(t, filepath.Join(root, "initial.tool.yaml"), toolYAML("initial", "v2"))
	waitForText(t, reg, changes, "initial", "v2")

	writeFile(t, filepath.Join(root, "added.tool.yaml"), toolYAML("added", "new"))
	waitForText(t, reg, changes, "added", "new")

	// Files outside the pattern are ignored.
	writeFile(t, filepath.Join(root, "notes.yaml"), toolYAML("ignored", "x"))
	writeFile(t, filepath.Join(root, "last.tool.yaml"), toolYAML("last", "done"))
	waitForText(t, reg, changes, "last", "done")
	if _, ok := reg.Lookup("ignored"); ok {
		t.Fatalf("non-matching file was loaded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}

func TestWatch_InitialLoadRegistersOnce(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.tool.yaml"), toolYAML("a", "x"))
	writeFile(t, filepath.Join(root, "b.tool.yaml"), toolYAML("b", "y"))

	var mu sync.Mutex
	counts := map[string]int{}
	replaced := 0
	reg := mcpservice.NewRegistry(mcpservice.WithOnRegister(func(name string, r bool) {
		mu.Lock()
		defer mu.Unlock()
		counts[name]++
		if r {
			replaced++
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, reg, root, "*.tool.yaml", WithReady(func() { close(ready) }))
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("watch returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("watch never became ready")
	}

	mu.Lock()
	defer mu.Unlock()
	if counts["a"] != 1 || counts["b"] != 1 || replaced != 0 {
		t.Fatalf("expected one fresh registration per tool, got %v (replaced=%d)", counts, replaced)
	}
}
