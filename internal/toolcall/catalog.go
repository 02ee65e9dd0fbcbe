// Package toolcall owns the function-calling surface: the tool catalog
// with its argument schemas, the bracket-call wire format, and the
// pipeline that validates and repairs actor drafts.
package toolcall

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/agentbench/internal/role"
)

// Tool is one catalog entry: a name, a human description for the
// selector, and a compiled JSON Schema for its arguments.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Catalog is an immutable set of tools keyed by name.
type Catalog struct {
	tools  []Tool
	byName map[string]*Tool
}

type catalogFile struct {
	Tools []struct {
		Name        string         `yaml:"name"`
		Description string         `yaml:"description"`
		Parameters  map[string]any `yaml:"parameters"`
	} `yaml:"tools"`
}

// LoadCatalog reads a YAML tool catalog and compiles each tool's
// parameter schema. A tool without parameters accepts any arguments.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog compiles a catalog from raw YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("catalog defines no tools")
	}

	tools := make([]Tool, 0, len(file.Tools))
	byName := make(map[string]*Tool, len(file.Tools))
	for _, t := range file.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("catalog tool with empty name")
		}
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		tool := Tool{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			schema, err := compileSchema(t.Name, t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %q: %w", t.Name, err)
			}
			tool.Schema = schema
		}
		tools = append(tools, tool)
		byName[t.Name] = &tools[len(tools)-1]
	}
	return &Catalog{tools: tools, byName: byName}, nil
}

// compileSchema round-trips the YAML parameter block through JSON so the
// compiler sees plain JSON values.
func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Len reports the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Get looks a tool up by name.
func (c *Catalog) Get(name string) (*Tool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Names returns every tool name in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Meta returns the name/description pairs shown to the selector.
func (c *Catalog) Meta() []role.ToolMeta {
	meta := make([]role.ToolMeta, len(c.tools))
	for i, t := range c.tools {
		meta[i] = role.ToolMeta{Name: t.Name, Description: t.Description}
	}
	return meta
}

// Subset returns a catalog restricted to the named tools, preserving
// catalog order. Unknown names are ignored.
func (c *Catalog) Subset(names []string) *Catalog {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	// Preallocated so the byName pointers survive every append.
	sub := &Catalog{
		tools:  make([]Tool, 0, len(c.tools)),
		byName: make(map[string]*Tool, len(names)),
	}
	for _, t := range c.tools {
		if keep[t.Name] {
			sub.tools = append(sub.tools, t)
			sub.byName[t.Name] = &sub.tools[len(sub.tools)-1]
		}
	}
	return sub
}

// Validate checks a call's arguments against the tool's schema. An
// unknown tool or a schema violation returns a *SchemaError.
func (c *Catalog) Validate(call Call) error {
	tool, ok := c.byName[call.Name]
	if !ok {
		return &SchemaError{Tool: call.Name, Err: fmt.Errorf("unknown tool")}
	}
	if tool.Schema == nil {
		return nil
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := tool.Schema.Validate(args); err != nil {
		return &SchemaError{Tool: call.Name, Err: err}
	}
	return nil
}

// SchemaError reports that a call failed argument validation.
type SchemaError struct {
	Tool string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
