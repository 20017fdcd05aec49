package tool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tool execution strategies.
const (
	TypeInternalFunction     = "internal_function"
	TypeAPICall              = "api_call"
	TypeSearchAndReadWebpage = "search_and_read_webpage"
	TypeURLFromTemplate      = "url_from_template"
)

// ExecutionDetails is the variant-specific part of a tool definition.
// Which fields apply depends on the tool type.
type ExecutionDetails struct {
	URLTemplate    string            `yaml:"url_template"`
	Method         string            `yaml:"method"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	QueryTemplate  string            `yaml:"query_template"`
	PagesToRead    int               `yaml:"pages_to_read"`
	ExcerptsToShow int               `yaml:"excerpts_to_show"`
}

// Definition is one declaratively configured tool.
type Definition struct {
	Name             string                 `yaml:"name"`
	Description      string                 `yaml:"description"`
	Parameters       map[string]interface{} `yaml:"parameters"`
	Type             string                 `yaml:"type"`
	ExecutionDetails ExecutionDetails       `yaml:"execution_details"`
}

type toolsFile struct {
	Tools []Definition `yaml:"tools"`
}

// Registry holds the tool definitions loaded at boot. Read-only afterwards.
type Registry struct {
	byName map[string]Definition
	order  []string
}

// LoadRegistry reads tool definitions from a YAML file. A missing path
// yields an empty registry: the gateway runs fine with zero tools.
func LoadRegistry(path string) (*Registry, error) {
	reg := &Registry{byName: make(map[string]Definition)}
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("read tools file %s: %w", path, err)
	}

	var parsed toolsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse tools file %s: %w", path, err)
	}

	for _, def := range parsed.Tools {
		if def.Name == "" {
			return nil, fmt.Errorf("tools file %s: tool with empty name", path)
		}
		if _, dup := reg.byName[def.Name]; dup {
			return nil, fmt.Errorf("tools file %s: duplicate tool %q", path, def.Name)
		}
		reg.byName[def.Name] = def
		reg.order = append(reg.order, def.Name)
	}
	return reg, nil
}

// NewRegistry builds a registry from in-memory definitions. Used by tests.
func NewRegistry(defs []Definition) *Registry {
	reg := &Registry{byName: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		reg.byName[def.Name] = def
		reg.order = append(reg.order, def.Name)
	}
	return reg
}

// Get looks up one tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// List returns all definitions in file order.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.byName)
}
