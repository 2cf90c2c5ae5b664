// Package policy decides which catalog tools a caller may see and call.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is a single tool catalog entry.
type Descriptor struct {
	Name          string         `yaml:"name" json:"name"`
	RequiredScope string         `yaml:"requiredScope" json:"requiredScope"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty"`
	Document      string         `yaml:"document,omitempty" json:"-"`
	InputSchema   map[string]any `yaml:"inputSchema,omitempty" json:"inputSchema,omitempty"`
}

type catalogContract struct {
	Version    string       `yaml:"version"`
	Service    string       `yaml:"service"`
	APIVersion string       `yaml:"apiVersion"`
	Tools      []Descriptor `yaml:"tools"`
}

// Catalog is the immutable, ordered set of tools known to the server.
type Catalog struct {
	contract catalogContract
	byName   map[string]Descriptor
}

// NewCatalog parses catalog YAML. Empty catalogs, empty names, empty
// required scopes and duplicate names are rejected.
func NewCatalog(contractYAML []byte) (*Catalog, error) {
	var parsed catalogContract
	if err := yaml.Unmarshal(contractYAML, &parsed); err != nil {
		return nil, fmt.Errorf("decoding tool catalog: %w", err)
	}
	return newCatalog(parsed)
}

// NewCatalogFromDescriptors builds a Catalog from in-memory descriptors in
// the given order.
func NewCatalogFromDescriptors(tools ...Descriptor) (*Catalog, error) {
	return newCatalog(catalogContract{Tools: tools})
}

func newCatalog(parsed catalogContract) (*Catalog, error) {
	if len(parsed.Tools) == 0 {
		return nil, errors.New("tool catalog has no tools")
	}

	tools := make([]Descriptor, 0, len(parsed.Tools))
	byName := make(map[string]Descriptor, len(parsed.Tools))
	for _, tool := range parsed.Tools {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			return nil, errors.New("tool catalog contains empty tool name")
		}
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("tool catalog contains duplicate tool %q", name)
		}
		tool.Name = name
		if tool.RequiredScope == "" {
			return nil, fmt.Errorf("tool %q has empty requiredScope", name)
		}
		if tool.InputSchema == nil {
			tool.InputSchema = map[string]any{"type": "object"}
		}
		byName[name] = tool
		tools = append(tools, tool)
	}
	parsed.Tools = tools

	return &Catalog{
		contract: parsed,
		byName:   byName,
	}, nil
}

// List returns all tools in catalog order.
func (c *Catalog) List() []Descriptor {
	items := make([]Descriptor, 0, len(c.contract.Tools))
	items = append(items, c.contract.Tools...)
	return items
}

// Lookup returns a tool by exact name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	tool, ok := c.byName[name]
	return tool, ok
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.contract.Tools)
}

// Service returns the service name declared by the catalog, if any.
func (c *Catalog) Service() string {
	return c.contract.Service
}
