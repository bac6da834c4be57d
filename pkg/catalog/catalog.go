// Package catalog holds the namespaces and return fields the mapping service
// accepts. The table is read-only and safe for concurrent use.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Sternrassler/idmapping-client/pkg/client"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Namespace is an identifier system the service maps from or to.
type Namespace struct {
	Name     string
	Category string
}

// Field is a return field of the results endpoint.
type Field struct {
	Name    string
	Label   string
	Section string
}

// Catalog validates namespaces and fields.
type Catalog struct {
	namespaces    []Namespace
	byNamespace   map[string]Namespace
	fields        []Field
	byField       map[string]Field
	defaultFields []string
	fieldTargets  []string
}

type document struct {
	FieldTargets  []string  `yaml:"field_targets"`
	DefaultFields []string  `yaml:"default_fields"`
	Namespaces    yaml.Node `yaml:"namespaces"`
	Fields        yaml.Node `yaml:"fields"`
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(embedded)
})

// Default returns the catalog shipped with the package. It is parsed once.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Load parses a catalog document.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		byNamespace:   make(map[string]Namespace),
		byField:       make(map[string]Field),
		defaultFields: doc.DefaultFields,
		fieldTargets:  doc.FieldTargets,
	}

	err := walkSections(&doc.Namespaces, func(section string, item *yaml.Node) error {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("namespace in %q is not a string", section)
		}
		ns := Namespace{Name: item.Value, Category: section}
		if _, dup := c.byNamespace[ns.Name]; dup {
			return fmt.Errorf("duplicate namespace %q", ns.Name)
		}
		c.namespaces = append(c.namespaces, ns)
		c.byNamespace[ns.Name] = ns
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse catalog namespaces: %w", err)
	}

	if err := c.loadFields(&doc.Fields); err != nil {
		return nil, fmt.Errorf("parse catalog fields: %w", err)
	}

	for _, name := range c.defaultFields {
		if _, ok := c.byField[name]; !ok {
			return nil, fmt.Errorf("default field %q is not a known field", name)
		}
	}
	for _, name := range c.fieldTargets {
		if _, ok := c.byNamespace[name]; !ok {
			return nil, fmt.Errorf("field target %q is not a known namespace", name)
		}
	}
	return c, nil
}

// walkSections visits the items of a "section: [items]" mapping in document
// order.
func walkSections(node *yaml.Node, visit func(section string, item *yaml.Node) error) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping of sections")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		section, items := node.Content[i].Value, node.Content[i+1]
		if items.Kind != yaml.SequenceNode {
			return fmt.Errorf("section %q is not a list", section)
		}
		for _, item := range items.Content {
			if err := visit(section, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Catalog) loadFields(node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping of sections")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		section, entries := node.Content[i].Value, node.Content[i+1]
		if entries.Kind != yaml.MappingNode {
			return fmt.Errorf("section %q is not a name: label map", section)
		}
		for j := 0; j+1 < len(entries.Content); j += 2 {
			f := Field{
				Name:    entries.Content[j].Value,
				Label:   entries.Content[j+1].Value,
				Section: section,
			}
			if _, dup := c.byField[f.Name]; dup {
				return fmt.Errorf("duplicate field %q", f.Name)
			}
			c.fields = append(c.fields, f)
			c.byField[f.Name] = f
		}
	}
	return nil
}

// Namespaces returns all namespaces in catalog order.
func (c *Catalog) Namespaces() []Namespace {
	return slices.Clone(c.namespaces)
}

// NamespaceNames returns the sorted namespace names.
func (c *Catalog) NamespaceNames() []string {
	names := make([]string, 0, len(c.namespaces))
	for _, ns := range c.namespaces {
		names = append(names, ns.Name)
	}
	slices.Sort(names)
	return names
}

// HasNamespace reports whether name is a known namespace.
func (c *Catalog) HasNamespace(name string) bool {
	_, ok := c.byNamespace[name]
	return ok
}

// ValidateNamespaces checks a from/to pair.
func (c *Catalog) ValidateNamespaces(from, to string) error {
	if !c.HasNamespace(from) {
		return &client.ValidationError{Field: "from", Value: from, Allowed: c.NamespaceNames()}
	}
	if !c.HasNamespace(to) {
		return &client.ValidationError{Field: "to", Value: to, Allowed: c.NamespaceNames()}
	}
	return nil
}

// Fields returns all return fields in catalog order.
func (c *Catalog) Fields() []Field {
	return slices.Clone(c.fields)
}

// Field looks up a return field.
func (c *Catalog) Field(name string) (Field, bool) {
	f, ok := c.byField[name]
	return f, ok
}

// DefaultKeyword expands to the default field set in NormalizeFields.
const DefaultKeyword = "default"

// NormalizeFields lower-cases and trims field names and checks them against
// the catalog. Blank entries are skipped and DefaultKeyword expands in place.
func (c *Catalog) NormalizeFields(fields []string) ([]string, error) {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f))
		if name == "" {
			continue
		}
		if name == DefaultKeyword {
			out = append(out, c.defaultFields...)
			continue
		}
		if _, ok := c.byField[name]; !ok {
			return nil, &client.ValidationError{Field: "field", Value: name, Allowed: c.fieldNames()}
		}
		out = append(out, name)
	}
	return out, nil
}

func (c *Catalog) fieldNames() []string {
	names := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		names = append(names, f.Name)
	}
	return names
}

// SupportsFields reports whether results for target namespace to accept the
// "fields" parameter.
func (c *Catalog) SupportsFields(to string) bool {
	return slices.Contains(c.fieldTargets, to)
}

// DefaultFields is the field set selected by DefaultKeyword.
func (c *Catalog) DefaultFields() []string {
	return slices.Clone(c.defaultFields)
}
