// Package persona holds the fixed set of companion personas and their prompt
// templates.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPersona is returned when a persona name does not resolve.
var ErrUnknownPersona = errors.New("unknown persona")

// Persona is a named behavioral template. Template contains the {history}
// and {input} placeholders filled in by the prompt composer.
type Persona struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Template    string `json:"-" yaml:"template"`
}

// Catalog is an immutable persona lookup table. It is safe for concurrent use
// without locking because nothing mutates it after construction.
type Catalog struct {
	ordered []Persona
	byKey   map[string]int
}

//go:embed personas.yaml
var builtinDocument []byte

var builtin = mustParse(builtinDocument)

// Builtin returns the catalog of built-in personas.
func Builtin() *Catalog { return builtin }

// NewCatalog builds a catalog from personas. IDs and display names must be
// unique (case-insensitively) and every template must accept user input.
func NewCatalog(personas []Persona) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, errors.New("persona catalog is empty")
	}
	c := &Catalog{
		ordered: make([]Persona, 0, len(personas)),
		byKey:   make(map[string]int, len(personas)*2),
	}
	for _, p := range personas {
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("persona %q: id and name are required", p.ID)
		}
		if !strings.Contains(p.Template, "{input}") {
			return nil, fmt.Errorf("persona %q: template has no {input} placeholder", p.ID)
		}
		idx := len(c.ordered)
		for _, key := range []string{normalize(p.ID), normalize(p.Name)} {
			if prev, ok := c.byKey[key]; ok && prev != idx {
				return nil, fmt.Errorf("persona %q: duplicate key %q", p.ID, key)
			}
			c.byKey[key] = idx
		}
		c.ordered = append(c.ordered, p)
	}
	return c, nil
}

// Resolve finds a persona by id or display name, ignoring case.
func (c *Catalog) Resolve(name string) (Persona, error) {
	if idx, ok := c.byKey[normalize(name)]; ok {
		return c.ordered[idx], nil
	}
	return Persona{}, fmt.Errorf("%w: %q", ErrUnknownPersona, strings.TrimSpace(name))
}

// List returns the personas in declaration order.
func (c *Catalog) List() []Persona {
	out := make([]Persona, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Default is the first declared persona.
func (c *Catalog) Default() Persona { return c.ordered[0] }

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func mustParse(doc []byte) *Catalog {
	var parsed struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		panic(fmt.Sprintf("persona: parse built-in catalog: %v", err))
	}
	c, err := NewCatalog(parsed.Personas)
	if err != nil {
		panic(fmt.Sprintf("persona: built-in catalog: %v", err))
	}
	return c
}
