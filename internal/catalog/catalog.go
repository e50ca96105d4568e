// Package catalog parses runner files into an ordered set of named command
// definitions and provides lookup by name.
//
// A runner file has a single required top-level field, runners, holding a
// list of {name, command} entries:
//
//	[[runners]]
//	name = "build"
//	command = ["go", "build", "./..."]
//
// TOML is the native format; YAML and JSON files are accepted when the file
// extension says so.
package catalog

import (
	"errors"
	"slices"
)

// Sentinel errors for definition validation
var (
	ErrEmptyName    = errors.New("runner name cannot be empty")
	ErrEmptyCommand = errors.New("runner command cannot be empty")
	ErrNoRunners    = errors.New("missing required field \"runners\"")
)

// Definition is a single named command. Command[0] is the executable and
// the remaining elements are passed as its arguments.
type Definition struct {
	Name    string   `toml:"name" yaml:"name" json:"name"`
	Command []string `toml:"command" yaml:"command" json:"command"`
}

// Executable returns the program to spawn.
func (d Definition) Executable() string {
	if len(d.Command) == 0 {
		return ""
	}
	return d.Command[0]
}

// Args returns the arguments passed to the executable.
func (d Definition) Args() []string {
	if len(d.Command) < 2 {
		return nil
	}
	return slices.Clone(d.Command[1:])
}

// Validate checks the invariants every parsed definition must hold.
func (d Definition) Validate() error {
	if d.Name == "" {
		return ErrEmptyName
	}
	if len(d.Command) == 0 {
		return ErrEmptyCommand
	}
	return nil
}

func (d Definition) clone() Definition {
	return Definition{Name: d.Name, Command: slices.Clone(d.Command)}
}

// Catalog is the read-only, ordered result of parsing one runner file.
type Catalog struct {
	definitions []Definition
	requires    string
	description string
}

// New builds a catalog from already validated definitions, preserving order.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{definitions: make([]Definition, 0, len(defs))}
	for i, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, &ParseError{Index: i, Name: d.Name, Err: err}
		}
		c.definitions = append(c.definitions, d.clone())
	}
	return c, nil
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.definitions)
}

// Definitions returns a copy of all definitions in file order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.definitions))
	for i, d := range c.definitions {
		out[i] = d.clone()
	}
	return out
}

// Names returns the runner names in file order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.definitions))
	for i, d := range c.definitions {
		names[i] = d.Name
	}
	return names
}

// Requires returns the mr version constraint declared by the file, if any.
func (c *Catalog) Requires() string {
	return c.requires
}

// Description returns the free-form description declared by the file, if any.
func (c *Catalog) Description() string {
	return c.description
}

// Lookup returns the first definition whose name equals name exactly.
// Matching is case-sensitive and never partial.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	for _, d := range c.definitions {
		if d.Name == name {
			return d.clone(), true
		}
	}
	return Definition{}, false
}
