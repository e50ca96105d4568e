package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a runner file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the decoder from the file extension. Anything that
// is not recognisably YAML or JSON is treated as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// file mirrors the on-disk document. Runners is a pointer so a missing
// field can be told apart from an empty list.
type file struct {
	Requires    string        `toml:"requires" yaml:"requires" json:"requires"`
	Description string        `toml:"description" yaml:"description" json:"description"`
	Runners     *[]Definition `toml:"runners" yaml:"runners" json:"runners"`
}

// Parse decodes data in the given format into a Catalog.
func Parse(data []byte, format Format) (*Catalog, error) {
	var doc file
	if err := decode(data, format, &doc); err != nil {
		return nil, &ParseError{Format: format, Index: -1, Err: err}
	}
	if doc.Runners == nil {
		return nil, &ParseError{Format: format, Index: -1, Err: ErrNoRunners}
	}

	c, err := New(*doc.Runners)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Format = format
		}
		return nil, err
	}
	c.requires = strings.TrimSpace(doc.Requires)
	c.description = doc.Description
	return c, nil
}

// ParseTOML is Parse with FormatTOML.
func ParseTOML(text string) (*Catalog, error) {
	return Parse([]byte(text), FormatTOML)
}

func decode(data []byte, format Format, doc *file) error {
	switch format {
	case FormatTOML, "":
		if _, err := toml.Decode(string(data), doc); err != nil {
			return err
		}
		return nil
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(doc); err != nil {
			// An empty document decodes to io.EOF; report it as missing runners.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		return nil
	case FormatJSON:
		return json.Unmarshal(data, doc)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
