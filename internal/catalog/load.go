package catalog

import (
	"errors"
	"io"
	"os"

	"github.com/clean-dependency-project/mazerunner/internal/version"
)

// Verifier authenticates raw runner file content before it is parsed.
type Verifier interface {
	Verify(path string, data []byte) error
}

// Loader reads, optionally verifies, and parses runner files.
type Loader struct {
	// Verifier, when set, must accept the file content before parsing.
	Verifier Verifier
	// Version is matched against the file's requires constraint.
	// Defaults to version.Current.
	Version string
}

// Load reads and parses the runner file at path with a default Loader.
func Load(path string) (*Catalog, error) {
	return (&Loader{}).Load(path)
}

// Load reads the runner file at path, verifies it when a Verifier is set,
// parses it in the format implied by its extension and checks its
// requires constraint.
func (l *Loader) Load(path string) (*Catalog, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	if l.Verifier != nil {
		if err := l.Verifier.Verify(path, data); err != nil {
			return nil, err
		}
	}

	c, err := Parse(data, FormatFromPath(path))
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Path = path
		}
		return nil, err
	}

	if l.Version == "" {
		err = version.CheckCurrent(c.Requires())
	} else {
		err = version.Check(c.Requires(), l.Version)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ReadFile returns the full contents of path, classifying failures as
// KindOpen or KindRead.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Kind: KindOpen, Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &IOError{Kind: KindRead, Path: path, Err: err}
	}
	return data, nil
}
