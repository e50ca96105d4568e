package catalog

import "fmt"

// IOErrorKind distinguishes failures to open a runner file from failures
// to read one that was opened.
type IOErrorKind string

const (
	KindOpen IOErrorKind = "cannot open"
	KindRead IOErrorKind = "cannot read"
)

// IOError reports that a runner file could not be opened or read.
type IOError struct {
	Kind IOErrorKind
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s runner file %s: %v", e.Kind, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError reports runner file content that is not valid for its format
// or does not have the expected shape. Index is the offending entry
// position, or -1 when the failure is not tied to one entry.
type ParseError struct {
	Path   string
	Format Format
	Index  int
	Name   string
	Err    error
}

func (e *ParseError) Error() string {
	where := "runner file"
	if e.Path != "" {
		where = "runner file " + e.Path
	}
	if e.Index >= 0 {
		if e.Name != "" {
			return fmt.Sprintf("failed to parse %s: runners[%d] (%s): %v", where, e.Index, e.Name, e.Err)
		}
		return fmt.Sprintf("failed to parse %s: runners[%d]: %v", where, e.Index, e.Err)
	}
	if e.Format != "" {
		return fmt.Sprintf("failed to parse %s as %s: %v", where, e.Format, e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %v", where, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
