// Package resolver selects which runner file an invocation reads.
package resolver

// Well-known runner file names.
const (
	DefaultFile = "runner.toml"
	DevFile     = "dev.runner.toml"
	TestFile    = "test.runner.toml"
	ReleaseFile = "release.runner.toml"
)

// Selection holds the file selectors parsed from the command line.
// The zero value selects DefaultFile.
type Selection struct {
	Dev     bool
	Test    bool
	Release bool
	Path    string
}

// Resolve returns the runner file path for s. The first matching selector
// wins in the order Dev, Test, Release, Path, default. Conflicting selectors
// are not an error: a set boolean silently overrides an explicit Path.
func Resolve(s Selection) string {
	switch {
	case s.Dev:
		return DevFile
	case s.Test:
		return TestFile
	case s.Release:
		return ReleaseFile
	case s.Path != "":
		return s.Path
	default:
		return DefaultFile
	}
}

// Overridden reports whether an explicit Path was supplied but ignored
// because a boolean selector took precedence.
func (s Selection) Overridden() bool {
	return s.Path != "" && (s.Dev || s.Test || s.Release)
}
