package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/clean-dependency-project/mazerunner/internal/version"
)

const sampleTOML = `
description = "sample runners"

[[runners]]
name = "build"
command = ["go", "build", "./..."]

[[runners]]
name = "test"
command = ["go", "test", "-race", "./..."]

[[runners]]
name = "hello"
command = ["echo", "hi"]
`

func TestParseTOML(t *testing.T) {
	c, err := ParseTOML(sampleTOML)
	if err != nil {
		t.Fatalf("ParseTOML() unexpected error: %v", err)
	}

	want := []Definition{
		{Name: "build", Command: []string{"go", "build", "./..."}},
		{Name: "test", Command: []string{"go", "test", "-race", "./..."}},
		{Name: "hello", Command: []string{"echo", "hi"}},
	}
	if diff := cmp.Diff(want, c.Definitions()); diff != "" {
		t.Errorf("Definitions() mismatch (-want +got):\n%s", diff)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if c.Description() != "sample runners" {
		t.Errorf("Description() = %q", c.Description())
	}
	if diff := cmp.Diff([]string{"build", "test", "hello"}, c.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmptyRunnerList(t *testing.T) {
	c, err := ParseTOML(`runners = []`)
	if err != nil {
		t.Fatalf("ParseTOML() unexpected error: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		data    string
		wantErr error
	}{
		{
			name:   "missing command",
			format: FormatTOML,
			data: `
[[runners]]
name = "build"
`,
			wantErr: ErrEmptyCommand,
		},
		{
			name:   "empty command",
			format: FormatTOML,
			data: `
[[runners]]
name = "build"
command = []
`,
			wantErr: ErrEmptyCommand,
		},
		{
			name:   "missing name",
			format: FormatTOML,
			data: `
[[runners]]
command = ["ls"]
`,
			wantErr: ErrEmptyName,
		},
		{
			name:   "non-array runners",
			format: FormatTOML,
			data:   `runners = "build"`,
		},
		{
			name:   "command not a list",
			format: FormatTOML,
			data:   "[[runners]]\nname = \"x\"\ncommand = \"ls -la\"\n",
		},
		{
			name:   "invalid toml",
			format: FormatTOML,
			data:   `runners = [`,
		},
		{
			name:    "missing runners",
			format:  FormatTOML,
			data:    `description = "nothing here"`,
			wantErr: ErrNoRunners,
		},
		{
			name:    "empty yaml document",
			format:  FormatYAML,
			data:    "",
			wantErr: ErrNoRunners,
		},
		{
			name:   "yaml runners is a map",
			format: FormatYAML,
			data:   "runners:\n  build: go build\n",
		},
		{
			name:   "json runners is a string",
			format: FormatJSON,
			data:   `{"runners": "build"}`,
		},
		{
			name:    "json missing command",
			format:  FormatJSON,
			data:    `{"runners": [{"name": "a"}]}`,
			wantErr: ErrEmptyCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
			if parseErr.Format != tt.format {
				t.Errorf("ParseError.Format = %q, want %q", parseErr.Format, tt.format)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseYAMLAndJSON(t *testing.T) {
	want := []Definition{
		{Name: "a", Command: []string{"echo", "hi"}},
		{Name: "b", Command: []string{"ls"}},
	}

	yamlDoc := `
runners:
  - name: a
    command: [echo, hi]
  - name: b
    command:
      - ls
`
	jsonDoc := `{"runners":[{"name":"a","command":["echo","hi"]},{"name":"b","command":["ls"]}]}`

	for format, data := range map[Format]string{FormatYAML: yamlDoc, FormatJSON: jsonDoc} {
		t.Run(string(format), func(t *testing.T) {
			c, err := Parse([]byte(data), format)
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if diff := cmp.Diff(want, c.Definitions()); diff != "" {
				t.Errorf("Definitions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := Parse([]byte(`runners = []`), Format("ini"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"runner.toml":         FormatTOML,
		"dev.runner.toml":     FormatTOML,
		"runners.yaml":        FormatYAML,
		"runners.YML":         FormatYAML,
		"ci/runners.json":     FormatJSON,
		"Runnerfile":          FormatTOML,
		"weird.runner.config": FormatTOML,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	c, err := ParseTOML(sampleTOML)
	if err != nil {
		t.Fatalf("ParseTOML() unexpected error: %v", err)
	}

	def, ok := c.Lookup("build")
	if !ok {
		t.Fatal("Lookup(build) not found")
	}
	if def.Executable() != "go" {
		t.Errorf("Executable() = %q, want go", def.Executable())
	}
	if diff := cmp.Diff([]string{"build", "./..."}, def.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{"missing-name", "Build", "buil", ""} {
		if _, ok := c.Lookup(name); ok {
			t.Errorf("Lookup(%q) found, want not found", name)
		}
	}
}

func TestLookupDuplicateReturnsFirst(t *testing.T) {
	c, err := ParseTOML(`
[[runners]]
name = "dup"
command = ["echo", "first"]

[[runners]]
name = "dup"
command = ["echo", "second"]
`)
	if err != nil {
		t.Fatalf("ParseTOML() unexpected error: %v", err)
	}
	def, ok := c.Lookup("dup")
	if !ok {
		t.Fatal("Lookup(dup) not found")
	}
	if diff := cmp.Diff([]string{"echo", "first"}, def.Command); diff != "" {
		t.Errorf("Lookup(dup) mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogIsReadOnly(t *testing.T) {
	c, err := ParseTOML(sampleTOML)
	if err != nil {
		t.Fatalf("ParseTOML() unexpected error: %v", err)
	}

	defs := c.Definitions()
	defs[0].Name = "changed"
	defs[0].Command[0] = "rm"

	def, _ := c.Lookup("build")
	def.Command[0] = "rm"

	again, ok := c.Lookup("build")
	if !ok || again.Command[0] != "go" {
		t.Errorf("catalog was mutated through a returned definition: %+v", again)
	}
}

func TestDefinitionArgs(t *testing.T) {
	d := Definition{Name: "solo", Command: []string{"true"}}
	if d.Args() != nil {
		t.Errorf("Args() = %v, want nil", d.Args())
	}
	if (Definition{}).Executable() != "" {
		t.Error("Executable() on empty definition should be empty")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runner.toml", sampleTOML)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLoadYAMLByExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runners.yml", "runners:\n  - name: a\n    command: [echo, hi]\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if _, ok := c.Lookup("a"); !ok {
		t.Error("Lookup(a) not found")
	}
}

func TestLoadIOErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.toml"))
		var ioErr *IOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("Load() error = %v, want *IOError", err)
		}
		if ioErr.Kind != KindOpen {
			t.Errorf("Kind = %q, want %q", ioErr.Kind, KindOpen)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load() error should wrap os.ErrNotExist: %v", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Load(dir)
		var ioErr *IOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("Load() error = %v, want *IOError", err)
		}
		if ioErr.Kind != KindRead {
			t.Errorf("Kind = %q, want %q", ioErr.Kind, KindRead)
		}
	})
}

func TestLoadParseErrorCarriesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runner.toml", `runners = "oops"`)

	_, err := Load(path)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Load() error = %v, want *ParseError", err)
	}
	if parseErr.Path != path {
		t.Errorf("ParseError.Path = %q, want %q", parseErr.Path, path)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error message %q should mention %s", err.Error(), path)
	}
}

func TestLoadRequires(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runner.toml", `
requires = ">= 2.0.0"

[[runners]]
name = "a"
command = ["true"]
`)

	if _, err := (&Loader{Version: "2.1.0"}).Load(path); err != nil {
		t.Errorf("Load() with satisfying version unexpected error: %v", err)
	}

	_, err := (&Loader{Version: "1.9.0"}).Load(path)
	var compatErr *version.CompatibilityError
	if !errors.As(err, &compatErr) {
		t.Fatalf("Load() error = %v, want *version.CompatibilityError", err)
	}
}

func TestLoadRequiresRunningVersion(t *testing.T) {
	dir := t.TempDir()
	older := writeFile(t, dir, "older.toml", "requires = \"< 1.0.0\"\n\n[[runners]]\nname = \"a\"\ncommand = [\"true\"]\n")
	current := writeFile(t, dir, "current.toml", "requires = \"= "+version.Current+"\"\n\n[[runners]]\nname = \"a\"\ncommand = [\"true\"]\n")

	_, err := Load(older)
	var compatErr *version.CompatibilityError
	if !errors.As(err, &compatErr) {
		t.Fatalf("Load() error = %v, want *version.CompatibilityError", err)
	}
	if compatErr.Version != version.Current {
		t.Errorf("CompatibilityError.Version = %q, want %q", compatErr.Version, version.Current)
	}

	if _, err := Load(current); err != nil {
		t.Errorf("Load() pinned to the running version unexpected error: %v", err)
	}
}

type stubVerifier struct {
	err   error
	calls int
	data  []byte
}

func (s *stubVerifier) Verify(_ string, data []byte) error {
	s.calls++
	s.data = data
	return s.err
}

func TestLoaderVerifier(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runner.toml", sampleTOML)

	ok := &stubVerifier{}
	if _, err := (&Loader{Verifier: ok}).Load(path); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if ok.calls != 1 || string(ok.data) != sampleTOML {
		t.Errorf("verifier called %d times with %d bytes", ok.calls, len(ok.data))
	}

	rejectErr := errors.New("bad signature")
	reject := &stubVerifier{err: rejectErr}
	if _, err := (&Loader{Verifier: reject}).Load(path); !errors.Is(err, rejectErr) {
		t.Errorf("Load() error = %v, want %v", err, rejectErr)
	}
}
