// Package dispatcher ties the resolver, catalog and executor together into
// the two user-facing operations: running one runner and listing them all.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/clean-dependency-project/mazerunner/internal/catalog"
	"github.com/clean-dependency-project/mazerunner/internal/executor"
	"github.com/clean-dependency-project/mazerunner/internal/history"
	"github.com/clean-dependency-project/mazerunner/internal/resolver"
)

// ListFormat selects the encoding of List output.
type ListFormat string

const (
	ListJSON ListFormat = "json"
	ListYAML ListFormat = "yaml"
)

// NotFoundError reports that no runner with the requested name exists in
// the loaded catalog.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Runner not found: %s (in %s)", e.Name, e.Path)
}

// SerializationError reports a failure to encode or write the listing.
type SerializationError struct {
	Format ListFormat
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to encode runner list as %s: %v", e.Format, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// CatalogLoader loads the runner file at path.
type CatalogLoader interface {
	Load(path string) (*catalog.Catalog, error)
}

// Runner executes one definition to completion.
type Runner interface {
	Execute(ctx context.Context, def catalog.Definition) (executor.Result, error)
}

// Recorder stores finished invocations.
type Recorder interface {
	Record(inv *history.Invocation) error
}

// Dispatcher implements the run and list operations.
type Dispatcher struct {
	loader   CatalogLoader
	runner   Runner
	recorder Recorder
	stdout   io.Writer
	logger   *slog.Logger
}

// New creates a Dispatcher. Listings are written to stdout.
func New(loader CatalogLoader, runner Runner, stdout io.Writer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		loader: loader,
		runner: runner,
		stdout: stdout,
		logger: logger,
	}
}

// SetRecorder enables invocation history. A nil recorder disables it.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// load resolves the runner file for sel and loads it.
func (d *Dispatcher) load(sel resolver.Selection) (*catalog.Catalog, string, error) {
	path := resolver.Resolve(sel)
	if sel.Overridden() {
		d.logger.Debug("explicit path ignored in favour of selector flag", "path", sel.Path, "resolved", path)
	}
	d.logger.Debug("resolved runner file", "path", path)

	cat, err := d.loader.Load(path)
	if err != nil {
		return nil, path, err
	}
	d.logger.Debug("loaded runner file",
		"path", path,
		"description", cat.Description(),
		"runners", cat.Names())
	return cat, path, nil
}

// Run loads the selected runner file, looks up name and executes it.
// Nothing is spawned when the name is not in the catalog.
func (d *Dispatcher) Run(ctx context.Context, name string, sel resolver.Selection) (executor.Result, error) {
	cat, path, err := d.load(sel)
	if err != nil {
		return executor.Result{}, err
	}

	def, ok := cat.Lookup(name)
	if !ok {
		return executor.Result{}, &NotFoundError{Name: name, Path: path}
	}

	res, err := d.runner.Execute(ctx, def)
	d.record(path, def, res, err)
	return res, err
}

// record stores the invocation when history is enabled. Failures are
// logged and never replace the runner's own outcome.
func (d *Dispatcher) record(path string, def catalog.Definition, res executor.Result, runErr error) {
	if d.recorder == nil {
		return
	}

	inv := &history.Invocation{
		Runner:     def.Name,
		ConfigPath: path,
		StartedAt:  res.Started,
		DurationMs: res.Duration.Milliseconds(),
		ExitCode:   res.ExitCode,
		Lines:      res.Lines,
	}
	if runErr != nil {
		inv.Error = runErr.Error()
	}
	if err := inv.SetArgv(def.Command); err != nil {
		d.logger.Warn("failed to record invocation", "runner", def.Name, "error", err)
		return
	}
	if err := d.recorder.Record(inv); err != nil {
		d.logger.Warn("failed to record invocation", "runner", def.Name, "error", err)
	}
}

// List loads the selected runner file and writes every definition, in
// file order, to stdout. JSON output is a single line followed by a newline.
func (d *Dispatcher) List(sel resolver.Selection, format ListFormat) error {
	cat, _, err := d.load(sel)
	if err != nil {
		return err
	}
	return Encode(d.stdout, cat, format)
}

// Encode writes the catalog as an array of {name, command} objects.
// JSON output leaves shell metacharacters such as & and > unescaped.
func Encode(w io.Writer, cat *catalog.Catalog, format ListFormat) error {
	defs := cat.Definitions()

	var buf bytes.Buffer
	var err error
	switch format {
	case ListJSON, "":
		format = ListJSON
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		err = enc.Encode(defs)
	case ListYAML:
		var out []byte
		out, err = yaml.Marshal(defs)
		buf.Write(out)
	default:
		err = fmt.Errorf("unsupported list format %q", format)
	}
	if err != nil {
		return &SerializationError{Format: format, Err: err}
	}

	if _, err := buf.WriteTo(w); err != nil {
		return &SerializationError{Format: format, Err: err}
	}
	return nil
}
