// Package executor spawns a runner's command as a child process and streams
// its standard output line by line while the process is still running.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/clean-dependency-project/mazerunner/internal/catalog"
)

// Sentinel errors
var (
	ErrNoExecutable = errors.New("command has no executable")
)

// SpawnError reports that the child process could not be started.
type SpawnError struct {
	Runner string
	Argv   []string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start runner %s (%s): %v", e.Runner, strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// StreamError reports a failure while relaying the child's output.
type StreamError struct {
	Runner string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("failed to stream output of runner %s: %v", e.Runner, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Result describes a finished child process. A non-zero ExitCode is
// reported here and never turned into an error.
type Result struct {
	Runner   string
	Argv     []string
	Pid      int
	ExitCode int
	Lines    int
	Started  time.Time
	Duration time.Duration
}

// Executor runs definitions. Child standard output is relayed line by line
// to Stdout; standard error and standard input are passed through.
type Executor struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	// Dir and Env default to the launcher's working directory and environment.
	Dir    string
	Env    []string
	logger *slog.Logger
}

// New creates an Executor wired to the launcher's standard streams, relaying
// child output to stdout.
func New(stdout io.Writer, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		Stdout: stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
		logger: logger,
	}
}

// Execute spawns def and blocks until the child exits. Each complete line
// the child writes to standard output is written to e.Stdout as soon as it
// is read, in order. Only spawn failures and output relay failures are
// returned as errors.
func (e *Executor) Execute(ctx context.Context, def catalog.Definition) (Result, error) {
	res := Result{Runner: def.Name, Argv: append([]string(nil), def.Command...)}
	if def.Executable() == "" {
		return res, &SpawnError{Runner: def.Name, Argv: res.Argv, Err: ErrNoExecutable}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, def.Executable(), def.Args()...)
	cmd.Dir = e.Dir
	cmd.Env = e.Env
	cmd.Stdin = e.Stdin
	cmd.Stderr = e.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, &SpawnError{Runner: def.Name, Argv: res.Argv, Err: err}
	}

	res.Started = time.Now()
	if err := cmd.Start(); err != nil {
		return res, &SpawnError{Runner: def.Name, Argv: res.Argv, Err: err}
	}
	res.Pid = cmd.Process.Pid
	e.logger.Info("process started", "runner", def.Name, "argv", res.Argv, "pid", res.Pid)

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	go readLines(stdout, lines, readErr, done)

	var writeErr error
	for line := range lines {
		if _, err := fmt.Fprintln(e.Stdout, line); err != nil {
			writeErr = err
			// Stop the child rather than leave it blocked on a full pipe.
			close(done)
			cancel()
			for range lines {
			}
			break
		}
		res.Lines++
	}
	rerr := <-readErr

	waitErr := cmd.Wait()
	res.Duration = time.Since(res.Started)
	res.ExitCode = exitCode(cmd, waitErr)

	if writeErr != nil {
		return res, &StreamError{Runner: def.Name, Err: writeErr}
	}
	if rerr != nil {
		return res, &StreamError{Runner: def.Name, Err: rerr}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, &StreamError{Runner: def.Name, Err: waitErr}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && waitErr != nil {
		return res, fmt.Errorf("runner %s interrupted: %w", def.Name, ctxErr)
	}

	level := slog.LevelInfo
	if res.ExitCode != 0 {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "process exited",
		"runner", def.Name,
		"pid", res.Pid,
		"exit_code", res.ExitCode,
		"lines", res.Lines,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// readLines splits r on '\n', strips the line terminator (including a
// preceding '\r') and sends each line. A final unterminated line is sent as
// well. lines is closed when r is exhausted or done is closed.
func readLines(r io.Reader, lines chan<- string, errc chan<- error, done <-chan struct{}) {
	defer close(lines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			select {
			case lines <- line:
			case <-done:
				errc <- nil
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			errc <- err
			return
		}
	}
}

// exitCode returns the child's exit status, or -1 when it did not exit
// normally.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
