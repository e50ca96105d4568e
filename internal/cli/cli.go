// Package cli provides the mr command-line interface.
// It resolves a runner file from flags and either runs one runner or lists them all.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/mazerunner/internal/catalog"
	"github.com/clean-dependency-project/mazerunner/internal/dispatcher"
	"github.com/clean-dependency-project/mazerunner/internal/executor"
	"github.com/clean-dependency-project/mazerunner/internal/history"
	"github.com/clean-dependency-project/mazerunner/internal/resolver"
	"github.com/clean-dependency-project/mazerunner/internal/signature"
	"github.com/clean-dependency-project/mazerunner/internal/version"
)

// Sentinel errors
var (
	ErrRunnerNameRequired = errors.New("runner name is required")
	ErrHistoryDisabled    = errors.New("history is disabled: set --history-db or MR_HISTORY_DB")
)

// selectionFlags are shared by run and list. -d, -t and -r take precedence
// over -p in that order.
func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:    "path",
			Aliases: []string{"p"},
			Usage:   "path to the runner file (ignored when -d, -t or -r is set)",
		},
		&cli.BoolFlag{
			Name:    "dev",
			Aliases: []string{"d"},
			Usage:   "use " + resolver.DevFile,
		},
		&cli.BoolFlag{
			Name:    "test",
			Aliases: []string{"t"},
			Usage:   "use " + resolver.TestFile,
		},
		&cli.BoolFlag{
			Name:    "release",
			Aliases: []string{"r"},
			Usage:   "use " + resolver.ReleaseFile,
		},
	}
}

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:      "mr",
		Usage:     "Run named commands declared in a runner file",
		Version:   version.Current,
		Compiled:  time.Now(),
		UsageText: "mr run <name> [-p PATH | -d | -t | -r]\nmr list [-p PATH | -d | -t | -r]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "log level for structured output on stderr (debug, info, warn, error)",
				EnvVars: []string{"MR_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "log format (json, text)",
				EnvVars: []string{"MR_LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "history-db",
				Usage:   "SQLite database recording every run; history is off when unset",
				EnvVars: []string{"MR_HISTORY_DB"},
			},
			&cli.PathFlag{
				Name:    "keyring",
				Usage:   "armored public keys; when set, runner files must carry a valid detached signature (<file>.asc)",
				EnvVars: []string{"MR_KEYRING"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run a specific command",
				ArgsUsage: "<name> [-p PATH | -d | -t | -r]",
				Flags:     selectionFlags(),
				Action:    runCommand,
			},
			{
				Name:  "list",
				Usage: "List all the runners in JSON format",
				Flags: append(selectionFlags(), &cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Value:   string(dispatcher.ListJSON),
					Usage:   "output format (json, yaml)",
				}),
				Action: listCommand,
			},
			{
				Name:  "history",
				Usage: "Show recorded runs, newest first, as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "runner",
						Usage: "only show runs of this runner",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: history.DefaultLimit,
						Usage: "maximum number of runs to show",
					},
				},
				Action: historyCommand,
			},
		},
	}
}

// selectionFromContext builds the resolver input from the subcommand flags.
func selectionFromContext(c *cli.Context) resolver.Selection {
	return resolver.Selection{
		Dev:     c.Bool("dev"),
		Test:    c.Bool("test"),
		Release: c.Bool("release"),
		Path:    c.Path("path"),
	}
}

// applyTrailingFlags folds selector flags that follow the runner name into
// sel. urfave/cli stops parsing flags at the first positional argument, so
// `mr run build -d` leaves "-d" in the argument list.
func applyTrailingFlags(sel resolver.Selection, args []string) (resolver.Selection, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if i+1 < len(args) {
				return sel, fmt.Errorf("expected exactly one runner name, got extra argument %q", args[i+1])
			}
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			return sel, fmt.Errorf("expected exactly one runner name, got extra argument %q", arg)
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch name {
		case "p", "path":
			if !hasValue {
				if i+1 >= len(args) {
					return sel, fmt.Errorf("flag needs an argument: %s", arg)
				}
				i++
				value = args[i]
			}
			sel.Path = value
		case "d", "dev", "t", "test", "r", "release":
			set := true
			if hasValue {
				b, err := strconv.ParseBool(value)
				if err != nil {
					return sel, fmt.Errorf("invalid value %q for flag %s: %w", value, name, err)
				}
				set = b
			}
			switch name[0] {
			case 'd':
				sel.Dev = set
			case 't':
				sel.Test = set
			case 'r':
				sel.Release = set
			}
		default:
			return sel, fmt.Errorf("flag provided but not defined: %s", arg)
		}
	}
	return sel, nil
}

// newDispatcher wires the loader, executor and optional history store.
// The returned cleanup function must be called once the dispatcher is done.
func newDispatcher(c *cli.Context, withHistory bool) (*dispatcher.Dispatcher, func(), error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, nil, err
	}

	loader := &catalog.Loader{}
	if keyring := c.Path("keyring"); keyring != "" {
		verifier, err := signature.LoadVerifier(keyring)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load keyring: %w", err)
		}
		logger.Debug("runner file signatures required", "keyring", keyring, "keys", verifier.Fingerprints())
		loader.Verifier = verifier
	}

	exe := executor.New(c.App.Writer, logger)
	exe.Stderr = c.App.ErrWriter
	exe.Stdin = c.App.Reader

	d := dispatcher.New(loader, exe, c.App.Writer, logger)
	cleanup := func() {}

	if withHistory {
		if path := c.Path("history-db"); path != "" {
			store, err := openHistory(path)
			if err != nil {
				return nil, nil, err
			}
			d.SetRecorder(store)
			cleanup = func() {
				if err := store.Close(); err != nil {
					logger.Warn("failed to close history database", "error", err)
				}
			}
		}
	}
	return d, cleanup, nil
}

// runCommand implements `mr run <name>`.
func runCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return ErrRunnerNameRequired
	}
	name := c.Args().First()
	sel, err := applyTrailingFlags(selectionFromContext(c), c.Args().Tail())
	if err != nil {
		return err
	}

	d, cleanup, err := newDispatcher(c, true)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = d.Run(c.Context, name, sel)
	return err
}

// listCommand implements `mr list`.
func listCommand(c *cli.Context) error {
	d, cleanup, err := newDispatcher(c, false)
	if err != nil {
		return err
	}
	defer cleanup()

	return d.List(selectionFromContext(c), dispatcher.ListFormat(c.String("output")))
}

// openHistory opens the invocation store at path.
func openHistory(path string) (history.Store, error) {
	db, err := history.Open(history.Config{DatabasePath: path, LogLevel: "silent"})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// historyCommand implements `mr history`.
func historyCommand(c *cli.Context) error {
	path := c.Path("history-db")
	if path == "" {
		return ErrHistoryDisabled
	}

	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	store, err := openHistory(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return writeHistory(c.App.Writer, store, c.String("runner"), c.Int("limit"), logger)
}

// writeHistory prints the newest invocations, optionally of one runner, as
// a JSON array.
func writeHistory(w io.Writer, store history.Store, runner string, limit int, logger *slog.Logger) error {
	var invocations []*history.Invocation
	var err error
	if runner != "" {
		invocations, err = store.ListByRunner(runner, limit)
	} else {
		invocations, err = store.ListRecent(limit)
	}
	if err != nil {
		return err
	}
	if invocations == nil {
		invocations = []*history.Invocation{}
	}

	if total, err := store.Count(); err == nil {
		logger.Debug("read history", "runner", runner, "shown", len(invocations), "total", total)
	} else {
		logger.Warn("failed to count history", "error", err)
	}

	out, err := json.Marshal(invocations)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
