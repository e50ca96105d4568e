package cli

import (
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/mazerunner/internal/logger"
)

// newLogger creates the diagnostics logger from the global flags.
// Logs are sent to the app's error writer to keep stdout clean for
// runner output and listings.
func newLogger(c *cli.Context) (*slog.Logger, error) {
	return logger.New(c.String("log-level"), c.String("log-format"), c.App.ErrWriter)
}
