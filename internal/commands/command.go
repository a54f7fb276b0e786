// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"

	"sheetrow/internal/config"
	"sheetrow/internal/service"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command talks to the compute service
	// or a spreadsheet. Commands like help, version, key, login, logout
	// return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, settings, logger).
	// svc is nil if NeedsAuth() returns false. Within svc, Compute is nil
	// when no API key is configured and Sheets is nil when not logged in.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int
}
