package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"sheetrow/internal/config"
	"sheetrow/internal/exitcode"
	"sheetrow/internal/service"
)

func init() {
	Register(&StatusCmd{})
}

// StatusCmd implements the status command.
type StatusCmd struct{}

func (c *StatusCmd) Name() string      { return "status" }
func (c *StatusCmd) Aliases() []string { return nil }
func (c *StatusCmd) Synopsis() string  { return "Show the task waiting to be resumed" }
func (c *StatusCmd) Usage() string     { return "sheetrow status [common flags]" }
func (c *StatusCmd) NeedsAuth() bool   { return true }

func (c *StatusCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *StatusCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	entry, err := svc.State.Load()
	if err != nil {
		return report(errOut, err)
	}
	if entry == nil {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no pending task")
		}
		return exitcode.Success
	}

	fmt.Fprintf(out, "task:      %s\n", entry.TaskID)
	if entry.Operation != "" {
		fmt.Fprintf(out, "operation: %s\n", entry.Operation)
	}
	if entry.SessionID != "" {
		fmt.Fprintf(out, "session:   %s\n", entry.SessionID)
	}
	if entry.Output.Backend != "" {
		fmt.Fprintf(out, "output:    %s %s\n", entry.Output.Backend, entry.Output.Spreadsheet)
	}
	if !entry.SavedAt.IsZero() {
		fmt.Fprintf(out, "started:   %s\n", entry.SavedAt.Local().Format(time.DateTime))
	}

	// The remote state is informational; without a key only the local slot is shown.
	if svc.Compute == nil {
		return exitcode.Success
	}
	task, err := svc.Compute.Status(ctx, entry.TaskID)
	if err != nil {
		return report(errOut, fmt.Errorf("check status of task %s: %w", entry.TaskID, err))
	}
	fmt.Fprintf(out, "status:    %s\n", task.Status)
	return exitcode.Success
}
