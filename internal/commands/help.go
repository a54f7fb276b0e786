package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"sheetrow/internal/config"
	"sheetrow/internal/exitcode"
	"sheetrow/internal/service"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "sheetrow help [<command>]" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		cmd, ok := DefaultRegistry.Find(args[0])
		if !ok {
			return report(errOut, usagef("unknown command: %s", args[0]))
		}
		fmt.Fprintf(out, "Usage:\n  %s\n\n%s\n", cmd.Usage(), cmd.Synopsis())
		if len(cmd.Aliases()) > 0 {
			fmt.Fprintf(out, "\nAliases: %s\n", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprint(out, flagsText)
		return exitcode.Success
	}

	fmt.Fprintln(out, "Usage:\n  sheetrow <command> [flags] [args]\n\nCommands:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, cmd := range DefaultRegistry.All() {
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.Name(), cmd.Synopsis())
	}
	tw.Flush()
	fmt.Fprint(out, flagsText)
	return exitcode.Success
}

const flagsText = `
Input flags (rank, screen, dedupe, merge, agent):
  --csv <file>             Read rows from a CSV file
  --sheet <id>             Read rows from a Google spreadsheet
  --range <A1>             Cell range within --sheet (default: first sheet)
  --out-dir <dir>          Where CSV results are written (default: next to --csv)
  --session <id>           Group the task under an existing session
  --print                  Print results instead of writing them back
  --format table|csv       Printed format (default: table on a terminal)
  --budget <duration>      How long to wait before leaving the task to resume

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
