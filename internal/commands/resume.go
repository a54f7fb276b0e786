package commands

import (
	"context"
	"flag"
	"io"

	"sheetrow/internal/config"
	"sheetrow/internal/output"
	"sheetrow/internal/service"
)

func init() {
	Register(&ResumeCmd{})
}

// ResumeCmd implements the resume command.
type ResumeCmd struct {
	result resultFlags
	taskID string
}

func (c *ResumeCmd) Name() string      { return "resume" }
func (c *ResumeCmd) Aliases() []string { return nil }
func (c *ResumeCmd) Synopsis() string  { return "Keep waiting for a task that outlived its poll budget" }
func (c *ResumeCmd) Usage() string {
	return "sheetrow resume [--task-id <id>] [--print] [--format table|csv] [--budget <duration>]"
}
func (c *ResumeCmd) NeedsAuth() bool { return true }

func (c *ResumeCmd) RegisterFlags(fs *flag.FlagSet) {
	c.result.register(fs)
	fs.StringVar(&c.taskID, "task-id", "", "")
}

func (c *ResumeCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	if svc.Compute == nil {
		return report(errOut, config.ErrNoCredential)
	}
	taskID := c.taskID
	if taskID == "" && len(args) > 0 {
		taskID = args[0]
	}
	format, err := output.ParseFormat(c.result.format)
	if err != nil {
		return report(errOut, usagef("%v", err))
	}
	orch, err := newOrchestrator(cfg, svc, c.result.budget)
	if err != nil {
		return report(errOut, err)
	}

	res, err := orch.Resume(ctx, taskID)
	return deliver(ctx, cfg, svc, res, err, &c.result, format, out, errOut)
}
