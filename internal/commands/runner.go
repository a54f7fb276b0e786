package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sheetrow/internal/config"
	"sheetrow/internal/exitcode"
	"sheetrow/internal/operations"
	"sheetrow/internal/output"
	"sheetrow/internal/poller"
	"sheetrow/internal/records"
	"sheetrow/internal/service"
	"sheetrow/internal/taskstore"
)

// Output backends recorded with a task.
const (
	backendSheets = "sheets"
	backendCSV    = "csv"
)

// resultFlags control how a finished task is delivered.
type resultFlags struct {
	print  bool
	format string
	budget time.Duration
}

func (f *resultFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.print, "print", false, "")
	fs.StringVar(&f.format, "format", "", "")
	fs.DurationVar(&f.budget, "budget", 0, "")
}

// inputFlags select the rows an operation runs on.
type inputFlags struct {
	resultFlags
	csvPath string
	sheetID string
	rng     string
	outDir  string
	session string
}

func (f *inputFlags) register(fs *flag.FlagSet) {
	f.resultFlags.register(fs)
	fs.StringVar(&f.csvPath, "csv", "", "")
	fs.StringVar(&f.sheetID, "sheet", "", "")
	fs.StringVar(&f.rng, "range", "", "")
	fs.StringVar(&f.outDir, "out-dir", "", "")
	fs.StringVar(&f.session, "session", "", "")
}

// source resolves the selection reader, its address, and where results go.
func (f *inputFlags) source(svc *service.Services) (service.Sheets, service.SheetRef, taskstore.Output, error) {
	switch {
	case f.csvPath != "" && f.sheetID != "":
		return nil, service.SheetRef{}, taskstore.Output{}, usagef("use either --csv or --sheet, not both")
	case f.csvPath != "":
		if svc.Files == nil {
			return nil, service.SheetRef{}, taskstore.Output{}, errors.New("csv input is not available")
		}
		dir := f.outDir
		if dir == "" {
			dir = filepath.Dir(f.csvPath)
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		return svc.Files, service.SheetRef{Spreadsheet: f.csvPath},
			taskstore.Output{Backend: backendCSV, Spreadsheet: dir}, nil
	case f.sheetID != "":
		if svc.Sheets == nil {
			return nil, service.SheetRef{}, taskstore.Output{}, errNotLoggedIn
		}
		return svc.Sheets, service.SheetRef{Spreadsheet: f.sheetID, Range: f.rng},
			taskstore.Output{Backend: backendSheets, Spreadsheet: f.sheetID}, nil
	default:
		return nil, service.SheetRef{}, taskstore.Output{}, usagef("an input is required: --csv <file> or --sheet <spreadsheet-id> --range <A1>")
	}
}

// opBuilder produces the operation once the command line has been checked.
type opBuilder func(ctx context.Context, svc *service.Services) (operations.Operation, error)

func staticOp(op operations.Operation) opBuilder {
	return func(context.Context, *service.Services) (operations.Operation, error) { return op, nil }
}

// taskText returns the --task value, or the positional arguments joined.
func taskText(flagValue string, args []string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return strings.Join(args, " ")
}

// runOperation is the shared body of rank, screen, dedupe, merge and agent.
func runOperation(ctx context.Context, cfg *config.Config, svc *service.Services, f *inputFlags, build opBuilder, out, errOut io.Writer) int {
	if svc.Compute == nil {
		return report(errOut, config.ErrNoCredential)
	}
	format, err := output.ParseFormat(f.format)
	if err != nil {
		return report(errOut, usagef("%v", err))
	}
	src, ref, dest, err := f.source(svc)
	if err != nil {
		return report(errOut, err)
	}
	orch, err := newOrchestrator(cfg, svc, f.budget)
	if err != nil {
		return report(errOut, err)
	}

	// Building merge reads a second table, so both reads run together.
	var (
		op   operations.Operation
		grid [][]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		op, err = build(gctx, svc)
		return err
	})
	g.Go(func() error {
		var err error
		if grid, err = src.ReadSelection(gctx, ref); err != nil {
			return fmt.Errorf("read %s: %w", ref, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return notStarted(errOut)
		}
		return report(errOut, err)
	}
	cfg.Log().Debug("selection read", "source", ref.String(), "rows", len(grid))

	res, err := orch.Run(ctx, operations.Request{
		Op:        op,
		Grid:      grid,
		SessionID: f.session,
		Output:    dest,
	})
	return deliver(ctx, cfg, svc, res, err, &f.resultFlags, format, out, errOut)
}

// newOrchestrator wires the scheduler and orchestrator from cfg.
func newOrchestrator(cfg *config.Config, svc *service.Services, budget time.Duration) (*operations.Orchestrator, error) {
	policy := pollPolicy(cfg.Settings.Poll, budget)
	if err := policy.Validate(); err != nil {
		return nil, usagef("%v", err)
	}
	log := cfg.Log()
	sched := poller.New(svc.Compute, svc.State, policy,
		poller.WithLogger(log.With("component", "poller")))

	opts := []operations.Option{operations.WithLogger(log.With("component", "operations"))}
	if limit := cfg.Settings.MaxInputTokens; limit > 0 {
		counter, err := operations.NewTiktokenCounter(cfg.Encoding())
		if err != nil {
			return nil, err
		}
		opts = append(opts, operations.WithTokenLimit(counter, limit))
	}
	return operations.New(svc.Compute, sched, opts...), nil
}

// pollPolicy applies config.yaml overrides and the --budget flag to the defaults.
func pollPolicy(p config.Poll, budget time.Duration) poller.Policy {
	policy := poller.DefaultPolicy()
	if p.Initial > 0 {
		policy.InitialInterval = p.Initial
	}
	if p.Multiplier > 0 {
		policy.Multiplier = p.Multiplier
	}
	if p.Max > 0 {
		policy.MaxInterval = p.Max
	}
	if p.Budget > 0 {
		policy.Budget = p.Budget
	}
	if budget > 0 {
		policy.Budget = budget
	}
	return policy
}

// deliver turns an orchestrator outcome into output and an exit code.
func deliver(ctx context.Context, cfg *config.Config, svc *service.Services, res operations.Result, err error, f *resultFlags, format output.Format, out, errOut io.Writer) int {
	switch {
	case errors.Is(err, records.ErrEmptyResult):
		if !cfg.Quiet {
			output.FormatNoResults(out)
		}
		return exitcode.Success
	case errors.Is(err, context.Canceled) && res.TaskID != "":
		fmt.Fprintf(errOut, "interrupted; task %s is still tracked, run 'sheetrow resume' to continue\n", res.TaskID)
		return exitcode.Pending
	case errors.Is(err, context.Canceled):
		return notStarted(errOut)
	case err != nil:
		return report(errOut, err)
	}

	if res.Status == operations.StatusPending {
		output.FormatPending(errOut, res.TaskID)
		return exitcode.Pending
	}

	if f.print || res.Output.Backend == "" {
		if err := output.WriteGrid(out, res.Grid, format); err != nil {
			return report(errOut, err)
		}
		return exitcode.Success
	}

	sink, err := sinkFor(svc, res.Output.Backend)
	if err == nil {
		var target string
		target, err = sink.WriteSheet(ctx, service.SheetRef{Spreadsheet: res.Output.Spreadsheet},
			operations.OutputName(res.Operation), res.Grid)
		if err == nil {
			if !cfg.Quiet {
				output.FormatWritten(out, len(res.Grid)-1, target)
			}
			return exitcode.Success
		}
	}

	// The task is no longer resumable, so the rows go to stdout instead.
	code := report(errOut, fmt.Errorf("write results of task %s: %w", res.TaskID, err))
	if werr := output.WriteGrid(out, res.Grid, format); werr != nil {
		cfg.Log().Error("print results", "error", werr)
	}
	return code
}

// notStarted reports an interrupt that came before the service issued a task id.
func notStarted(errOut io.Writer) int {
	fmt.Fprintln(errOut, "interrupted before a task was started; nothing to resume")
	return exitcode.Interrupted
}

func sinkFor(svc *service.Services, backend string) (service.Sheets, error) {
	switch backend {
	case backendSheets:
		if svc.Sheets == nil {
			return nil, errNotLoggedIn
		}
		return svc.Sheets, nil
	case backendCSV:
		if svc.Files == nil {
			return nil, errors.New("csv output is not available")
		}
		return svc.Files, nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", backend)
	}
}
