package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"sheetrow/internal/config"
	"sheetrow/internal/poller"
	"sheetrow/internal/records"
	"sheetrow/internal/result"
	"sheetrow/internal/service"
	"sheetrow/internal/taskstore"
)

// ErrInputTooLarge means the request would exceed the configured token budget.
var ErrInputTooLarge = fmt.Errorf("%w: input too large", records.ErrValidation)

// TaskFailedError is returned when the service reports the task as failed.
// Failures are final: the task is no longer tracked for resumption.
type TaskFailedError struct {
	TaskID string
	Detail string
}

func (e *TaskFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("task %s failed", e.TaskID)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Detail)
}

// Status says whether a Result holds output or is still pending.
type Status int

const (
	StatusDone Status = iota
	StatusPending
)

// Result is what Run and Resume hand back to the caller.
type Result struct {
	Status    Status
	TaskID    string
	SessionID string
	Operation string
	Output    taskstore.Output

	// Records and Grid are set once the task completed with data.
	Records []records.Record
	Grid    [][]any
}

// Request is one operation invocation.
type Request struct {
	Op        Operation
	Grid      [][]any // the selection, read fresh for this call
	SessionID string
	Output    taskstore.Output
}

// Orchestrator composes conversion, submission, polling, normalization and
// output layout. It is the only place that knows about operation kinds.
type Orchestrator struct {
	compute   service.Compute
	scheduler *poller.Scheduler
	logger    *slog.Logger
	tokens    TokenCounter
	maxTokens int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTokenLimit rejects requests whose encoded input exceeds limit tokens as
// counted by c. A zero limit disables the check.
func WithTokenLimit(c TokenCounter, limit int) Option {
	return func(o *Orchestrator) {
		o.tokens = c
		o.maxTokens = limit
	}
}

// New creates an Orchestrator. compute may be nil when no credential is
// configured; every call then fails with config.ErrNoCredential.
func New(compute service.Compute, scheduler *poller.Scheduler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		compute:   compute,
		scheduler: scheduler,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run converts the selection, submits the operation and polls it.
// A task still running when the poll budget runs out yields a Pending result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if o.compute == nil {
		return Result{}, config.ErrNoCredential
	}
	kind := string(req.Op.Kind())

	input, err := records.FromGrid(req.Grid)
	if err != nil {
		return Result{}, err
	}
	sreq, err := req.Op.Build(input)
	if err != nil {
		return Result{}, err
	}
	sreq.SessionID = req.SessionID
	if err := o.checkSize(sreq); err != nil {
		return Result{}, err
	}

	resp, err := o.compute.Submit(ctx, sreq)
	if err != nil {
		return Result{}, fmt.Errorf("submit %s: %w", kind, err)
	}
	o.logger.Info("task submitted", "operation", kind, "task_id", resp.TaskID, "rows", len(input))

	entry := taskstore.Entry{
		TaskID:    resp.TaskID,
		Operation: kind,
		SessionID: firstNonEmpty(resp.SessionID, req.SessionID),
		Output:    req.Output,
	}
	out, err := o.scheduler.Run(ctx, entry)
	return o.finish(ctx, entry, out, err)
}

// Resume continues polling taskID, or the stored task when taskID is empty.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (Result, error) {
	if o.compute == nil {
		return Result{}, config.ErrNoCredential
	}
	out, entry, err := o.scheduler.Resume(ctx, taskID)
	if errors.Is(err, poller.ErrNothingToResume) {
		return Result{}, err
	}
	return o.finish(ctx, entry, out, err)
}

func (o *Orchestrator) finish(ctx context.Context, entry taskstore.Entry, out poller.Outcome, runErr error) (Result, error) {
	res := Result{
		TaskID:    entry.TaskID,
		SessionID: entry.SessionID,
		Operation: firstNonEmpty(entry.Operation, out.Operation),
		Output:    entry.Output,
	}
	if runErr != nil {
		return res, fmt.Errorf("poll task %s: %w", entry.TaskID, runErr)
	}

	switch out.State {
	case poller.StateTimedOut:
		res.Status = StatusPending
		return res, nil
	case poller.StateFailed:
		return res, &TaskFailedError{TaskID: entry.TaskID, Detail: out.ErrorDetail}
	case poller.StateCompleted:
	default:
		return res, fmt.Errorf("task %s stopped in state %s", entry.TaskID, out.State)
	}

	raw, err := o.compute.Result(ctx, entry.TaskID, out.ResultHandle)
	if err != nil {
		return res, fmt.Errorf("fetch result of task %s: %w", entry.TaskID, err)
	}
	recs, err := result.Normalize(raw)
	if err != nil {
		o.logger.Warn("result payload not understood, treating as empty",
			"task_id", entry.TaskID, "error", err, "bytes", len(raw))
	}
	recs = PostProcess(res.Operation, recs)
	res.Records = recs

	grid, err := records.ToGrid(recs)
	if err != nil {
		return res, err
	}
	res.Grid = grid
	o.logger.Info("task finished", "task_id", entry.TaskID, "rows", len(recs), "polls", out.Polls)
	return res, nil
}

func (o *Orchestrator) checkSize(req service.SubmitRequest) error {
	if o.tokens == nil || o.maxTokens <= 0 {
		return nil
	}
	data, err := json.Marshal(req.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	n := o.tokens.Count(req.Instruction) + o.tokens.Count(string(data))
	o.logger.Debug("estimated request size", "tokens", n, "limit", o.maxTokens)
	if n > o.maxTokens {
		return fmt.Errorf("%w: about %d tokens, limit is %d", ErrInputTooLarge, n, o.maxTokens)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
