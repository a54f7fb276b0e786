// Package poller drives a submitted task to a terminal status with bounded,
// exponentially backed-off polling.
//
// A run moves Submitted -> Polling -> {Completed, Failed, TimedOut}. The task
// id is persisted as soon as polling starts and cleared only on Completed or
// Failed; TimedOut leaves it stored so a later invocation can resume.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sheetrow/internal/service"
	"sheetrow/internal/taskstore"
)

// State is a step of the polling state machine.
type State int

const (
	StateSubmitted State = iota
	StatePolling
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNothingToResume is returned by Resume when no task id is given or stored.
var ErrNothingToResume = errors.New("no pending task to resume")

// maxPollErrors is how many consecutive failed status calls end the run.
const maxPollErrors = 3

// StatusChecker is the part of service.Compute the scheduler needs.
type StatusChecker interface {
	Status(ctx context.Context, taskID string) (service.Task, error)
}

// Outcome is the result of one scheduler invocation.
type Outcome struct {
	State        State
	TaskID       string
	Operation    string // as reported by the service, if any
	ResultHandle string // set when Completed
	ErrorDetail  string // set when Failed
	Polls        int
	Elapsed      time.Duration
}

// Scheduler polls one task at a time.
type Scheduler struct {
	tasks  StatusChecker
	store  taskstore.Store
	policy Policy
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock replaces the wall clock and the sleep function, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// New creates a Scheduler.
func New(tasks StatusChecker, store taskstore.Store, policy Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  tasks,
		store:  store,
		policy: policy,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the scheduler's polling policy.
func (s *Scheduler) Policy() Policy { return s.policy }

// Run polls entry.TaskID until it completes, fails, or the budget runs out.
// Every call starts from the initial interval with a fresh budget. Time spent
// waiting never exceeds the budget; the last poll happens when it runs out.
func (s *Scheduler) Run(ctx context.Context, entry taskstore.Entry) (Outcome, error) {
	out := Outcome{State: StateSubmitted, TaskID: entry.TaskID}
	if err := s.policy.Validate(); err != nil {
		return out, err
	}
	if err := s.store.Save(entry); err != nil {
		return out, fmt.Errorf("persist task %s: %w", entry.TaskID, err)
	}
	out.State = StatePolling

	log := s.logger.With("task_id", entry.TaskID)
	start := s.now()
	interval := s.policy.InitialInterval
	failures := 0

	for {
		// The last wait is cut short so the final poll lands on the budget.
		wait := min(interval, s.policy.Budget-s.now().Sub(start))
		if err := s.sleep(ctx, wait); err != nil {
			out.Elapsed = s.now().Sub(start)
			return out, err
		}

		task, err := s.tasks.Status(ctx, entry.TaskID)
		out.Polls++
		out.Elapsed = s.now().Sub(start)

		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, service.ErrAuth), errors.Is(err, service.ErrNotFound),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return out, err
		default:
			failures++
			log.Warn("status check failed", "error", err, "attempt", failures)
			if failures >= maxPollErrors {
				return out, fmt.Errorf("check status of task %s: %w", entry.TaskID, err)
			}
		}

		if err == nil {
			if task.Operation != "" {
				out.Operation = task.Operation
			}
			switch task.Status {
			case service.StatusCompleted:
				out.State = StateCompleted
				out.ResultHandle = task.ResultHandle
				log.Debug("task completed", "polls", out.Polls, "elapsed", out.Elapsed)
				return out, s.acknowledge(entry.TaskID)
			case service.StatusFailed:
				out.State = StateFailed
				out.ErrorDetail = task.ErrorDetail
				log.Debug("task failed", "polls", out.Polls, "detail", task.ErrorDetail)
				return out, s.acknowledge(entry.TaskID)
			}
			log.Debug("task pending", "status", string(task.Status), "waited", wait)
		}

		if out.Elapsed >= s.policy.Budget {
			out.State = StateTimedOut
			log.Info("poll budget exhausted, task left resumable", "elapsed", out.Elapsed)
			return out, nil
		}
		interval = s.policy.Next(interval)
	}
}

// acknowledge clears the store once a terminal status has been observed.
func (s *Scheduler) acknowledge(taskID string) error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clear task %s: %w", taskID, err)
	}
	return nil
}

// Resume re-enters polling for taskID, or for the stored task when taskID is
// empty. Metadata of the stored entry is kept when it names the same task.
// The entry that was polled is returned alongside the outcome.
func (s *Scheduler) Resume(ctx context.Context, taskID string) (Outcome, taskstore.Entry, error) {
	stored, err := s.store.Load()
	if err != nil {
		return Outcome{}, taskstore.Entry{}, err
	}

	var entry taskstore.Entry
	switch {
	case taskID == "" && stored == nil:
		return Outcome{}, taskstore.Entry{}, ErrNothingToResume
	case taskID == "":
		entry = *stored
	case stored != nil && stored.TaskID == taskID:
		entry = *stored
	default:
		entry = taskstore.Entry{TaskID: taskID}
	}

	out, err := s.Run(ctx, entry)
	return out, entry, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
