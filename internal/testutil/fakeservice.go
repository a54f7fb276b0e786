// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sheetrow/internal/service"
)

// FakeCompute is an in-memory implementation of service.Compute for testing.
// Each submitted task walks through its scripted statuses, one per Status
// call; the last status repeats.
type FakeCompute struct {
	mu       sync.Mutex
	next     int
	scripts  map[string][]service.Status
	calls    map[string]int
	results  map[string]json.RawMessage
	failures map[string]string

	// Submitted records every request in order.
	Submitted []service.SubmitRequest

	// DefaultScript is the status sequence given to tasks without their own script.
	DefaultScript []service.Status

	// DefaultResult is returned for tasks without their own result.
	DefaultResult json.RawMessage

	// SessionID is echoed on submit when the request has none.
	SessionID string

	// Error injection for testing
	SubmitErr error
	StatusErr error
	ResultErr error
}

// NewFakeCompute creates a FakeCompute whose tasks complete on the first poll.
func NewFakeCompute() *FakeCompute {
	return &FakeCompute{
		scripts:       make(map[string][]service.Status),
		calls:         make(map[string]int),
		results:       make(map[string]json.RawMessage),
		failures:      make(map[string]string),
		DefaultScript: []service.Status{service.StatusCompleted},
		DefaultResult: json.RawMessage(`[]`),
	}
}

// AddTask registers a task that exists on the service, e.g. one left over
// from an earlier invocation.
func (f *FakeCompute) AddTask(id string, result string, script ...service.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(script) == 0 {
		script = []service.Status{service.StatusCompleted}
	}
	f.scripts[id] = script
	f.results[id] = json.RawMessage(result)
}

// FailTask makes id report failed with detail.
func (f *FakeCompute) FailTask(id, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = []service.Status{service.StatusFailed}
	f.failures[id] = detail
}

// Polls returns how many times the status of id was checked.
func (f *FakeCompute) Polls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// Submit implements service.Compute. Task ids are "task-1", "task-2", ...
func (f *FakeCompute) Submit(ctx context.Context, req service.SubmitRequest) (service.SubmitResponse, error) {
	if f.SubmitErr != nil {
		return service.SubmitResponse{}, f.SubmitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	id := fmt.Sprintf("task-%d", f.next)
	f.Submitted = append(f.Submitted, req)
	if _, ok := f.scripts[id]; !ok {
		f.scripts[id] = f.DefaultScript
	}
	if _, ok := f.results[id]; !ok {
		f.results[id] = f.DefaultResult
	}
	session := req.SessionID
	if session == "" {
		session = f.SessionID
	}
	return service.SubmitResponse{TaskID: id, SessionID: session}, nil
}

// Status implements service.Compute.
func (f *FakeCompute) Status(ctx context.Context, taskID string) (service.Task, error) {
	if f.StatusErr != nil {
		return service.Task{}, f.StatusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	script, ok := f.scripts[taskID]
	if !ok {
		return service.Task{}, fmt.Errorf("task %s: %w", taskID, service.ErrNotFound)
	}
	i := min(f.calls[taskID], len(script)-1)
	f.calls[taskID]++

	t := service.Task{ID: taskID, Status: script[i]}
	switch t.Status {
	case service.StatusCompleted:
		t.ResultHandle = "artifact-" + taskID
	case service.StatusFailed:
		t.ErrorDetail = f.failures[taskID]
	}
	return t, nil
}

// Result implements service.Compute.
func (f *FakeCompute) Result(ctx context.Context, taskID, handle string) (json.RawMessage, error) {
	if f.ResultErr != nil {
		return nil, f.ResultErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.results[taskID]
	if !ok {
		return nil, fmt.Errorf("result of %s: %w", taskID, service.ErrNotFound)
	}
	return raw, nil
}

// FakeSheets is an in-memory implementation of service.Sheets for testing.
type FakeSheets struct {
	mu     sync.Mutex
	grids  map[string][][]any
	titles map[string][]string

	// Written holds every written grid by spreadsheet and sheet name.
	Written map[string]map[string][][]any

	// Error injection for testing
	ReadErr  error
	WriteErr error
}

// NewFakeSheets creates an empty FakeSheets.
func NewFakeSheets() *FakeSheets {
	return &FakeSheets{
		grids:   make(map[string][][]any),
		titles:  make(map[string][]string),
		Written: make(map[string]map[string][][]any),
	}
}

// SetSelection stores the grid returned for ref.
func (f *FakeSheets) SetSelection(ref service.SheetRef, grid [][]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grids[ref.String()] = grid
}

// AddSheet marks name as an existing sheet of spreadsheet.
func (f *FakeSheets) AddSheet(spreadsheet, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles[spreadsheet] = append(f.titles[spreadsheet], name)
}

// ReadSelection implements service.Sheets.
func (f *FakeSheets) ReadSelection(ctx context.Context, ref service.SheetRef) ([][]any, error) {
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	grid, ok := f.grids[ref.String()]
	if !ok {
		return nil, fmt.Errorf("selection %s: %w", ref, service.ErrNotFound)
	}
	return grid, nil
}

// WriteSheet implements service.Sheets. Taken names get " (2)", " (3)", ...
func (f *FakeSheets) WriteSheet(ctx context.Context, ref service.SheetRef, name string, grid [][]any) (string, error) {
	if f.WriteErr != nil {
		return "", f.WriteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	taken := make(map[string]bool)
	for _, t := range f.titles[ref.Spreadsheet] {
		taken[t] = true
	}
	title := name
	for n := 2; taken[title]; n++ {
		title = fmt.Sprintf("%s (%d)", name, n)
	}
	f.titles[ref.Spreadsheet] = append(f.titles[ref.Spreadsheet], title)
	if f.Written[ref.Spreadsheet] == nil {
		f.Written[ref.Spreadsheet] = make(map[string][][]any)
	}
	f.Written[ref.Spreadsheet][title] = grid
	return title, nil
}

// Clock is a fake clock that advances only when something sleeps on it.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps []time.Duration
}

// NewClock returns a Clock set to a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d unless ctx is done.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps = append(c.Sleeps, d)
	c.now = c.now.Add(d)
	return nil
}
