package operations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetrow/internal/config"
	"sheetrow/internal/operations"
	"sheetrow/internal/poller"
	"sheetrow/internal/records"
	"sheetrow/internal/service"
	"sheetrow/internal/taskstore"
	"sheetrow/internal/testutil"
)

type harness struct {
	compute *testutil.FakeCompute
	store   *taskstore.MemoryStore
	clock   *testutil.Clock
	orch    *operations.Orchestrator
}

func newHarness(t *testing.T, opts ...operations.Option) *harness {
	t.Helper()
	h := &harness{
		compute: testutil.NewFakeCompute(),
		store:   taskstore.NewMemoryStore(),
		clock:   testutil.NewClock(),
	}
	sched := poller.New(h.compute, h.store, poller.DefaultPolicy(),
		poller.WithClock(h.clock.Now, h.clock.Sleep))
	h.orch = operations.New(h.compute, sched, opts...)
	return h
}

func companyGrid() [][]any {
	return [][]any{
		{"Name", "Emp"},
		{"Apple", 150000},
		{"Acme", 500},
	}
}

const rankedPayload = `{"type":"table","data":[
	{"Name":"Apple","Emp":150000,"score":0.9},
	{"Name":"Acme","Emp":500,"score":0.2}
]}`

func TestRunRank(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(rankedPayload)

	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:     operations.Rank{Task: "rank by employee count"},
		Grid:   companyGrid(),
		Output: taskstore.Output{Backend: "sheets", Spreadsheet: "sheet-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, operations.StatusDone, res.Status)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, "rank", res.Operation)
	require.Len(t, res.Grid, 3)
	assert.Equal(t, []any{"Name", "Emp", "score"}, res.Grid[0])
	assert.Equal(t, []any{"Apple", float64(150000), 0.9}, res.Grid[1])
	assert.Equal(t, []any{"Acme", float64(500), 0.2}, res.Grid[2])

	require.Len(t, h.compute.Submitted, 1)
	sub := h.compute.Submitted[0]
	assert.Equal(t, "rank", sub.Operation)
	assert.Equal(t, "rank by employee count", sub.Instruction)
	input, ok := sub.Input.([]records.Record)
	require.True(t, ok)
	assert.Len(t, input, 2)

	// Terminal status clears the resumable slot.
	entry, err := h.store.Load()
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, 1, h.store.Saves)
	assert.Equal(t, 1, h.store.Clears)
}

func TestRunScreenPromotesReason(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(`{"type":"table","data":[
		{"Name":"Apple","passes":true,"research":{"reason":"large"}},
		{"Name":"Acme","passes":false,"research":"{\"reason\":\"small\"}"}
	]}`)

	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Screen{Task: "more than 1000 employees"},
		Grid: companyGrid(),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Name", "passes", "reason"}, res.Grid[0])
	assert.Equal(t, []any{"Apple", true, "large"}, res.Grid[1])
	assert.Equal(t, []any{"Acme", false, "small"}, res.Grid[2])
}

func TestRunDedupeKeepsSelected(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(`{"type":"table","data":[
		{"Name":"Apple","selected":true,"equivalence_class_id":"c1","equivalence_class_name":"Apple"},
		{"Name":"Apple Inc.","selected":false,"equivalence_class_id":"c1","equivalence_class_name":"Apple"},
		{"Name":"Acme","selected":"TRUE","equivalence_class_id":"c2","equivalence_class_name":"Acme"}
	]}`)

	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Dedupe{EquivalenceRelation: "same company"},
		Grid: [][]any{{"Name"}, {"Apple"}, {"Apple Inc."}, {"Acme"}},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Name"}, {"Apple"}, {"Acme"}}, res.Grid)
}

func TestRunScalarAndGroupPayloads(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(`{"type":"scalar","data":{"answer":"42"}}`)
	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Agent{Task: "answer"},
		Grid: companyGrid(),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"answer"}, {"42"}}, res.Grid)

	h.compute.DefaultResult = []byte(`{"type":"group","artifacts":[
		{"id":"a","data":{"Name":"Apple","answer":"Tim"}},
		{"id":"b","data":null},
		{"id":"c","data":{"Name":"Acme","answer":"Wile"}}
	]}`)
	res, err = h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Agent{Task: "who is the CEO"},
		Grid: companyGrid(),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Name", "answer"}, {"Apple", "Tim"}, {"Acme", "Wile"}}, res.Grid)
}

func TestRunTimesOutAndResumes(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultScript = []service.Status{service.StatusQueued, service.StatusRunning}

	out := taskstore.Output{Backend: "csv", Spreadsheet: "/tmp/out"}
	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:        operations.Rank{Task: "t"},
		Grid:      companyGrid(),
		SessionID: "sess-9",
		Output:    out,
	})
	require.NoError(t, err)
	assert.Equal(t, operations.StatusPending, res.Status)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Nil(t, res.Grid)

	var slept time.Duration
	for _, d := range h.clock.Sleeps {
		slept += d
	}
	assert.Equal(t, poller.DefaultBudget, slept)

	entry, err := h.store.Load()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "task-1", entry.TaskID)
	assert.Equal(t, "rank", entry.Operation)
	assert.Equal(t, "sess-9", entry.SessionID)
	assert.Equal(t, out, entry.Output)

	// The task finishes server-side; a later invocation picks it up.
	h.compute.AddTask("task-1", rankedPayload)
	res, err = h.orch.Resume(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, operations.StatusDone, res.Status)
	assert.Equal(t, "rank", res.Operation)
	assert.Equal(t, out, res.Output)
	assert.Len(t, res.Grid, 3)
	assert.Len(t, h.compute.Submitted, 1, "resume must not resubmit")

	entry, err = h.store.Load()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestResumeUsesPostProcessingOfStoredOperation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(taskstore.Entry{TaskID: "old-7", Operation: "dedupe"}))
	h.compute.AddTask("old-7", `[{"Name":"A","selected":true},{"Name":"B","selected":false}]`)

	res, err := h.orch.Resume(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Name"}, {"A"}}, res.Grid)
}

func TestResumeNothingStored(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Resume(context.Background(), "")
	assert.ErrorIs(t, err, poller.ErrNothingToResume)
}

func TestResumeUnknownTask(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Resume(context.Background(), "nope")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestRunTaskFailed(t *testing.T) {
	h := newHarness(t)
	h.compute.FailTask("task-1", "quota exceeded")

	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	var failed *operations.TaskFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "task-1", failed.TaskID)
	assert.Equal(t, "quota exceeded", failed.Detail)
	assert.Equal(t, "task task-1 failed: quota exceeded", err.Error())
	assert.Nil(t, res.Grid)

	entry, err := h.store.Load()
	require.NoError(t, err)
	assert.Nil(t, entry, "failed tasks are not resumable")
}

func TestRunEmptyResult(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(`{"type":"table","data":[]}`)

	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	assert.ErrorIs(t, err, records.ErrEmptyResult)
	assert.Equal(t, operations.StatusDone, res.Status)
	assert.Empty(t, res.Records)
}

func TestRunMalformedResultIsEmpty(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(`{"type":"hologram","data":1}`)

	_, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	assert.ErrorIs(t, err, records.ErrEmptyResult)
}

func TestRunWithoutCredential(t *testing.T) {
	orch := operations.New(nil, nil)
	_, err := orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	assert.ErrorIs(t, err, config.ErrNoCredential)

	_, err = orch.Resume(context.Background(), "")
	assert.ErrorIs(t, err, config.ErrNoCredential)
}

func TestRunValidatesBeforeSubmit(t *testing.T) {
	tests := []struct {
		name string
		req  operations.Request
		want error
	}{
		{
			name: "header only",
			req:  operations.Request{Op: operations.Rank{Task: "t"}, Grid: [][]any{{"Name"}}},
			want: records.ErrEmptySelection,
		},
		{
			name: "duplicate header",
			req:  operations.Request{Op: operations.Rank{Task: "t"}, Grid: [][]any{{"A", "A"}, {1, 2}}},
			want: records.ErrDuplicateHeader,
		},
		{
			name: "missing task",
			req:  operations.Request{Op: operations.Screen{}, Grid: companyGrid()},
			want: operations.ErrInvalidParams,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.orch.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, records.ErrValidation)
			assert.Empty(t, h.compute.Submitted)
			assert.Zero(t, h.store.Saves)
		})
	}
}

type byteCounter struct{}

func (byteCounter) Count(text string) int { return len(text) }

func TestRunTokenLimit(t *testing.T) {
	h := newHarness(t, operations.WithTokenLimit(byteCounter{}, 20))

	_, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "rank by employee count"},
		Grid: companyGrid(),
	})
	assert.ErrorIs(t, err, operations.ErrInputTooLarge)
	assert.ErrorIs(t, err, records.ErrValidation)
	assert.Empty(t, h.compute.Submitted)

	h = newHarness(t, operations.WithTokenLimit(byteCounter{}, 10_000))
	h.compute.DefaultResult = []byte(rankedPayload)
	_, err = h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "rank by employee count"},
		Grid: companyGrid(),
	})
	assert.NoError(t, err)
}

func TestRunSessionID(t *testing.T) {
	h := newHarness(t)
	h.compute.DefaultResult = []byte(rankedPayload)
	h.compute.SessionID = "sess-new"

	res, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	require.NoError(t, err)
	assert.Equal(t, "", h.compute.Submitted[0].SessionID)
	assert.Equal(t, "sess-new", res.SessionID)

	res, err = h.orch.Run(context.Background(), operations.Request{
		Op:        operations.Rank{Task: "t"},
		Grid:      companyGrid(),
		SessionID: "sess-mine",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-mine", h.compute.Submitted[1].SessionID)
	assert.Equal(t, "sess-mine", res.SessionID)
}

func TestRunSubmitError(t *testing.T) {
	h := newHarness(t)
	h.compute.SubmitErr = &service.AuthError{StatusCode: 401, Message: "invalid API key"}

	_, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	assert.ErrorIs(t, err, service.ErrAuth)
	assert.Contains(t, err.Error(), "invalid API key")
	assert.Zero(t, h.store.Saves)
}

func TestRunResultFetchError(t *testing.T) {
	h := newHarness(t)
	h.compute.ResultErr = &service.APIError{StatusCode: 500, Message: "boom"}

	_, err := h.orch.Run(context.Background(), operations.Request{
		Op:   operations.Rank{Task: "t"},
		Grid: companyGrid(),
	})
	var apiErr *service.APIError
	assert.True(t, errors.As(err, &apiErr))
}
