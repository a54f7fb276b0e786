// Package service defines the backend-agnostic interfaces the operations run against.
package service

import (
	"context"
	"encoding/json"

	"sheetrow/internal/taskstore"
)

// Compute is the remote compute service that runs batch operations.
// Commands never talk HTTP directly; everything goes through this interface.
type Compute interface {
	// Submit starts a task and returns its id (and session, if one was created).
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)

	// Status reports the current state of a task.
	Status(ctx context.Context, taskID string) (Task, error)

	// Result fetches the raw result payload of a completed task.
	// handle is the artifact reference from Status; it may be empty.
	Result(ctx context.Context, taskID, handle string) (json.RawMessage, error)
}

// Sheets reads selections from, and writes result grids to, a spreadsheet.
type Sheets interface {
	// ReadSelection returns the raw cell grid of ref. Row 0 is the header row.
	ReadSelection(ctx context.Context, ref SheetRef) ([][]any, error)

	// WriteSheet writes grid into a new sheet named after name, inside the
	// spreadsheet of ref. If name is taken a counter is appended.
	// Returns the name actually used.
	WriteSheet(ctx context.Context, ref SheetRef, name string, grid [][]any) (string, error)
}

// Services bundles the collaborators a command may use.
// Compute is nil when no API key is configured; Sheets is nil when the
// user is not logged in to Google.
type Services struct {
	Compute Compute
	Sheets  Sheets
	Files   Sheets
	State   taskstore.Store
}
