package service

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state the service reports for a task.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is final. Unknown values are not terminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus normalizes a wire status value (case and surrounding space).
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Task is a remote unit of work.
type Task struct {
	ID           string
	Status       Status
	Operation    string // echoed by the service; may be empty
	ResultHandle string // artifact reference, set once completed
	ErrorDetail  string // set once failed
}

// SubmitRequest starts a task.
type SubmitRequest struct {
	Operation      string
	Instruction    string
	Input          any // usually []records.Record
	ResponseSchema any // JSON Schema describing the expected output fields
	SessionID      string
	Options        map[string]any
}

// SubmitResponse identifies the created task.
type SubmitResponse struct {
	TaskID    string
	SessionID string
}

// SheetRef addresses a selection. For Google Sheets, Spreadsheet is the
// spreadsheet id and Range an A1 range; for CSV files, Spreadsheet is the
// file path and Range is unused.
type SheetRef struct {
	Spreadsheet string
	Range       string
}

func (r SheetRef) String() string {
	if r.Range == "" {
		return r.Spreadsheet
	}
	return r.Spreadsheet + "!" + r.Range
}

var (
	// ErrAuth means the service rejected the credential.
	ErrAuth = errors.New("unauthorized")

	// ErrNotFound means the task or result does not exist.
	ErrNotFound = errors.New("not found")
)

// AuthError carries the service's rejection message verbatim.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unauthorized (HTTP %d)", e.StatusCode)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// APIError is any other non-success response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
