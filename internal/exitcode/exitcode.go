// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion, including a task that
	// finished without any result rows.
	Success = 0

	// UserError indicates a user error (bad args, invalid selection).
	UserError = 1

	// AuthError indicates a missing credential or a rejected one.
	AuthError = 2

	// BackendError indicates a backend/API/network error or a failed task.
	BackendError = 3

	// Pending indicates the poll budget ran out or polling was interrupted;
	// the task can be resumed.
	Pending = 4

	// Interrupted indicates a signal stopped the command before any task
	// was tracked, so there is nothing to resume.
	Interrupted = 130
)
