package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"sheetrow/internal/config"
	"sheetrow/internal/exitcode"
	"sheetrow/internal/operations"
	"sheetrow/internal/poller"
	"sheetrow/internal/records"
	"sheetrow/internal/service"
)

// errNotLoggedIn is returned when a Google Sheets selection is used without a token.
var errNotLoggedIn = errors.New("not logged in to Google (run: sheetrow login)")

// usageError is a mistake in the command line itself.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

// exitCodeFor classifies err. It is the only place errors become exit codes.
func exitCodeFor(err error) int {
	var (
		usage  *usageError
		failed *operations.TaskFailedError
	)
	switch {
	case err == nil:
		return exitcode.Success
	case errors.Is(err, records.ErrEmptyResult):
		return exitcode.Success
	case errors.Is(err, config.ErrNoCredential),
		errors.Is(err, service.ErrAuth),
		errors.Is(err, errNotLoggedIn):
		return exitcode.AuthError
	case errors.As(err, &usage),
		errors.Is(err, records.ErrValidation),
		errors.Is(err, poller.ErrNothingToResume),
		errors.Is(err, service.ErrNotFound):
		return exitcode.UserError
	case errors.As(err, &failed):
		return exitcode.BackendError
	case errors.Is(err, context.Canceled):
		return exitcode.Interrupted
	default:
		return exitcode.BackendError
	}
}

// report prints err and returns its exit code.
func report(errOut io.Writer, err error) int {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		// Shown verbatim.
		fmt.Fprintf(errOut, "error: auth error: %s\n", authErr.Error())
		return exitcode.AuthError
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(errOut, "error: interrupted")
		return exitcode.Interrupted
	}
	fmt.Fprintf(errOut, "error: %s\n", err)
	return exitCodeFor(err)
}
