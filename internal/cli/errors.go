package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/randalmurphal/tpm/internal/errors"
)

// PrintError prints an error with appropriate formatting.
// Tracker errors use the user-friendly format; partial failures list every
// failed record. Anything else prints as a simple message.
func PrintError(w io.Writer, err error, verbose bool) {
	var partial *errors.PartialFailure
	if stderrors.As(err, &partial) {
		fmt.Fprintf(w, "Error: %d record(s) failed, %d succeeded\n", len(partial.Failures), partial.Succeeded)
		for _, f := range partial.Failures {
			fmt.Fprintf(w, "  - %s\n", f)
		}
		return
	}
	if te := errors.AsTrackerError(err); te != nil {
		fmt.Fprintln(w, te.UserMessage())
		if verbose {
			fmt.Fprintf(w, "\nCode: %s\n", te.Code)
			if te.Cause != nil {
				fmt.Fprintf(w, "Cause: %v\n", te.Cause)
			}
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// ExitCode maps an error to a process exit status: 0 for nil, the error
// category's code for tracker errors, 5 for partial failures, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var partial *errors.PartialFailure
	if stderrors.As(err, &partial) {
		return 5
	}
	if te := errors.AsTrackerError(err); te != nil {
		return te.Category().ExitCode()
	}
	return 1
}
