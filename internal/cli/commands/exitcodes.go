package commands

import (
	"github.com/go-faster/errors"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitConfig        = 2
	ExitAuth          = 3
	ExitLimitExceeded = 4
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	if e.err == nil {
		return "error"
	}
	return e.err.Error()
}

func (e *cliError) Unwrap() error { return e.err }

// WithCode attaches a process exit code to err. A nil err stays nil.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// ExitCode returns the exit code for err: ExitOK for nil, the code attached
// by WithCode, or ExitError.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ExitError
}
