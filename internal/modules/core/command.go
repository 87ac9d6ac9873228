package core

import (
	"errors"
	"fmt"
	"net/http"
)

type Unit struct{}

// CommandError carries the status a failed command maps to at the edge.
// The wrapped error stays reachable through errors.Is/As.
type CommandError struct {
	Err        error
	StatusCode int
	Reason     *string
}

type CommandErrorOption func(*CommandError)

func WithReason(reason string) CommandErrorOption {
	return func(e *CommandError) {
		e.Reason = &reason
	}
}

func NewCommandError(statusCode int, err error, opts ...CommandErrorOption) CommandError {
	e := CommandError{
		StatusCode: statusCode,
		Err:        err,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

func (e CommandError) Error() string {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if e.Reason != nil {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, *e.Reason, cause)
	}

	return fmt.Sprintf("%d: %s", e.StatusCode, cause)
}

func (e CommandError) Unwrap() error {
	return e.Err
}

// StatusCode returns the status of the first CommandError in the chain, 500 otherwise.
func StatusCode(err error) int {
	var commandErr CommandError
	if errors.As(err, &commandErr) {
		return commandErr.StatusCode
	}

	return http.StatusInternalServerError
}
