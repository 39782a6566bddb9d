package finder

import (
	"errors"
	"fmt"
)

// ErrDepthExceeded is wrapped by the SyntaxError returned when embedded
// selectors nest deeper than the configured limit.
var ErrDepthExceeded = errors.New("embedded selector depth exceeded")

// SyntaxError reports a selector the finder cannot compile: an unknown
// field, an operator a field does not support, or a malformed value.
type SyntaxError struct {
	Field string
	Msg   string
	Err   error
}

func (e *SyntaxError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("selector syntax error on %q: %s", e.Field, e.Msg)
	}
	return "selector syntax error: " + e.Msg
}

func (e *SyntaxError) Unwrap() error { return e.Err }

func syntaxErrorf(field, format string, args ...any) *SyntaxError {
	return &SyntaxError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ExecutionError reports a query the database rejected.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return "query failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }
