package harden

import (
	"errors"
	"fmt"
)

// ErrNoContext is returned when Harden is called without an audit context.
var ErrNoContext = errors.New("harden requires an audit context")

// RemediationError is one fix that failed while applying.
type RemediationError struct {
	Module string
	Target string
	Err    error
}

func (e *RemediationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Module, e.Target, e.Err)
}

func (e *RemediationError) Unwrap() error { return e.Err }
