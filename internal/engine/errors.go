package engine

import "fmt"

// ExecutionError reports a script whose execution attempt failed in the
// backend. Whether it halts the run depends on the continue-on-error
// policy for the script's type.
type ExecutionError struct {
	Script string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Script, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
