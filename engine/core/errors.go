package core

import (
	"errors"
	"fmt"
)

var ErrNotInitialized = errors.New("subsystem not initialized")

// FatalError marks a failure the allocator subsystem cannot recover from:
// setup-time heap exhaustion, exhausted size-class pools, broken alignment
// arithmetic or double setup. The host decides whether to terminate.
type FatalError struct {
	// Op is the failing operation, e.g. "setup" or "alloc".
	Op string
	// Subject names the pool or allocator involved.
	Subject string
	Err     error
}

func NewFatalError(op, subject string, err error) *FatalError {
	return &FatalError{Op: op, Subject: subject, Err: err}
}

func (e *FatalError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fatal: %s %s: %v", e.Op, e.Subject, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether any error in err's chain is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
