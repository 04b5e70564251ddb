package leaderboard

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the admin key is missing, wrong, or no
// admin key is configured.
var ErrUnauthorized = errors.New("unauthorized: provide the admin key as ?key=")

// ValidationError reports malformed input. It is the caller's fault and is
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps a failure of the score store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStore reports whether err is, or wraps, a *StoreError.
func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
