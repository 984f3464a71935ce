package authtypes

import (
	"errors"
	"fmt"
)

var (
	ErrNoAccounts  = errors.New("account list is empty")
	ErrRunBusy     = errors.New("a run is already in progress")
	ErrRunNotFound = errors.New("run not found")
)

// ConfigError is missing or malformed input. It is raised before any
// browser interaction.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AttemptError is a failure inside one account's attempt. It never leaves
// the session boundary except as a failed outcome.
type AttemptError struct {
	AccountID string
	Step      string
	Err       error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt for %s failed at %s: %v", e.AccountID, e.Step, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// FatalError aborts the remaining run.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("run aborted during %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFatal reports whether err is, or wraps, a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
