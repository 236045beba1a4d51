package xexec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("executable not found")
	// ErrEmptyArgv is returned when Run is called without a program name.
	ErrEmptyArgv = errors.New("empty argument vector")
)

// NotFoundError reports that the executable could not be resolved or started.
// It is a configuration problem and retrying will not help.
type NotFoundError struct {
	Executable string
	Err        error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.Executable, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	name := "process"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", name, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", name, e.Code, msg)
}

// IsNotFound reports whether err is a missing-executable failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
