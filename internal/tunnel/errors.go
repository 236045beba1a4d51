package tunnel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrControlNotFound matches *ConfigurationError.
	ErrControlNotFound = errors.New("tunnel control executable not found")
	// ErrWrite matches *WriteError.
	ErrWrite = errors.New("tunnel config write failed")
	// ErrInstallFailed matches *OperationalError.
	ErrInstallFailed = errors.New("tunnel install failed")
	// ErrInvalidName is wrapped by WriteError when a tunnel name cannot be
	// used as a file name.
	ErrInvalidName = errors.New("invalid tunnel name")
)

// ConfigurationError means the control executable is not installed or not on
// PATH. It is not retryable.
type ConfigurationError struct {
	Executable string
	Err        error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Executable, e.Remediation())
}

// Remediation tells the operator how to fix the installation.
func (e *ConfigurationError) Remediation() string {
	return "install WireGuard for Windows from https://www.wireguard.com/install/ " +
		`and add its directory (usually C:\Program Files\WireGuard) to PATH`
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrControlNotFound }

// WriteError means the config directory or file could not be prepared. No
// control command has been run when it is returned.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write tunnel config %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// OperationalError means the install command ran and failed. The rendered
// config is left at ConfigPath for inspection.
type OperationalError struct {
	Tunnel     string
	ExitCode   int
	Stderr     string
	ConfigPath string
	Err        error
}

func (e *OperationalError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("install tunnel %s failed with exit code %d: %s", e.Tunnel, e.ExitCode, msg)
}

func (e *OperationalError) Unwrap() error { return e.Err }

func (e *OperationalError) Is(target error) bool { return target == ErrInstallFailed }
