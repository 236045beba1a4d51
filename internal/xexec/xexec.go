// Package xexec runs privileged control executables from an argument vector.
//
// There is deliberately no API that accepts a command line string: every
// argument reaches the child process as its own argv element, so names and
// paths containing shell metacharacters can never start a second command.
package xexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"safenet/pkg/logging"
)

// Result is the captured outcome of one process run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes argv[0] with argv[1:] as its arguments.
type Runner interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, argv []string) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, argv []string) (Result, error) { return f(ctx, argv) }

// Driver is the os/exec backed Runner. It holds no locks; concurrent calls
// run independent subprocesses.
type Driver struct {
	encoding  encoding.Encoding
	env       []string
	waitDelay time.Duration
	logger    logging.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithEncoding sets the decoder applied to captured stdout and stderr.
func WithEncoding(enc encoding.Encoding) Option {
	return func(d *Driver) {
		if enc != nil {
			d.encoding = enc
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(d *Driver) {
		if d.env == nil {
			d.env = os.Environ()
		}
		d.env = append(d.env, kv...)
	}
}

// WithWaitDelay bounds how long Run waits for output pipes after the process
// is killed on cancellation.
func WithWaitDelay(delay time.Duration) Option {
	return func(d *Driver) { d.waitDelay = delay }
}

// WithLogger enables debug logging of each invocation.
func WithLogger(logger logging.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New returns a Driver that decodes output as UTF-8.
func New(opts ...Option) *Driver {
	d := &Driver{
		encoding:  unicode.UTF8,
		waitDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run resolves argv[0] on PATH and runs it to completion.
//
// A missing executable yields *NotFoundError. A non-zero exit yields
// *ExitError together with the populated Result. Cancelling ctx kills the
// child and returns the context error.
func (d *Driver) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Result{ExitCode: -1}, ErrEmptyArgv
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Result{ExitCode: -1}, &NotFoundError{Executable: argv[0], Err: err}
	}

	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.WaitDelay = d.waitDelay
	if d.env != nil {
		cmd.Env = d.env
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Stdout:   d.decode(outBuf.Bytes()),
		Stderr:   d.decode(errBuf.Bytes()),
		Duration: time.Since(start),
	}

	if runErr == nil {
		d.trace(argv, res)
		return res, nil
	}

	res.ExitCode = -1
	if ctxErr := ctx.Err(); ctxErr != nil {
		d.trace(argv, res)
		return res, fmt.Errorf("%s interrupted: %w", filepath.Base(argv[0]), ctxErr)
	}

	var ee *exec.ExitError
	if errors.As(runErr, &ee) {
		res.ExitCode = ee.ExitCode()
		d.trace(argv, res)
		return res, &ExitError{Argv: append([]string(nil), argv...), Code: res.ExitCode, Stderr: res.Stderr}
	}

	// The file vanished or lost its exec bit between LookPath and start.
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) || errors.Is(runErr, os.ErrPermission) {
		return res, &NotFoundError{Executable: argv[0], Err: runErr}
	}
	return res, fmt.Errorf("exec %s: %w", filepath.Base(argv[0]), runErr)
}

func (d *Driver) trace(argv []string, res Result) {
	if d.logger == nil {
		return
	}
	d.logger.WithFields(logging.Fields{
		"argv":      argv,
		"exit_code": res.ExitCode,
		"duration":  res.Duration,
	}).Debug("Control command finished")
}
