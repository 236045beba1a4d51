package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"safenet/internal/xexec"
	"safenet/pkg/logging"
)

const (
	DefaultControlExe            = "wireguard.exe"
	DefaultQueryExe              = "sc.exe"
	DefaultServicePrefix         = "WireGuardTunnel$"
	DefaultConfigDir             = "data"
	DefaultCleanupTimeout        = 30 * time.Second
	DefaultFailedConfigRetention = time.Hour

	configExt = ".conf"
)

// Config is the Supervisor's configuration. It carries no secrets.
type Config struct {
	// ControlExe installs and uninstalls tunnel services.
	ControlExe string
	// QueryExe reports service state ("sc.exe query <id>").
	QueryExe string
	// ServicePrefix is prepended to the tunnel name to form the service id.
	ServicePrefix string
	// ConfigDir holds rendered configs while their tunnel is installed.
	ConfigDir string
	// FailedConfigRetention is how long Prune keeps a config whose tunnel is
	// absent. Zero disables pruning.
	FailedConfigRetention time.Duration
	// CleanupTimeout bounds uninstall and rollback work that runs detached
	// from the caller's context.
	CleanupTimeout time.Duration

	Runner  xexec.Runner
	Logger  logging.Logger
	Metrics *Metrics
}

// DefaultConfig returns the Windows service layout.
func DefaultConfig() Config {
	return Config{
		ControlExe:            DefaultControlExe,
		QueryExe:              DefaultQueryExe,
		ServicePrefix:         DefaultServicePrefix,
		ConfigDir:             DefaultConfigDir,
		FailedConfigRetention: DefaultFailedConfigRetention,
		CleanupTimeout:        DefaultCleanupTimeout,
	}
}

// Supervisor starts, stops and queries tunnel services. It keeps no tunnel
// state between calls; the service manager is queried every time.
// Operations on the same tunnel name run one at a time in arrival order.
type Supervisor struct {
	cfg     Config
	runner  xexec.Runner
	logger  logging.Logger
	metrics *Metrics
	locks   *nameLocks
	now     func() time.Time
}

// New validates cfg and fills in defaults for optional fields.
func New(cfg Config) (*Supervisor, error) {
	if strings.TrimSpace(cfg.ControlExe) == "" {
		return nil, errors.New("tunnel: control executable is required")
	}
	if strings.TrimSpace(cfg.QueryExe) == "" {
		return nil, errors.New("tunnel: query executable is required")
	}
	if cfg.ServicePrefix == "" {
		cfg.ServicePrefix = DefaultServicePrefix
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = DefaultConfigDir
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.FailedConfigRetention < 0 {
		return nil, errors.New("tunnel: failed config retention must not be negative")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	if cfg.Runner == nil {
		cfg.Runner = xexec.New(xexec.WithLogger(cfg.Logger))
	}

	return &Supervisor{
		cfg:     cfg,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		locks:   newNameLocks(),
		now:     time.Now,
	}, nil
}

// ServiceID is the service manager identifier for a tunnel.
func (s *Supervisor) ServiceID(name string) string {
	return s.cfg.ServicePrefix + name
}

// ConfigPath is where the rendered config for name is written.
func (s *Supervisor) ConfigPath(name string) string {
	return filepath.Join(s.cfg.ConfigDir, name+configExt)
}

// ConfigDir returns the directory holding rendered configs.
func (s *Supervisor) ConfigDir() string {
	return s.cfg.ConfigDir
}

// Start renders spec to disk and installs it as tunnel service name. It
// returns once the install command has exited.
//
// Errors: *WriteError before any command runs, *ConfigurationError when the
// control executable is missing, *OperationalError when install exits
// non-zero (the config file is kept). If ctx is cancelled after the config
// has been written, the tunnel is rolled back before the context error is
// returned.
func (s *Supervisor) Start(ctx context.Context, spec InterfaceSpec, name string) (err error) {
	started := time.Now()
	defer func() { s.metrics.observe(opStart, started, err) }()

	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	log := s.logger.WithFields(logging.Fields{
		"tunnel": name,
		"peers":  len(spec.Peers),
	})

	path, err := s.writeConfig(name, spec)
	if err != nil {
		log.WithError(err).Error("Failed to write tunnel config")
		return err
	}
	log = log.WithField("config_path", path)

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.removeConfig(path, log)
		return fmt.Errorf("start %s cancelled before install: %w", name, ctxErr)
	}

	res, runErr := s.runner.Run(ctx, []string{s.cfg.ControlExe, "/installtunnelservice", path})
	switch {
	case runErr == nil && res.ExitCode == 0:
		log.Info("Tunnel service installed")
		return nil

	case xexec.IsNotFound(runErr):
		log.WithError(runErr).Error("Tunnel control executable not found")
		return &ConfigurationError{Executable: s.cfg.ControlExe, Err: runErr}

	case ctx.Err() != nil:
		log.WithError(ctx.Err()).Warn("Start cancelled during install, rolling back")
		s.rollback(ctx, name, log)
		return fmt.Errorf("start %s cancelled: %w", name, ctx.Err())
	}

	code, stderr := res.ExitCode, res.Stderr
	var exitErr *xexec.ExitError
	if errors.As(runErr, &exitErr) {
		code, stderr = exitErr.Code, exitErr.Stderr
	}
	log.WithFields(logging.Fields{
		"exit_code": code,
		"stderr":    strings.TrimSpace(stderr),
	}).Error("Tunnel install failed, config retained for inspection")
	return &OperationalError{Tunnel: name, ExitCode: code, Stderr: stderr, ConfigPath: path, Err: runErr}
}

// StopReport records what a best-effort Stop actually did.
type StopReport struct {
	Tunnel string `json:"tunnel" yaml:"tunnel"`
	// Uninstalled is true when the uninstall command exited zero.
	Uninstalled       bool `json:"uninstalled" yaml:"uninstalled"`
	UninstallExitCode int  `json:"uninstall_exit_code" yaml:"uninstall_exit_code"`
	ConfigRemoved     bool `json:"config_removed" yaml:"config_removed"`
	// Warnings lists swallowed failures.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type stopOptions struct {
	deleteConfig bool
}

// StopOption customises Stop.
type StopOption func(*stopOptions)

// KeepConfig leaves the rendered config on disk.
func KeepConfig() StopOption {
	return func(o *stopOptions) { o.deleteConfig = false }
}

// Stop uninstalls tunnel service name and removes its config file. It is
// idempotent: a tunnel that was never started, or is already stopped, stops
// successfully. Uninstall and deletion failures are logged and recorded in
// the report. The only errors are *ConfigurationError and a cancelled ctx
// while waiting for another operation on the same name; once Stop begins
// work it runs to completion on a detached context.
func (s *Supervisor) Stop(ctx context.Context, name string, opts ...StopOption) (report StopReport, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(opStop, started, err) }()

	o := stopOptions{deleteConfig: true}
	for _, opt := range opts {
		opt(&o)
	}

	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return StopReport{Tunnel: name}, err
	}
	defer release()

	return s.stopLocked(ctx, name, o)
}

func (s *Supervisor) stopLocked(ctx context.Context, name string, o stopOptions) (StopReport, error) {
	report := StopReport{Tunnel: name}
	log := s.logger.WithField("tunnel", name)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CleanupTimeout)
	defer cancel()

	res, runErr := s.runner.Run(runCtx, []string{s.cfg.ControlExe, "/uninstalltunnelservice", name})
	switch {
	case runErr == nil && res.ExitCode == 0:
		report.Uninstalled = true
		log.Info("Tunnel service uninstalled")

	case xexec.IsNotFound(runErr):
		log.WithError(runErr).Error("Tunnel control executable not found")
		return report, &ConfigurationError{Executable: s.cfg.ControlExe, Err: runErr}

	default:
		report.UninstallExitCode = res.ExitCode
		var exitErr *xexec.ExitError
		if errors.As(runErr, &exitErr) {
			report.UninstallExitCode = exitErr.Code
		}
		warning := fmt.Sprintf("uninstall exited with code %d", report.UninstallExitCode)
		if runErr != nil {
			warning = "uninstall: " + runErr.Error()
		}
		report.Warnings = append(report.Warnings, warning)
		log.WithFields(logging.Fields{
			"exit_code": report.UninstallExitCode,
			"stderr":    strings.TrimSpace(res.Stderr),
		}).Warn("Tunnel uninstall failed, treating tunnel as already stopped")
	}

	if o.deleteConfig {
		s.deleteConfig(name, &report, log)
	}
	return report, nil
}

func (s *Supervisor) deleteConfig(name string, report *StopReport, log *logrus.Entry) {
	if err := validateName(name); err != nil {
		report.Warnings = append(report.Warnings, "config not removed: "+err.Error())
		log.WithError(err).Warn("Skipping config removal for unusable tunnel name")
		return
	}
	path := s.ConfigPath(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		report.Warnings = append(report.Warnings, "config not removed: "+err.Error())
		log.WithError(err).WithField("config_path", path).Warn("Failed to remove tunnel config")
		return
	}
	report.ConfigRemoved = true
	log.WithField("config_path", path).Debug("Tunnel config removed")
}

// Status queries the service manager for tunnel name. A missing service,
// a failing query command and unparsable output are all reported as a
// Status, never as an error. The only error is ctx's when it is cancelled,
// in which case nothing has changed.
func (s *Supervisor) Status(ctx context.Context, name string) (st Status, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(opStatus, started, err) }()

	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return Absent, err
	}
	defer release()

	return s.statusLocked(ctx, name)
}

func (s *Supervisor) statusLocked(ctx context.Context, name string) (Status, error) {
	st, _, err := s.queryLocked(ctx, name)
	return st, err
}

// queryLocked reports the tunnel state. Query failures degrade to Absent;
// missing is true only when the service manager said the service does not exist.
func (s *Supervisor) queryLocked(ctx context.Context, name string) (st Status, missing bool, err error) {
	res, err := s.runner.Run(ctx, []string{s.cfg.QueryExe, "query", s.ServiceID(name)})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Absent, false, ctxErr
		}
		missing = serviceMissing(res)
		log := s.logger.WithFields(logging.Fields{"tunnel": name, "exit_code": res.ExitCode})
		switch {
		case xexec.IsNotFound(err):
			log.WithError(err).Warn("Service query executable not found, reporting tunnel as absent")
		case missing:
			log.Debug("Tunnel service is not installed")
		default:
			log.WithError(err).Debug("Service query failed, reporting tunnel as absent")
		}
		s.metrics.setState(name, Absent)
		return Absent, missing, nil
	}
	if res.ExitCode != 0 {
		s.metrics.setState(name, Absent)
		return Absent, serviceMissing(res), nil
	}

	st = ParseQuery(res.Stdout)
	s.metrics.setState(name, st)
	return st, st.State == StateAbsent && serviceMissing(res), nil
}

// serviceMissing recognises the service manager's "no such service" answer.
func serviceMissing(res xexec.Result) bool {
	if res.ExitCode == errServiceDoesNotExist {
		return true
	}
	out := strings.ToLower(res.Stdout + "\n" + res.Stderr)
	return strings.Contains(out, "failed 1060") || strings.Contains(out, "does not exist")
}

// StopAll stops every named tunnel concurrently, for shutdown paths. Reports
// are returned in the order of names. The first configuration error, if any,
// is returned after all stops have finished.
func (s *Supervisor) StopAll(ctx context.Context, names []string, opts ...StopOption) ([]StopReport, error) {
	reports := make([]StopReport, len(names))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			report, err := s.Stop(ctx, name, opts...)
			reports[i] = report
			return err
		})
	}
	return reports, g.Wait()
}

// rollback undoes a start interrupted by cancellation. It runs with the
// per-name lock still held.
func (s *Supervisor) rollback(ctx context.Context, name string, log *logrus.Entry) {
	report, err := s.stopLocked(ctx, name, stopOptions{deleteConfig: true})
	if err != nil {
		log.WithError(err).Error("Rollback of cancelled start failed")
		return
	}
	log.WithFields(logging.Fields{
		"uninstalled":    report.Uninstalled,
		"config_removed": report.ConfigRemoved,
	}).Info("Rolled back cancelled start")
}

func (s *Supervisor) writeConfig(name string, spec InterfaceSpec) (string, error) {
	if err := validateName(name); err != nil {
		return "", &WriteError{Path: name, Err: err}
	}
	dir := s.cfg.ConfigDir
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", &WriteError{Path: dir, Err: err}
	}

	text := Render(spec)
	path := s.ConfigPath(name)

	// Write to a temp file and rename so the install command never sees a
	// partially written config.
	tmp, err := os.CreateTemp(dir, name+configExt+".tmp-*")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", &WriteError{Path: path, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &WriteError{Path: path, Err: fmt.Errorf("resolve absolute path: %w", err)}
	}
	if _, err := os.Stat(abs); err != nil {
		return "", &WriteError{Path: abs, Err: fmt.Errorf("config missing after write: %w", err)}
	}

	s.logger.WithFields(logging.Fields{
		"tunnel":      name,
		"config_path": abs,
		"bytes":       len(text),
	}).Debug("Tunnel config written")
	return abs, nil
}

func (s *Supervisor) removeConfig(path string, log *logrus.Entry) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Failed to remove tunnel config")
	}
}

// validateName rejects names that would escape ConfigDir or produce a
// hidden or empty file name.
func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || name != filepath.Base(name):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	return nil
}
