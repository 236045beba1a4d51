// Package cli implements safenetctl, the operator tool for driving tunnels
// directly on the host without the HTTP daemon.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"safenet/internal/tunnel"
	"safenet/internal/xexec"
	"safenet/pkg/logging"
)

type rootOptions struct {
	configDir     string
	controlExe    string
	queryExe      string
	servicePrefix string
	codePage      string
	output        string
	verbose       bool

	// runner replaces the process driver in tests.
	runner xexec.Runner
}

// NewRootCmd returns the root command for safenetctl.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "safenetctl",
		Short:         "SafeNet tunnel operator tool",
		Long:          "safenetctl renders, installs, stops and inspects SafeNet WireGuard tunnels on this host.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configDir, "config-dir", tunnel.DefaultConfigDir, "directory holding rendered tunnel configs")
	flags.StringVar(&opts.controlExe, "control-exe", tunnel.DefaultControlExe, "WireGuard control executable")
	flags.StringVar(&opts.queryExe, "query-exe", tunnel.DefaultQueryExe, "service query executable")
	flags.StringVar(&opts.servicePrefix, "service-prefix", tunnel.DefaultServicePrefix, "prefix of tunnel service names")
	flags.StringVar(&opts.codePage, "codepage", "utf-8", "code page of the query executable's output: utf-8|437|850|1252")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format: text|json|yaml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log executed commands")

	rootCmd.AddCommand(newTunnelCmd(opts))
	rootCmd.AddCommand(newRenderCmd(opts))
	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newVersionCmd(opts))

	return rootCmd
}

func (o *rootOptions) logger(w io.Writer) logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if o.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func (o *rootOptions) supervisor(cmd *cobra.Command, retention time.Duration) (*tunnel.Supervisor, error) {
	logger := o.logger(cmd.ErrOrStderr())

	runner := o.runner
	if runner == nil {
		enc, err := xexec.EncodingFor(o.codePage)
		if err != nil {
			return nil, err
		}
		runner = xexec.New(xexec.WithEncoding(enc), xexec.WithLogger(logger))
	}

	cfg := tunnel.DefaultConfig()
	cfg.ControlExe = o.controlExe
	cfg.QueryExe = o.queryExe
	cfg.ServicePrefix = o.servicePrefix
	cfg.ConfigDir = o.configDir
	cfg.FailedConfigRetention = retention
	cfg.Runner = runner
	cfg.Logger = logger

	s, err := tunnel.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure supervisor: %w", err)
	}
	return s, nil
}
