package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"safenet/internal/tunnel"
	"safenet/pkg/validation"
)

const defaultTunnelName = "safenet"

func newTunnelCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Start, stop and query tunnel services",
	}
	cmd.AddCommand(newTunnelStartCmd(opts))
	cmd.AddCommand(newTunnelStopCmd(opts))
	cmd.AddCommand(newTunnelStatusCmd(opts))
	cmd.AddCommand(newTunnelPruneCmd(opts))
	return cmd
}

func newTunnelStartCmd(opts *rootOptions) *cobra.Command {
	var specPath, name, keyFile string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Render a tunnel spec and install it as a service",
		Example: `  # Install the tunnel described in spec.yaml
  safenetctl tunnel start -f spec.yaml

  # Keep the private key out of the spec file
  safenetctl tunnel start -f spec.yaml --private-key-file server.key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specName, spec, err := loadSpec(specPath, keyFile)
			if err != nil {
				return err
			}
			name = pickName(name, specName)
			if err := validation.TunnelName(name); err != nil {
				return err
			}

			s, err := opts.supervisor(cmd, 0)
			if err != nil {
				return err
			}
			if err := s.Start(cmd.Context(), spec, name); err != nil {
				return describeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tunnel %s installed with %d peer(s)\n", name, len(spec.Peers))
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "file", "f", "", "tunnel spec YAML file")
	cmd.Flags().StringVar(&name, "name", "", "tunnel name (default: name from the spec, else safenet)")
	cmd.Flags().StringVar(&keyFile, "private-key-file", "", "read the interface private key from this file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTunnelStopCmd(opts *rootOptions) *cobra.Command {
	var name string
	var keepConfig bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Uninstall a tunnel service and remove its config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.TunnelName(name); err != nil {
				return err
			}
			s, err := opts.supervisor(cmd, 0)
			if err != nil {
				return err
			}

			var stopOpts []tunnel.StopOption
			if keepConfig {
				stopOpts = append(stopOpts, tunnel.KeepConfig())
			}
			report, err := s.Stop(cmd.Context(), name, stopOpts...)
			if err != nil {
				return describeError(err)
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), opts.output, report); ok {
				return err
			}
			out := cmd.OutOrStdout()
			if report.Uninstalled {
				fmt.Fprintf(out, "Tunnel %s uninstalled\n", name)
			} else {
				fmt.Fprintf(out, "Tunnel %s was not installed (exit code %d)\n", name, report.UninstallExitCode)
			}
			if report.ConfigRemoved {
				fmt.Fprintln(out, "Config removed")
			}
			for _, w := range report.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", defaultTunnelName, "tunnel name")
	cmd.Flags().BoolVar(&keepConfig, "keep-config", false, "leave the rendered config on disk")
	return cmd
}

type statusRow struct {
	Tunnel string `json:"tunnel" yaml:"tunnel"`
	State  string `json:"state" yaml:"state"`
	Code   int    `json:"code" yaml:"code"`
	Active bool   `json:"active" yaml:"active"`
}

func newTunnelStatusCmd(opts *rootOptions) *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the service state of one or more tunnels",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, n := range names {
				if err := validation.TunnelName(n); err != nil {
					return err
				}
			}
			s, err := opts.supervisor(cmd, 0)
			if err != nil {
				return err
			}

			statuses := make([]tunnel.Status, len(names))
			rows := make([]statusRow, len(names))
			for i, n := range names {
				st, err := s.Status(cmd.Context(), n)
				if err != nil {
					return err
				}
				statuses[i] = st
				rows[i] = statusRow{Tunnel: n, State: st.State.String(), Code: st.Code, Active: st.Running()}
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), opts.output, rows); ok {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Tunnel", "Service", "State")
			for i, n := range names {
				table.Append([]string{n, s.ServiceID(n), stateColor(statuses[i])})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&names, "name", []string{defaultTunnelName}, "tunnel name (repeatable)")
	return cmd
}

func newTunnelPruneCmd(opts *rootOptions) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete configs left behind by failed installs",
		Long: `Delete rendered configs that are older than --retention and whose tunnel
service no longer exists. Configs of installed tunnels are never touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if retention <= 0 {
				return errors.New("--retention must be positive")
			}
			s, err := opts.supervisor(cmd, retention)
			if err != nil {
				return err
			}
			report, err := s.Prune(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), opts.output, report); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d config(s)", len(report.Removed))
			if len(report.Kept) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", kept %d of installed tunnels", len(report.Kept))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			for _, name := range report.Removed {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", tunnel.DefaultFailedConfigRetention, "minimum age of a config before it is pruned")
	return cmd
}

func pickName(flag, fromSpec string) string {
	if flag != "" {
		return flag
	}
	if fromSpec != "" {
		return fromSpec
	}
	return defaultTunnelName
}

// describeError adds operator hints to supervisor errors.
func describeError(err error) error {
	var cfgErr *tunnel.ConfigurationError
	var opErr *tunnel.OperationalError
	switch {
	case errors.As(err, &cfgErr):
		return fmt.Errorf("%s was not found.\nTo fix: %s", cfgErr.Executable, cfgErr.Remediation())
	case errors.As(err, &opErr):
		msg := fmt.Sprintf("install of tunnel %s failed (exit code %d)", opErr.Tunnel, opErr.ExitCode)
		if opErr.Stderr != "" {
			msg += ": " + opErr.Stderr
		}
		if opErr.ConfigPath != "" {
			msg += "\nThe rendered config was kept at " + opErr.ConfigPath + "; see 'safenetctl inspect'."
		}
		return errors.New(msg)
	default:
		return err
	}
}
