package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"safenet/internal/tunnel"
	"safenet/pkg/validation"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the config on disk for a tunnel",
		Long: `Parse the rendered config kept for a tunnel and print its address, port
and peers. Useful after a failed install, which leaves the config in place.
The private key is never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.TunnelName(name); err != nil {
				return err
			}
			s, err := opts.supervisor(cmd, 0)
			if err != nil {
				return err
			}
			sum, err := s.Inspect(cmd.Context(), name)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), opts.output, sum); ok {
				return err
			}
			printSummary(cmd, sum)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", defaultTunnelName, "tunnel name")
	return cmd
}

func printSummary(cmd *cobra.Command, sum tunnel.ConfigSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tunnel:      %s\n", sum.Tunnel)
	fmt.Fprintf(out, "Config:      %s (modified %s)\n", sum.Path, sum.ModTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Address:     %s\n", sum.Address)
	fmt.Fprintf(out, "ListenPort:  %d\n", sum.ListenPort)
	fmt.Fprintf(out, "PrivateKey:  %s\n", presence(sum.HasPrivateKey))

	if len(sum.Peers) == 0 {
		fmt.Fprintln(out, "Peers:       none")
		return
	}
	fmt.Fprintln(out)
	table := newTable(out, "Public Key", "Allowed IPs", "Endpoint", "Keepalive")
	for _, p := range sum.Peers {
		keepalive := "-"
		if p.Keepalive != nil {
			keepalive = strconv.Itoa(int(*p.Keepalive))
		}
		endpoint := p.Endpoint
		if endpoint == "" {
			endpoint = "-"
		}
		table.Append([]string{p.PublicKey, p.AllowedIPs, endpoint, keepalive})
	}
	table.Render()
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
