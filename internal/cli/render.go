package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"safenet/internal/tunnel"
	"safenet/pkg/logging"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var specPath, keyFile string
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the WireGuard config a spec renders to",
		Long: `Print the exact config text "tunnel start" would write, without touching
the service manager. The private key is masked unless --show-secrets is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, spec, err := loadSpec(specPath, keyFile)
			if err != nil {
				return err
			}
			text := tunnel.Render(spec)
			if !showSecrets {
				text = logging.RedactText(text)
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "file", "f", "", "tunnel spec YAML file")
	cmd.Flags().StringVar(&keyFile, "private-key-file", "", "read the interface private key from this file")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print the private key in clear")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
