package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"safenet/pkg/version"
)

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if done, err := writeStructured(cmd.OutOrStdout(), opts.output, version.GetInfo()); done {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String("safenetctl"))
			return nil
		},
	}
}
