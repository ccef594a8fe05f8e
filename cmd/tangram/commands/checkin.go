package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newCheckInCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin [dir]",
		Short: "Check a directory into the content-addressed object store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			ignores, _ := cmd.Flags().GetStringSlice("ignore")

			id, err := c.app.CheckIn(cmd.Context(), dir, ignores)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return nil
		},
	}
	cmd.Flags().StringSlice("ignore", nil, "Glob patterns of paths to exclude from check-in")
	return cmd
}
