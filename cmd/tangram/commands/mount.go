package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newMountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Serve the object store as a read-only FUSE filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Mount(cmd.Context(), args[0])
		},
	}
	return cmd
}
