package commands

import (
	"github.com/spf13/cobra"
	"tangram.example.dev/tangram/internal/core/domain"
)

func (c *CLI) newCheckOutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout <identifier> <dest>",
		Short: "Materialize an artifact from the object store onto disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseIdentifier(args[0])
			if err != nil {
				return err
			}
			return c.app.CheckOut(cmd.Context(), id, args[1])
		},
	}
	return cmd
}
