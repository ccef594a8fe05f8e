package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"tangram.example.dev/tangram/internal/app"
)

func (c *CLI) newSolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve [dir]",
		Short: "Resolve a package's dependencies and write its lockfile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			write, _ := cmd.Flags().GetBool("write")

			lock, err := c.app.Solve(cmd.Context(), app.SolveOptions{Dir: dir, Write: write})
			if err != nil {
				return err
			}

			for _, entry := range lock.Dependencies {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", entry.Dependency.Key(), entry.Package)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("write", "w", false, "Write the resolved lock to tangram.lock")
	return cmd
}
