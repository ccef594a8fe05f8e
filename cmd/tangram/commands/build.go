package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"tangram.example.dev/tangram/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [dir] -- [args...]",
		Short: "Check a package into the object store and run it inside the sandbox",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			positional, cmdArgs := args, []string(nil)
			if at := cmd.ArgsLenAtDash(); at >= 0 {
				positional, cmdArgs = args[:at], args[at:]
			}

			var dir string
			if len(positional) > 0 {
				dir = positional[0]
			}

			executable, _ := cmd.Flags().GetString("executable")
			network, _ := cmd.Flags().GetBool("network")
			env, _ := cmd.Flags().GetStringSlice("env")

			id, err := c.app.Build(cmd.Context(), app.BuildOptions{
				Dir:        dir,
				Executable: executable,
				Args:       cmdArgs,
				Env:        env,
				Network:    network,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return nil
		},
	}
	cmd.Flags().String("executable", "/bin/sh", "Guest-visible path of the program to execute")
	cmd.Flags().Bool("network", false, "Enable the sandbox's network namespace")
	cmd.Flags().StringSlice("env", nil, "Environment variables passed to the sandboxed process (KEY=VALUE)")
	return cmd
}
