// Package commands implements the CLI commands for the tangram build tool.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"tangram.example.dev/tangram/internal/app"
	"tangram.example.dev/tangram/internal/build"
	"tangram.example.dev/tangram/internal/core/domain"
)

// CLI represents the command line interface for tangram.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Run(ctx context.Context, targetNames []string, opts app.RunOptions) error
	Clean(ctx context.Context, options app.CleanOptions) error
	ServeDaemon(ctx context.Context) error
	StartDaemon(ctx context.Context) error
	DaemonStatus(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	Solve(ctx context.Context, opts app.SolveOptions) (domain.Lock, error)
	CheckIn(ctx context.Context, dir string, ignores []string) (domain.Identifier, error)
	CheckOut(ctx context.Context, id domain.Identifier, dest string) error
	Build(ctx context.Context, opts app.BuildOptions) (domain.Identifier, error)
	Mount(ctx context.Context, mountpoint string) error
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "tangram",
		Short:         "A modern build tool for monorepos",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newVersionCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newDaemonCmd())
	rootCmd.AddCommand(c.newSolveCmd())
	rootCmd.AddCommand(c.newCheckInCmd())
	rootCmd.AddCommand(c.newCheckOutCmd())
	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newMountCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
