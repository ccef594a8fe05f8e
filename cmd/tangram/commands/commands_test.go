package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/cmd/tangram/commands"
	"tangram.example.dev/tangram/internal/app"
	"tangram.example.dev/tangram/internal/build"
	"tangram.example.dev/tangram/internal/core/domain"
)

type mockApp struct {
	runFunc func(ctx context.Context, targetNames []string, opts app.RunOptions) error
}

func (m *mockApp) Run(ctx context.Context, targetNames []string, opts app.RunOptions) error {
	if m.runFunc != nil {
		return m.runFunc(ctx, targetNames, opts)
	}
	return nil
}

func (m *mockApp) Clean(_ context.Context, _ app.CleanOptions) error { return nil }
func (m *mockApp) ServeDaemon(_ context.Context) error               { return nil }
func (m *mockApp) StartDaemon(_ context.Context) error               { return nil }
func (m *mockApp) DaemonStatus(_ context.Context) error              { return nil }
func (m *mockApp) StopDaemon(_ context.Context) error                { return nil }

func (m *mockApp) Solve(_ context.Context, _ app.SolveOptions) (domain.Lock, error) {
	return domain.Lock{}, nil
}

func (m *mockApp) CheckIn(_ context.Context, _ string, _ []string) (domain.Identifier, error) {
	return domain.Identifier{}, nil
}

func (m *mockApp) CheckOut(_ context.Context, _ domain.Identifier, _ string) error { return nil }

func (m *mockApp) Build(_ context.Context, _ app.BuildOptions) (domain.Identifier, error) {
	return domain.Identifier{}, nil
}

func (m *mockApp) Mount(_ context.Context, _ string) error { return nil }

func TestCommands_Run(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var capturedOpts app.RunOptions
		var capturedTargets []string
		called := false

		mock := &mockApp{
			runFunc: func(_ context.Context, targetNames []string, opts app.RunOptions) error {
				capturedOpts = opts
				capturedTargets = targetNames
				called = true
				return nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run", "build", "--no-cache", "--inspect"})

		// We don't care about output here, just flag propagation
		err := cli.Execute(context.Background())
		require.NoError(t, err)
		assert.True(t, called)
		assert.True(t, capturedOpts.NoCache)
		assert.True(t, capturedOpts.Inspect)
		assert.Equal(t, []string{"build"}, capturedTargets)
	})

	t.Run("returns error on run failure", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(_ context.Context, _ []string, _ app.RunOptions) error {
				return errors.New("simulated error")
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run", "target"})
		// Silence output to avoid polluting test logs
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		err := cli.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})

	t.Run("shows usage when no targets provided", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(_ context.Context, _ []string, _ app.RunOptions) error {
				panic("should not be called")
			},
		}

		cli := commands.New(mock)
		buf := new(bytes.Buffer)
		cli.SetOutput(buf, buf)
		cli.SetArgs([]string{"run"})

		err := cli.Execute(context.Background())
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Usage:")
	})
}

func TestCommands_Version(t *testing.T) {
	mock := &mockApp{}
	cli := commands.New(mock)

	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"version"})

	err := cli.Execute(context.Background())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), build.Version)
}
