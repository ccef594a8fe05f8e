// Package daemon implements the background daemon adapter for tangram.
// IPC runs over a Unix domain socket using encoding/gob framing: one
// connection per call, a method name followed by the request, then an
// rpcError followed by the response (or, for ExecuteTask, a stream of
// output chunks terminated by a final chunk carrying the exit status).
package daemon

import (
	"context"
	"encoding/gob"
	"io"
	"net"
	"path/filepath"
	"time"

	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/core/ports"
	"go.trai.ch/zerr"
)

// Client implements ports.DaemonClient over a per-call Unix domain socket
// connection.
type Client struct {
	socketPath string
}

// Dial resolves the socket path for the workspace rooted at root. It does
// not connect eagerly; each call opens its own connection, mirroring how
// short-lived CLI invocations don't want to hold a socket open between runs.
func Dial(root string) (*Client, error) {
	socketPath, err := filepath.Abs(domain.DefaultDaemonSocketPath(root))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve absolute socket path")
	}
	return &Client{socketPath: socketPath}, nil
}

// call dials a fresh connection, sends method and req, and decodes the
// response into resp (or returns the server's reported error).
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return zerr.Wrap(err, "daemon dial failed")
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)

	if err := enc.Encode(method); err != nil {
		return zerr.Wrap(err, "failed to send method")
	}
	if err := enc.Encode(req); err != nil {
		return zerr.Wrap(err, "failed to send request")
	}

	var rpcErr rpcError
	if err := dec.Decode(&rpcErr); err != nil {
		return zerr.Wrap(err, "failed to read response status")
	}
	if rpcErr.Message != "" {
		return zerr.New(rpcErr.Message)
	}
	if resp == nil {
		return nil
	}
	if err := dec.Decode(resp); err != nil {
		return zerr.Wrap(err, "failed to read response")
	}
	return nil
}

// Ping implements ports.DaemonClient.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, methodPing, &pingRequest{}, &pingResponse{})
}

// Status implements ports.DaemonClient.
func (c *Client) Status(ctx context.Context) (*ports.DaemonStatus, error) {
	var resp statusResponse
	if err := c.call(ctx, methodStatus, &statusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &ports.DaemonStatus{
		Running:       resp.Running,
		PID:           resp.PID,
		Uptime:        time.Duration(resp.UptimeSeconds) * time.Second,
		LastActivity:  time.Unix(resp.LastActivityUnix, 0),
		IdleRemaining: time.Duration(resp.IdleRemainingSeconds) * time.Second,
	}, nil
}

// Shutdown implements ports.DaemonClient.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, methodShutdown, &shutdownRequest{Graceful: true}, &shutdownResponse{})
}

// GetGraph implements ports.DaemonClient.
func (c *Client) GetGraph(
	ctx context.Context,
	cwd string,
	configMtimes map[string]int64,
) (graph *domain.Graph, cacheHit bool, err error) {
	req := getGraphRequest{Cwd: cwd}
	for path, mtime := range configMtimes {
		req.ConfigMtimes = append(req.ConfigMtimes, configMtime{Path: path, MtimeUnixNano: mtime})
	}

	var resp getGraphResponse
	if err := c.call(ctx, methodGetGraph, &req, &resp); err != nil {
		return nil, false, zerr.Wrap(err, "GetGraph call failed")
	}

	graph = domain.NewGraph()
	for _, wire := range resp.Tasks {
		task := &domain.Task{
			Name:            domain.NewInternedString(wire.Name),
			Command:         wire.Command,
			Inputs:          internedStrings(wire.Inputs),
			Outputs:         internedStrings(wire.Outputs),
			Tools:           wire.Tools,
			Dependencies:    internedStrings(wire.Dependencies),
			Environment:     wire.Environment,
			WorkingDir:      domain.NewInternedString(wire.WorkingDir),
			RebuildStrategy: domain.RebuildStrategy(wire.RebuildStrategy),
		}
		if err := graph.AddTask(task); err != nil {
			return nil, false, zerr.Wrap(err, "failed to add task to graph")
		}
	}
	graph.SetRoot(resp.Root)

	if err := graph.Validate(); err != nil {
		return nil, false, zerr.Wrap(err, "failed to validate reconstructed graph")
	}

	return graph, resp.CacheHit, nil
}

// GetEnvironment implements ports.DaemonClient.
func (c *Client) GetEnvironment(
	ctx context.Context,
	envID string,
	tools map[string]string,
) (envVars []string, cacheHit bool, err error) {
	req := getEnvironmentRequest{EnvID: envID, Tools: tools}
	var resp getEnvironmentResponse
	if err := c.call(ctx, methodGetEnvironment, &req, &resp); err != nil {
		return nil, false, zerr.Wrap(err, "GetEnvironment call failed")
	}
	return resp.EnvVars, resp.CacheHit, nil
}

// GetInputHash implements ports.DaemonClient.
func (c *Client) GetInputHash(
	ctx context.Context,
	taskName, root string,
	env map[string]string,
) (ports.InputHashResult, error) {
	req := getInputHashRequest{TaskName: taskName, Root: root, Env: env}
	var resp getInputHashResponse
	if err := c.call(ctx, methodGetInputHash, &req, &resp); err != nil {
		return ports.InputHashResult{State: ports.HashUnknown}, zerr.Wrap(err, "GetInputHash call failed")
	}

	var state ports.InputHashState
	switch resp.State {
	case inputHashReady:
		state = ports.HashReady
	case inputHashPending:
		state = ports.HashPending
	default:
		state = ports.HashUnknown
	}

	return ports.InputHashResult{State: state, Hash: resp.Hash}, nil
}

// ExecuteTask implements ports.DaemonClient. It streams output chunks from
// the server until the final chunk, which carries the exit code.
func (c *Client) ExecuteTask(
	ctx context.Context,
	task *domain.Task,
	nixEnv []string,
	stdout, _ io.Writer,
) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return zerr.Wrap(err, "daemon dial failed")
	}
	defer func() { _ = conn.Close() }()

	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)

	req := executeTaskRequest{
		TaskName:        task.Name.String(),
		Command:         task.Command,
		WorkingDir:      task.WorkingDir.String(),
		TaskEnvironment: task.Environment,
		NixEnvironment:  nixEnv,
	}

	if err := enc.Encode(methodExecuteTask); err != nil {
		return zerr.Wrap(err, "failed to send method")
	}
	if err := enc.Encode(&req); err != nil {
		return zerr.Wrap(err, "failed to send request")
	}

	for {
		var chunk executeTaskChunk
		if err := dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				return zerr.New("daemon closed connection before sending final chunk")
			}
			return zerr.Wrap(err, "failed to read task output")
		}
		if chunk.Done {
			if chunk.ErrMessage != "" {
				return zerr.New(chunk.ErrMessage)
			}
			if chunk.ExitCode != 0 {
				return zerr.With(domain.ErrTaskExecutionFailed, "exit_code", chunk.ExitCode)
			}
			return nil
		}
		if len(chunk.Data) > 0 {
			if _, writeErr := stdout.Write(chunk.Data); writeErr != nil {
				return zerr.Wrap(writeErr, "failed to write log chunk")
			}
		}
	}
}

func internedStrings(strs []string) []domain.InternedString {
	result := make([]domain.InternedString, len(strs))
	for i, s := range strs {
		result[i] = domain.NewInternedString(s)
	}
	return result
}

// Close implements ports.DaemonClient. Connections are per-call, so there is
// nothing held open to release.
func (c *Client) Close() error {
	return nil
}
