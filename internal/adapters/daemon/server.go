package daemon

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tangram.example.dev/tangram/internal/adapters/watcher"
	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/core/ports"
	"go.trai.ch/zerr"
)

// Server implements the daemon's gob-over-UDS RPC service.
type Server struct {
	root         string
	lifecycle    *Lifecycle
	cache        *ServerCache
	configLoader ports.ConfigLoader
	envFactory   ports.EnvironmentFactory
	executor     ports.Executor
	watcherSvc   *WatcherService
	listener     net.Listener
}

// WatcherService bundles the watcher, debouncer, and hash cache together.
type WatcherService struct {
	Watcher   ports.Watcher
	Debouncer *watcher.Debouncer
	HashCache ports.InputHashCache
}

// NewServer creates a new daemon server with no config/environment/executor
// dependencies wired (suitable only for Ping/Status/Shutdown).
func NewServer(lifecycle *Lifecycle) *Server {
	return &Server{lifecycle: lifecycle}
}

// NewServerWithDeps creates a new daemon server with dependencies for handling graph and environment requests.
func NewServerWithDeps(
	lifecycle *Lifecycle,
	configLoader ports.ConfigLoader,
	envFactory ports.EnvironmentFactory,
	executor ports.Executor,
) *Server {
	return &Server{
		lifecycle:    lifecycle,
		cache:        NewServerCache(),
		configLoader: configLoader,
		envFactory:   envFactory,
		executor:     executor,
	}
}

// Serve starts accepting connections on the workspace's UDS, dispatching
// each to its own goroutine, until ctx is canceled or the lifecycle's idle
// timer fires a shutdown.
func (s *Server) Serve(ctx context.Context, root string) error {
	s.root = root
	socketPath := domain.DefaultDaemonSocketPath(root)

	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create daemon directory")
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return zerr.Wrap(err, "failed to remove stale socket")
	}

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return zerr.Wrap(err, "failed to listen on UDS")
	}
	s.listener = lis

	if err := os.Chmod(socketPath, domain.SocketPerm); err != nil {
		_ = lis.Close()
		return zerr.Wrap(err, "failed to set socket permissions")
	}

	if err := s.writePIDFile(); err != nil {
		return err
	}
	defer s.cleanup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.acceptLoop(ctx, lis)
	}()

	select {
	case <-ctx.Done():
		_ = lis.Close()
		return ctx.Err()
	case <-s.lifecycle.ShutdownChan():
		_ = lis.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return zerr.Wrap(err, "accept failed")
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) cleanup() {
	_ = os.Remove(domain.DefaultDaemonSocketPath(s.root))
	_ = os.Remove(domain.DefaultDaemonPIDPath(s.root))
}

// handleConn reads one method+request pair and writes its response. For
// ExecuteTask this streams multiple chunks instead of a single response.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)

	var method string
	if err := dec.Decode(&method); err != nil {
		return
	}

	switch method {
	case methodPing:
		var req pingRequest
		if dec.Decode(&req) != nil {
			return
		}
		_ = enc.Encode(rpcError{})
		_ = enc.Encode(s.handlePing())
	case methodStatus:
		var req statusRequest
		if dec.Decode(&req) != nil {
			return
		}
		_ = enc.Encode(rpcError{})
		_ = enc.Encode(s.handleStatus())
	case methodShutdown:
		var req shutdownRequest
		if dec.Decode(&req) != nil {
			return
		}
		_ = enc.Encode(rpcError{})
		_ = enc.Encode(s.handleShutdown())
	case methodGetGraph:
		var req getGraphRequest
		if dec.Decode(&req) != nil {
			return
		}
		resp, err := s.handleGetGraph(req)
		if err != nil {
			_ = enc.Encode(rpcError{Message: err.Error()})
			return
		}
		_ = enc.Encode(rpcError{})
		_ = enc.Encode(resp)
	case methodGetEnvironment:
		var req getEnvironmentRequest
		if dec.Decode(&req) != nil {
			return
		}
		resp, err := s.handleGetEnvironment(ctx, req)
		if err != nil {
			_ = enc.Encode(rpcError{Message: err.Error()})
			return
		}
		_ = enc.Encode(rpcError{})
		_ = enc.Encode(resp)
	case methodGetInputHash:
		var req getInputHashRequest
		if dec.Decode(&req) != nil {
			return
		}
		resp, err := s.handleGetInputHash(req)
		if err != nil {
			_ = enc.Encode(rpcError{Message: err.Error()})
			return
		}
		_ = enc.Encode(rpcError{})
		_ = enc.Encode(resp)
	case methodExecuteTask:
		var req executeTaskRequest
		if dec.Decode(&req) != nil {
			return
		}
		s.handleExecuteTask(ctx, req, enc)
	}
}

func (s *Server) handlePing() pingResponse {
	s.lifecycle.ResetTimer()
	return pingResponse{IdleRemainingSeconds: int64(s.lifecycle.IdleRemaining().Seconds())}
}

func (s *Server) handleStatus() statusResponse {
	return statusResponse{
		Running:              true,
		PID:                  os.Getpid(),
		UptimeSeconds:        int64(s.lifecycle.Uptime().Seconds()),
		LastActivityUnix:     s.lifecycle.LastActivity().Unix(),
		IdleRemainingSeconds: int64(s.lifecycle.IdleRemaining().Seconds()),
	}
}

func (s *Server) handleShutdown() shutdownResponse {
	s.lifecycle.Shutdown()
	return shutdownResponse{Success: true}
}

func (s *Server) writePIDFile() error {
	pidPath := domain.DefaultDaemonPIDPath(s.root)
	return os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), domain.PrivateFilePerm)
}

func (s *Server) handleGetGraph(req getGraphRequest) (getGraphResponse, error) {
	if s.cache == nil || s.configLoader == nil {
		return getGraphResponse{}, zerr.New("server not configured for graph operations")
	}

	clientMtimes := make(map[string]int64, len(req.ConfigMtimes))
	for _, m := range req.ConfigMtimes {
		clientMtimes[m.Path] = m.MtimeUnixNano
	}

	s.lifecycle.ResetTimer()

	if graph, cacheHit := s.cache.GetGraph(req.Cwd, clientMtimes); cacheHit {
		return s.graphToResponse(graph, true), nil
	}

	graph, err := s.configLoader.Load(req.Cwd)
	if err != nil {
		return getGraphResponse{}, zerr.Wrap(err, "failed to load graph")
	}
	if err := graph.Validate(); err != nil {
		return getGraphResponse{}, zerr.Wrap(err, "failed to validate graph")
	}

	entry := &domain.GraphCacheEntry{
		Graph:       graph,
		ConfigPaths: make([]string, 0, len(clientMtimes)),
		Mtimes:      clientMtimes,
	}
	for path := range clientMtimes {
		entry.ConfigPaths = append(entry.ConfigPaths, path)
	}
	s.cache.SetGraph(req.Cwd, entry)

	return s.graphToResponse(graph, false), nil
}

func (s *Server) handleGetEnvironment(ctx context.Context, req getEnvironmentRequest) (getEnvironmentResponse, error) {
	if s.cache == nil || s.envFactory == nil {
		return getEnvironmentResponse{}, zerr.New("server not configured for environment operations")
	}

	s.lifecycle.ResetTimer()

	if envVars, cacheHit := s.cache.GetEnv(req.EnvID); cacheHit {
		return getEnvironmentResponse{CacheHit: true, EnvVars: envVars}, nil
	}

	envVars, err := s.envFactory.GetEnvironment(ctx, req.Tools)
	if err != nil {
		return getEnvironmentResponse{}, zerr.Wrap(err, "failed to get environment")
	}
	s.cache.SetEnv(req.EnvID, envVars)

	return getEnvironmentResponse{CacheHit: false, EnvVars: envVars}, nil
}

func (s *Server) graphToResponse(graph *domain.Graph, cacheHit bool) getGraphResponse {
	resp := getGraphResponse{CacheHit: cacheHit, Root: graph.Root()}
	for task := range graph.Walk() {
		resp.Tasks = append(resp.Tasks, taskWire{
			Name:            task.Name.String(),
			Command:         task.Command,
			Inputs:          plainStrings(task.Inputs),
			Outputs:         plainStrings(task.Outputs),
			Tools:           task.Tools,
			Dependencies:    plainStrings(task.Dependencies),
			Environment:     task.Environment,
			WorkingDir:      task.WorkingDir.String(),
			RebuildStrategy: string(task.RebuildStrategy),
		})
	}
	return resp
}

func plainStrings(interned []domain.InternedString) []string {
	result := make([]string, len(interned))
	for i, s := range interned {
		result[i] = s.String()
	}
	return result
}

// SetWatcherService sets the watcher service for the server.
// This must be called before Serve if the watcher service is needed.
func (s *Server) SetWatcherService(watcherSvc *WatcherService) {
	s.watcherSvc = watcherSvc
}

func (s *Server) handleGetInputHash(req getInputHashRequest) (getInputHashResponse, error) {
	s.lifecycle.ResetTimer()

	if s.watcherSvc == nil {
		return getInputHashResponse{}, zerr.New("watcher service not initialized")
	}

	result := s.watcherSvc.HashCache.GetInputHash(req.TaskName, req.Root, req.Env)

	var state inputHashState
	switch result.State {
	case ports.HashReady:
		state = inputHashReady
	case ports.HashPending:
		state = inputHashPending
	default:
		state = inputHashUnknown
	}

	return getInputHashResponse{State: state, Hash: result.Hash}, nil
}

// chunkWriter streams ExecuteTask output chunks over a connection's encoder
// as they're produced, instead of buffering the whole run.
type chunkWriter struct {
	enc *gob.Encoder
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	if err := w.enc.Encode(executeTaskChunk{Data: data}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// getExitCode extracts the exit code from an error.
// It returns 0 for no error, or the actual exit code if the error
// contains one via zerr field, defaulting to 1 for generic errors.
func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	type fielder interface {
		Field(key string) (interface{}, bool)
	}

	var fieldErr fielder
	if errors.As(err, &fieldErr) {
		if code, found := fieldErr.Field("exit_code"); found {
			if exitCode, ok := code.(int); ok {
				return exitCode
			}
		}
	}

	return 1
}

func (s *Server) handleExecuteTask(ctx context.Context, req executeTaskRequest, enc *gob.Encoder) {
	s.lifecycle.ResetTimer()

	if s.executor == nil {
		_ = enc.Encode(executeTaskChunk{Done: true, ErrMessage: "server not configured for task execution"})
		return
	}

	task := &domain.Task{
		Name:        domain.NewInternedString(req.TaskName),
		Command:     req.Command,
		WorkingDir:  domain.NewInternedString(req.WorkingDir),
		Environment: req.TaskEnvironment,
	}

	writer := &chunkWriter{enc: enc}
	err := s.executor.Execute(ctx, task, req.NixEnvironment, writer, writer)
	exitCode := getExitCode(err)

	_ = enc.Encode(executeTaskChunk{Done: true, ExitCode: exitCode})
}
