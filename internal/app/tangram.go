package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"tangram.example.dev/tangram/internal/adapters/fs"
	"tangram.example.dev/tangram/internal/adapters/lockfile"
	"tangram.example.dev/tangram/internal/adapters/registry"
	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/graph"
	"tangram.example.dev/tangram/internal/sandbox/exec"
	"tangram.example.dev/tangram/internal/sandbox/rootfs"
	"tangram.example.dev/tangram/internal/solver"
	"tangram.example.dev/tangram/internal/vfs"
	"go.trai.ch/zerr"
)

const (
	defaultSandboxUID = 1000
	defaultSandboxGID = 1000
)

// resolveToken reads the environment variable named by tokenEnv, returning
// an empty token when tokenEnv is empty (an unauthenticated registry).
func resolveToken(tokenEnv string) string {
	if tokenEnv == "" {
		return ""
	}
	return os.Getenv(tokenEnv)
}

// SolveOptions configures the Solve method.
type SolveOptions struct {
	// Dir is the package directory to solve, defaulting to the current
	// working directory.
	Dir string
	// Write persists the resolved lock to the package's tangram.lock.
	Write bool
}

// Solve analyzes the package rooted at opts.Dir, resolves its declared
// dependencies against the workspace's configured registry plus any sibling
// path dependencies (checked in on the fly), and returns the resulting
// lock, assembling C5 (module graph analyzer) and C6 (version solver)
// around C2/C3 (object store, check-in) the way the scheduler already
// composes the teacher's adapters for Run.
func (a *App) Solve(ctx context.Context, opts SolveOptions) (domain.Lock, error) {
	if a.objectStore == nil {
		return domain.Lock{}, zerr.With(domain.ErrSandboxSetup, "reason", "no object store configured")
	}

	dir, err := resolveDir(opts.Dir)
	if err != nil {
		return domain.Lock{}, err
	}

	root, err := a.configLoader.DiscoverRoot(dir)
	if err != nil {
		return domain.Lock{}, zerr.Wrap(err, "failed to discover workspace root")
	}

	settings, _, err := a.configLoader.LoadWorkspaceSettings(root)
	if err != nil {
		return domain.Lock{}, zerr.Wrap(err, "failed to load workspace settings")
	}

	_, declared, err := graph.AnalyzePackage(dir)
	if err != nil {
		return domain.Lock{}, zerr.Wrap(err, "failed to analyze package")
	}

	walker := fs.NewWalker()
	pathDeps := make(map[string]domain.Identifier, len(declared))
	for _, spec := range declared {
		if !spec.IsPath() {
			continue
		}
		depDir := filepath.Join(dir, spec.Path)
		id, err := fs.CheckIn(ctx, a.objectStore, walker, depDir, nil)
		if err != nil {
			return domain.Lock{}, zerr.With(zerr.Wrap(err, "failed to check in path dependency"), "path", spec.Path)
		}
		pathDeps[spec.Key()] = id
	}

	client := registry.New(settings.BaseURL, resolveToken(settings.TokenEnv))
	solverCtx := solver.NewContext(client, pathDeps)

	results, report, err := solver.Solve(solverCtx, declared)
	if err != nil {
		return domain.Lock{}, zerr.Wrap(err, "dependency resolution failed")
	}
	if report != nil {
		return domain.Lock{}, zerr.With(domain.ErrResolution, "report", report.String())
	}

	entries := make([]domain.LockEntry, 0, len(declared))
	for _, spec := range declared {
		entries = append(entries, domain.LockEntry{Dependency: spec, Package: results[spec.Key()]})
	}
	lock := domain.Lock{Dependencies: entries}

	if opts.Write {
		if err := lockfile.Save(dir, lock); err != nil {
			return lock, zerr.Wrap(err, "failed to write lockfile")
		}
		a.logger.Info(fmt.Sprintf("wrote %s", lockfile.Path(dir)))
	}

	return lock, nil
}

// CheckIn walks dir and writes its directory/file/symlink tree into the
// object store (C3), returning the resulting artifact identifier.
func (a *App) CheckIn(ctx context.Context, dir string, ignores []string) (domain.Identifier, error) {
	if a.objectStore == nil {
		return domain.Identifier{}, zerr.With(domain.ErrSandboxSetup, "reason", "no object store configured")
	}

	dir, err := resolveDir(dir)
	if err != nil {
		return domain.Identifier{}, err
	}

	walker := fs.NewWalker()
	id, err := fs.CheckIn(ctx, a.objectStore, walker, dir, ignores)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to check in")
	}
	a.logger.Info(fmt.Sprintf("checked in %s as %s", dir, id))
	return id, nil
}

// CheckOut materializes the artifact identified by id onto the filesystem
// at dest (C3).
func (a *App) CheckOut(_ context.Context, id domain.Identifier, dest string) error {
	if a.objectStore == nil {
		return zerr.With(domain.ErrSandboxSetup, "reason", "no object store configured")
	}

	if err := fs.CheckOut(a.objectStore, id, dest); err != nil {
		return zerr.Wrap(err, "failed to check out")
	}
	a.logger.Info(fmt.Sprintf("checked out %s to %s", id, dest))
	return nil
}

// BuildOptions configures the Build method.
type BuildOptions struct {
	// Dir is the source directory to check in and build, defaulting to cwd.
	Dir string
	// Executable is the guest-visible path of the program to run.
	Executable string
	Args       []string
	Env        []string
	// Network enables the sandbox's network namespace regardless of the
	// workspace's configured default.
	Network bool
}

// Build checks opts.Dir into the object store, assembles a sandbox root
// around it (C7), runs the target inside the Linux namespace sandbox (C8),
// and checks the resulting output directory back into the object store,
// returning its artifact identifier. This is the same checkin -> sandbox ->
// checkin shape the spec's orchestration section describes: C3 -> C7 -> C8
// -> C3.
func (a *App) Build(ctx context.Context, opts BuildOptions) (domain.Identifier, error) {
	if a.objectStore == nil {
		return domain.Identifier{}, zerr.With(domain.ErrSandboxSetup, "reason", "no object store configured")
	}

	dir, err := resolveDir(opts.Dir)
	if err != nil {
		return domain.Identifier{}, err
	}

	root, err := a.configLoader.DiscoverRoot(dir)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to discover workspace root")
	}

	_, sandboxSettings, err := a.configLoader.LoadWorkspaceSettings(root)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to load workspace settings")
	}

	walker := fs.NewWalker()
	source, err := fs.CheckIn(ctx, a.objectStore, walker, dir, nil)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to check in build source")
	}

	sandboxRoot, err := os.MkdirTemp("", "tangram-sandbox-*")
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to create sandbox root")
	}
	defer os.RemoveAll(sandboxRoot) //nolint:errcheck // best effort cleanup

	outputParent, err := os.MkdirTemp("", "tangram-output-*")
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to create output directory")
	}
	defer os.RemoveAll(outputParent) //nolint:errcheck // best effort cleanup

	serverDir := filepath.Join(sandboxRoot, ".tangram-source")
	if err := os.MkdirAll(serverDir, domain.DirPerm); err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to create build source staging directory")
	}
	if err := fs.CheckOut(a.objectStore, source, serverDir); err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to check out build source")
	}

	uid, gid := sandboxSettings.UID, sandboxSettings.GID
	if uid == 0 && gid == 0 {
		uid, gid = defaultSandboxUID, defaultSandboxGID
	}

	cfg := rootfs.Config{
		RootDir:               sandboxRoot,
		ServerDir:             serverDir,
		ServerDirGuestPath:    "/.tangram/source",
		HomeDir:               filepath.Join(sandboxRoot, "home", "tangram"),
		OutputParentDir:       outputParent,
		OutputParentGuestPath: "/.tangram/output",
		TangramUID:            uid,
		TangramGID:            gid,
		NetworkEnabled:        opts.Network || sandboxSettings.NetworkDefault,
		Arch:                  runtime.GOARCH,
	}

	statics := rootfs.NewDirProvider(sandboxSettings.StaticBinaryDir)
	mounts, err := rootfs.Build(cfg, statics)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to build sandbox root")
	}

	spec := exec.Spec{
		RootDir:         sandboxRoot,
		WorkingDirGuest: cfg.ServerDirGuestPath,
		Executable:      opts.Executable,
		Args:            opts.Args,
		Env:             opts.Env,
		Mounts:          mounts,
		NetworkEnabled:  cfg.NetworkEnabled,
		HostUID:         os.Getuid(),
		HostGID:         os.Getgid(),
	}

	status, err := exec.Run(ctx, spec, func(line []byte) { a.logger.Info(string(line)) })
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "sandbox execution failed")
	}
	if status.Signaled {
		return domain.Identifier{}, zerr.With(domain.ErrProcessSignaled, "signal", status.Signal)
	}
	if status.Code != 0 {
		return domain.Identifier{}, zerr.With(domain.ErrProcessExited, "code", status.Code)
	}

	output, err := fs.CheckIn(ctx, a.objectStore, walker, outputParent, nil)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to check in build output")
	}

	a.logger.Info(fmt.Sprintf("built %s as %s", dir, output))
	return output, nil
}

// Mount serves the object store as a read-only FUSE filesystem at
// mountpoint (C9) until ctx is cancelled, blocking for the lifetime of the
// mount the same way ServeDaemon blocks for the lifetime of the daemon.
func (a *App) Mount(ctx context.Context, mountpoint string) error {
	if a.objectStore == nil {
		return zerr.With(domain.ErrSandboxSetup, "reason", "no object store configured")
	}

	root := vfs.NewRoot(a.objectStore)
	server, err := fusefs.Mount(mountpoint, root, &fusefs.Options{
		MountOptions: fuse.MountOptions{
			FsName:   "tangram",
			Name:     "tangram",
			ReadOnly: true,
		},
	})
	if err != nil {
		return zerr.Wrap(err, "failed to mount object store")
	}

	go func() {
		<-ctx.Done()
		_ = server.Unmount()
	}()

	a.logger.Info(fmt.Sprintf("mounted object store at %s", mountpoint))
	server.Wait()
	return nil
}

func resolveDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", zerr.Wrap(err, "failed to get current working directory")
	}
	return cwd, nil
}
