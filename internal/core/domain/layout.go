package domain

import "path/filepath"

const (
	// TangramDirName is the name of the internal workspace directory.
	TangramDirName = ".tangram"

	// StoreDirName is the name of the build-info cache directory.
	StoreDirName = "store"

	// ObjectsDirName is the name of the content-addressed object store
	// directory, distinct from the build-info cache: the two are keyed
	// differently (identifier hex vs. task name) and must not share a root.
	ObjectsDirName = "objects"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// NixHubDirName is the name of the NixHub cache directory.
	NixHubDirName = "nixhub"

	// EnvDirName is the name of the environment cache directory.
	EnvDirName = "environments"

	// ArtifactsDirName is the name of the directory checked-out artifacts
	// are materialized under, keyed by artifact identifier.
	ArtifactsDirName = "artifacts"

	// TangramFileName is the name of the project configuration file.
	TangramFileName = "tangram.yaml"

	// WorkFileName is the name of the workspace configuration file.
	WorkFileName = "tangram.work.yaml"

	// DebugLogFile is the name of the debug log file.
	DebugLogFile = "debug.log"

	// DaemonSocketName is the name of the daemon's Unix domain socket.
	DaemonSocketName = "daemon.sock"

	// DaemonPIDName is the name of the daemon's PID file.
	DaemonPIDName = "daemon.pid"

	// DaemonLogName is the name of the daemon's log file.
	DaemonLogName = "daemon.log"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600

	// SocketPerm is the permission set on the daemon's Unix domain socket.
	SocketPerm = 0o600
)

// DefaultTangramPath returns the default root directory for same metadata.
func DefaultTangramPath() string {
	return TangramDirName
}

// DefaultStorePath returns the default path for the build-info cache.
// It joins .tangram and store.
func DefaultStorePath() string {
	return filepath.Join(TangramDirName, StoreDirName)
}

// DefaultObjectStorePath returns the default path for the content-addressed
// object store. It joins .tangram and objects.
func DefaultObjectStorePath() string {
	return filepath.Join(TangramDirName, ObjectsDirName)
}

// DefaultNixHubCachePath returns the default path for the NixHub cache.
// It joins .tangram, cache, and nixhub.
func DefaultNixHubCachePath() string {
	return filepath.Join(TangramDirName, CacheDirName, NixHubDirName)
}

// DefaultEnvCachePath returns the default path for the environment cache.
// It joins .tangram, cache, and environments.
func DefaultEnvCachePath() string {
	return filepath.Join(TangramDirName, CacheDirName, EnvDirName)
}

// DefaultDebugLogPath returns the default path for the debug log.
// It joins .tangram and debug.log.
func DefaultDebugLogPath() string {
	return filepath.Join(TangramDirName, DebugLogFile)
}

// DefaultArtifactsPath returns the default path artifacts are checked out
// under. It joins .tangram and artifacts.
func DefaultArtifactsPath() string {
	return filepath.Join(TangramDirName, ArtifactsDirName)
}

// ArtifactCheckoutPath returns the path a given artifact is materialized at
// under the default artifacts directory.
func ArtifactCheckoutPath(id Identifier) string {
	return filepath.Join(DefaultArtifactsPath(), id.String())
}

// DefaultDaemonSocketPath returns the daemon socket path for the workspace
// rooted at root. Each workspace runs its own daemon, so the socket lives
// under that workspace's .tangram directory rather than a single global path.
func DefaultDaemonSocketPath(root string) string {
	return filepath.Join(root, TangramDirName, DaemonSocketName)
}

// DefaultDaemonPIDPath returns the daemon PID file path for the workspace
// rooted at root.
func DefaultDaemonPIDPath(root string) string {
	return filepath.Join(root, TangramDirName, DaemonPIDName)
}

// DefaultDaemonLogPath returns the daemon log file path for the workspace
// rooted at root.
func DefaultDaemonLogPath(root string) string {
	return filepath.Join(root, TangramDirName, DaemonLogName)
}

// RegistrySettings configures the package registry that the version solver
// resolves registry dependencies against. The zero value describes a
// workspace with no registry configured: path dependencies still solve,
// registry lookups fail with ErrRegistryNotConfigured.
type RegistrySettings struct {
	BaseURL  string
	TokenEnv string
}

// SandboxSettings configures the sandbox executor's default identity,
// network posture, and static binary source. The zero value falls back to
// the sandbox package's own defaults (uid/gid 1000, network disabled).
type SandboxSettings struct {
	UID             int
	GID             int
	NetworkDefault  bool
	StaticBinaryDir string
}
