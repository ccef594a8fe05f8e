package ports

import "context"

//go:generate mockgen -source=environment.go -destination=mocks/mock_environment.go -package=mocks

// EnvironmentFactory materializes a hermetic set of environment variables for a
// given set of tool aliases (e.g. "go" -> "go@1.25.4"), backed by Nix.
type EnvironmentFactory interface {
	// GetEnvironment resolves tools and returns "KEY=VALUE" environment entries.
	GetEnvironment(ctx context.Context, tools map[string]string) ([]string, error)
}

// DependencyResolver resolves a single tool alias+version into a Nix commit and
// attribute path that can be built hermetically.
type DependencyResolver interface {
	// Resolve returns the commit hash and Nix attribute path for alias@version.
	Resolve(ctx context.Context, alias, version string) (commitHash, attrPath string, err error)
}
