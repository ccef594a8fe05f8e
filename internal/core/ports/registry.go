package ports

import "tangram.example.dev/tangram/internal/core/domain"

// RegistryContext is the application's view of the package registry
// service: the same three operations the version solver needs
// (internal/solver.RegistryClient), exposed as a port so tests can stub it
// without a live registry. Unlike the config loader or logger, a registry
// client's base URL and token come from the workspace's own settings
// (ports.ConfigLoader.LoadWorkspaceSettings), which are only known once a
// command resolves a working directory - not at DI-graph construction time -
// so App builds one per call rather than registering it as a cached node.
//
//go:generate mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks
type RegistryContext interface {
	// Versions returns the published versions of name.
	Versions(name string) ([]string, error)

	// Resolve returns the package object identifier for name at version.
	Resolve(name, version string) (domain.Identifier, error)

	// Dependencies returns the direct dependency specifiers declared by the
	// package identified by id.
	Dependencies(id domain.Identifier) ([]domain.Specifier, error)
}
