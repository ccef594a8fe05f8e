package app

import (
	"context"

	"github.com/grindlemire/graft"
	"tangram.example.dev/tangram/internal/adapters/cas"
	"tangram.example.dev/tangram/internal/adapters/config"
	"tangram.example.dev/tangram/internal/adapters/daemon"
	"tangram.example.dev/tangram/internal/adapters/fs"
	"tangram.example.dev/tangram/internal/adapters/logger"
	"tangram.example.dev/tangram/internal/adapters/nix"
	"tangram.example.dev/tangram/internal/adapters/shell"
	"tangram.example.dev/tangram/internal/adapters/store"
	"tangram.example.dev/tangram/internal/core/ports"
)

// NodeID is the unique identifier for the Components Graft node.
const NodeID graft.ID = "app.components"

func init() {
	graft.Register(graft.Node[*Components]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			shell.NodeID,
			logger.NodeID,
			cas.NodeID,
			fs.HasherNodeID,
			fs.ResolverNodeID,
			nix.EnvFactoryNodeID,
			daemon.NodeID,
			store.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			loader, err := graft.Dep[ports.ConfigLoader](ctx)
			if err != nil {
				return nil, err
			}
			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			buildInfoStore, err := graft.Dep[ports.BuildInfoStore](ctx)
			if err != nil {
				return nil, err
			}
			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}
			resolver, err := graft.Dep[ports.InputResolver](ctx)
			if err != nil {
				return nil, err
			}
			envFactory, err := graft.Dep[ports.EnvironmentFactory](ctx)
			if err != nil {
				return nil, err
			}
			connector, err := graft.Dep[ports.DaemonConnector](ctx)
			if err != nil {
				return nil, err
			}
			objectStore, err := graft.Dep[ports.ObjectStore](ctx)
			if err != nil {
				return nil, err
			}

			a := New(loader, executor, log, buildInfoStore, hasher, resolver, envFactory, connector).
				WithObjectStore(objectStore)
			return NewComponents(a, log, loader), nil
		},
	})
}

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App          *App
	Logger       ports.Logger
	configLoader ports.ConfigLoader
}

// NewComponents creates a new Components struct from dependencies.
func NewComponents(app *App, log ports.Logger, loader ports.ConfigLoader) *Components {
	return &Components{
		App:          app,
		Logger:       log,
		configLoader: loader,
	}
}
