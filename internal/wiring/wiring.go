// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "tangram.example.dev/tangram/internal/adapters/cas"
	_ "tangram.example.dev/tangram/internal/adapters/config"
	_ "tangram.example.dev/tangram/internal/adapters/daemon"
	_ "tangram.example.dev/tangram/internal/adapters/fs"
	_ "tangram.example.dev/tangram/internal/adapters/logger"
	_ "tangram.example.dev/tangram/internal/adapters/nix"
	_ "tangram.example.dev/tangram/internal/adapters/shell"
	_ "tangram.example.dev/tangram/internal/adapters/store"
	// Register app and engine nodes.
	_ "tangram.example.dev/tangram/internal/app"
	_ "tangram.example.dev/tangram/internal/engine/scheduler"
)
