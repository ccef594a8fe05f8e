package ports

import "tangram.example.dev/tangram/internal/core/domain"

//go:generate mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks

// Hasher computes deterministic content hashes for task inputs and outputs.
type Hasher interface {
	// ComputeInputHash hashes a task's definition, environment, and resolved input files.
	ComputeInputHash(task *domain.Task, env map[string]string, inputs []string) (string, error)

	// ComputeOutputHash hashes the contents of a task's declared outputs relative to root.
	ComputeOutputHash(outputs []string, root string) (string, error)
}
