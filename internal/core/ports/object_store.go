package ports

import "tangram.example.dev/tangram/internal/core/domain"

// ObjectStore persists and retrieves content-addressed objects keyed by
// domain.Identifier.
//
//go:generate mockgen -source=object_store.go -destination=mocks/mock_object_store.go -package=mocks
type ObjectStore interface {
	// Exists reports whether an object is present under id.
	Exists(id domain.Identifier) (bool, error)

	// Get retrieves the bytes stored under id. Returns nil, nil on a miss.
	Get(id domain.Identifier) ([]byte, error)

	// Put stores bytes under id. If any child identifier referenced by bytes
	// is not already present, Put stores nothing and returns the list of
	// missing children.
	Put(id domain.Identifier, data []byte) (missing []domain.Identifier, err error)

	// Children parses the stored object under id and returns the
	// identifiers it directly references.
	Children(id domain.Identifier) ([]domain.Identifier, error)
}
