// Package store implements the content-addressed object store: the
// generalization of the teacher's task-name-keyed build info cache
// (internal/adapters/cas) to arbitrary domain.Identifier keys.
package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"tangram.example.dev/tangram/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.ObjectStore as a two-hex-char sharded directory of
// write-once files, keyed by identifier hex string.
type Store struct {
	dir string
}

// New creates an object store rooted at the default object store path.
func New() (*Store, error) {
	return NewWithPath(domain.DefaultObjectStorePath())
}

// NewWithPath creates an object store backed by the directory at path.
func NewWithPath(path string) (*Store, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(cleanPath, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}
	return &Store{dir: cleanPath}, nil
}

func (s *Store) pathFor(id domain.Identifier) string {
	hex := id.String()
	return filepath.Join(s.dir, hex[:2], hex)
}

// Exists reports whether an object is present under id.
func (s *Store) Exists(id domain.Identifier) (bool, error) {
	_, err := os.Stat(s.pathFor(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}
	return true, nil
}

// Get retrieves the bytes stored under id, or nil, nil on a miss.
func (s *Store) Get(id domain.Identifier) ([]byte, error) {
	//nolint:gosec // path is built from a trusted directory and a hex-validated identifier
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}
	return data, nil
}

// Put stores data under id after verifying its content hash, refusing to
// succeed until every child identifier found in data is already present.
// Writes are atomic via write-temp-then-rename.
func (s *Store) Put(id domain.Identifier, data []byte) ([]domain.Identifier, error) {
	expected := domain.NewIdentifier(id.Kind(), data)
	if expected != id {
		return nil, zerr.With(domain.ErrIntegrityMismatch, "expected", expected.String(), "actual", id.String())
	}

	obj, err := domain.DecodeObject(data)
	if err != nil {
		return nil, err
	}

	var missing []domain.Identifier
	for _, child := range obj.Children {
		ok, err := s.Exists(child)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, child)
		}
	}
	if len(missing) > 0 {
		return missing, nil
	}

	dir := filepath.Dir(s.pathFor(id))
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	if ok, err := s.Exists(id); err != nil {
		return nil, err
	} else if ok {
		// put is idempotent: an identical object is already readable.
		return nil, nil
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best-effort cleanup if rename fails

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}

	if err := os.Rename(tmpName, s.pathFor(id)); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}

	return nil, nil
}

// Children parses the stored object under id and returns the identifiers it
// directly references.
func (s *Store) Children(id domain.Identifier) ([]domain.Identifier, error) {
	data, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, zerr.With(domain.ErrNotFound, "id", id.String())
	}

	obj, err := domain.DecodeObject(data)
	if err != nil {
		return nil, err
	}
	return obj.Children, nil
}
