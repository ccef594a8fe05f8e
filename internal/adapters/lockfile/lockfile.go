// Package lockfile reads and writes a package's tangram.lock file.
package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"tangram.example.dev/tangram/internal/core/domain"
	"go.trai.ch/zerr"
)

// FileName is the canonical name of a package's lockfile, written next to
// its root module.
const FileName = "tangram.lock"

// Path returns the lockfile path for a package rooted at dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads and parses the lockfile for the package rooted at dir. A
// missing lockfile is not an error: it returns a zero-value Lock so callers
// can distinguish "never locked" from "locked but empty" only by checking
// the returned ok flag.
func Load(dir string) (domain.Lock, bool, error) {
	data, err := os.ReadFile(Path(dir)) //nolint:gosec // dir is a package root controlled by the caller
	if errors.Is(err, os.ErrNotExist) {
		return domain.Lock{}, false, nil
	}
	if err != nil {
		return domain.Lock{}, false, zerr.Wrap(err, "failed to read lockfile")
	}

	var lock domain.Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return domain.Lock{}, false, zerr.Wrap(err, "failed to parse lockfile")
	}
	return lock, true, nil
}

// Save writes the lock to the package's lockfile, overwriting any existing
// one. It writes through a temp file and renames into place so a concurrent
// reader never observes a partially written lockfile.
func Save(dir string, lock domain.Lock) error {
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal lockfile")
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".tangram.lock.*")
	if err != nil {
		return zerr.Wrap(err, "failed to create lockfile temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup if rename fails

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already returning the write error
		return zerr.Wrap(err, "failed to write lockfile temp file")
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to close lockfile temp file")
	}

	if err := os.Rename(tmp.Name(), Path(dir)); err != nil {
		return zerr.Wrap(err, "failed to install lockfile")
	}
	return nil
}

// UpToDate reports whether lock's top-level dependency keys exactly match
// declared, the package's currently declared dependency specifiers. Per the
// lockfile invalidation policy, only the top-level keys are compared;
// transitive drift surfaces the next time a full resolve runs.
func UpToDate(lock domain.Lock, declared []domain.Specifier) bool {
	if len(lock.Dependencies) != len(declared) {
		return false
	}
	keys := make(map[string]bool, len(lock.Dependencies))
	for _, d := range lock.Dependencies {
		keys[d.Dependency.Key()] = true
	}
	for _, s := range declared {
		if !keys[s.Key()] {
			return false
		}
	}
	return true
}
