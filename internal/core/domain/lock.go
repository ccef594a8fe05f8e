package domain

import (
	"encoding/json"
	"sort"
)

// LockEntry pins one dependency to a resolved package and, recursively, to
// the lock covering that package's own dependencies.
type LockEntry struct {
	Dependency Specifier  `json:"dependency"`
	Package    Identifier `json:"package"`
	Lock       Identifier `json:"lock,omitempty"`
}

// Lock is the payload of a KindLock object: the fully resolved dependency
// closure of a package, mutually recursive with Package.
type Lock struct {
	Dependencies []LockEntry `json:"dependencies,omitempty"`
}

// EncodeLock sorts entries by dependency key and wraps them into a lock
// object.
func EncodeLock(entries []LockEntry) (Identifier, []byte, error) {
	sorted := make([]LockEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Dependency.Key() < sorted[j].Dependency.Key()
	})

	var children []Identifier
	for _, e := range sorted {
		children = append(children, e.Package)
		if !e.Lock.IsZero() {
			children = append(children, e.Lock)
		}
	}

	return EncodeObject(KindLock, children, Lock{Dependencies: sorted})
}

// DecodeLock parses a stored lock object.
func DecodeLock(data []byte) (Lock, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return Lock{}, err
	}
	var lock Lock
	if err := obj.DecodePayload(&lock); err != nil {
		return Lock{}, err
	}
	return lock, nil
}

// lockFileEntry is the on-disk tangram.lock shape for one dependency: a
// flat object keyed by the dependency's canonical string, per the lockfile
// format, rather than the object store's array-of-entries encoding.
type lockFileEntry struct {
	Package Identifier `json:"package"`
	Lock    Identifier `json:"lock,omitempty"`
}

type lockFile struct {
	Dependencies map[string]lockFileEntry `json:"dependencies"`
}

// MarshalJSON renders the lock in the tangram.lock on-disk format: an
// object keyed by each dependency's canonical specifier string.
func (l Lock) MarshalJSON() ([]byte, error) {
	deps := make(map[string]lockFileEntry, len(l.Dependencies))
	for _, e := range l.Dependencies {
		deps[e.Dependency.Key()] = lockFileEntry{Package: e.Package, Lock: e.Lock}
	}
	return json.Marshal(lockFile{Dependencies: deps})
}

// UnmarshalJSON parses the tangram.lock on-disk format.
func (l *Lock) UnmarshalJSON(data []byte) error {
	var lf lockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return err
	}
	entries := make([]LockEntry, 0, len(lf.Dependencies))
	for key, v := range lf.Dependencies {
		entries = append(entries, LockEntry{
			Dependency: ParseSpecifier(key),
			Package:    v.Package,
			Lock:       v.Lock,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Dependency.Key() < entries[j].Dependency.Key()
	})
	l.Dependencies = entries
	return nil
}
