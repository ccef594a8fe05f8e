package solver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/zerr"
	"tangram.example.dev/tangram/internal/core/domain"
)

// RegistryClient is the solver's view of the package registry: given a
// package name, it returns every published version together with the
// identifier of the checked-in package artifact for that version.
type RegistryClient interface {
	// Versions returns the published versions of name, newest first is not
	// required; the solver sorts them itself.
	Versions(name string) ([]string, error)

	// Resolve returns the package object for name at exactly version.
	Resolve(name, version string) (domain.Identifier, error)

	// Dependencies returns the direct dependency specifiers declared by the
	// package identified by id.
	Dependencies(id domain.Identifier) ([]domain.Specifier, error)
}

type publishedKey struct {
	name    string
	version string
}

// Context holds everything the solver needs beyond the working set: the
// registry client, the set of path dependencies supplied by the caller (one
// per root package being solved), and memoization caches so a given
// package's metadata and dependency list are fetched only once.
type Context struct {
	client RegistryClient

	// pathDependencies maps a path dependency's key (see Specifier.Key) to
	// the already-resolved package identifier the caller supplied for it.
	pathDependencies map[string]domain.Identifier

	publishedVersions map[string][]string
	publishedPackages map[publishedKey]domain.Identifier
	versionByID       map[domain.Identifier]string
	dependencyCache   map[domain.Identifier][]domain.Specifier
}

// NewContext builds a solving context. pathDependencies maps each path
// specifier's key to the identifier of the already checked-in package it
// refers to; the solver never asks the registry about these.
func NewContext(client RegistryClient, pathDependencies map[string]domain.Identifier) *Context {
	if pathDependencies == nil {
		pathDependencies = map[string]domain.Identifier{}
	}
	return &Context{
		client:            client,
		pathDependencies:  pathDependencies,
		publishedVersions: map[string][]string{},
		publishedPackages: map[publishedKey]domain.Identifier{},
		versionByID:       map[domain.Identifier]string{},
		dependencyCache:   map[domain.Identifier][]domain.Specifier{},
	}
}

// version returns the version string a previously resolved package
// identifier was published as, if tryResolve has seen it before.
func (c *Context) version(id domain.Identifier) (string, bool) {
	v, ok := c.versionByID[id]
	return v, ok
}

func (c *Context) isPathDependency(dep domain.Specifier) bool {
	if !dep.IsPath() {
		return false
	}
	_, ok := c.pathDependencies[dep.Key()]
	return ok
}

func (c *Context) resolvePathDependency(dep domain.Specifier) (domain.Identifier, bool) {
	id, ok := c.pathDependencies[dep.Key()]
	return id, ok
}

// matches reports whether version satisfies constraint. An empty constraint
// matches every version.
func (c *Context) matches(version, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, &Error{Kind: ErrKindSemver, Message: err.Error()}
	}
	cst, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, &Error{Kind: ErrKindSemver, Message: err.Error()}
	}
	return cst.Check(v), nil
}

// lookup returns every published version of name, sorted oldest first, and
// memoizes the raw (unfiltered) registry response. It never removes a
// version once returned: the candidate list an individual dependency edge
// consumes from is a copy scoped to that edge (see solveCase0), not this
// cache.
func (c *Context) lookup(name string) ([]string, error) {
	if versions, ok := c.publishedVersions[name]; ok {
		return versions, nil
	}
	versions, err := c.client.Versions(name)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to list versions")
	}
	sorted := append([]string(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool {
		vi, eri := semver.NewVersion(sorted[i])
		vj, erj := semver.NewVersion(sorted[j])
		if eri != nil || erj != nil {
			return sorted[i] < sorted[j]
		}
		return vi.LessThan(vj)
	})
	c.publishedVersions[name] = sorted
	return sorted, nil
}

// tryResolve pops the newest version off remaining -- a candidate list the
// caller has already filtered down to versions satisfying one specific
// dependency edge's own constraint -- and resolves it to a package
// identifier, memoizing the (name, version) -> identifier mapping. It
// returns the remaining slice with the popped candidate removed, so the
// caller can stash it on its own Frame for a future backtrack to resume
// from, and ok=false once remaining is empty.
func (c *Context) tryResolve(name string, remaining []string) (domain.Identifier, string, []string, bool, error) {
	if len(remaining) == 0 {
		return domain.Identifier{}, "", remaining, false, nil
	}

	version := remaining[len(remaining)-1]
	remaining = remaining[:len(remaining)-1]

	key := publishedKey{name: name, version: version}
	if id, ok := c.publishedPackages[key]; ok {
		return id, version, remaining, true, nil
	}
	id, err := c.client.Resolve(name, version)
	if err != nil {
		return domain.Identifier{}, "", remaining, false, zerr.Wrap(err, "failed to resolve package")
	}
	c.publishedPackages[key] = id
	c.versionByID[id] = version
	return id, version, remaining, true, nil
}

// dependencies returns the direct dependency specifiers of the package
// named by id, filtering out path-kind dependencies when id itself is a
// path dependency's package (a path dependency's own relative imports are
// resolved by the caller's checkout, not by the solver).
func (c *Context) dependencies(id domain.Identifier, idIsPathDependency bool) ([]domain.Specifier, error) {
	if cached, ok := c.dependencyCache[id]; ok {
		return cached, nil
	}
	deps, err := c.client.Dependencies(id)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to fetch package dependencies")
	}
	if idIsPathDependency {
		filtered := deps[:0:0]
		for _, d := range deps {
			if !d.IsPath() {
				filtered = append(filtered, d)
			}
		}
		deps = filtered
	}
	c.dependencyCache[id] = deps
	return deps, nil
}
