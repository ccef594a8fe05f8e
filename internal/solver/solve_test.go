package solver_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/solver"
)

// fakeRegistry is an in-memory RegistryClient over a fixed package graph,
// grounded on the mock registry client solve.rs's own test suite uses:
// every package version declares its dependencies as name@constraint pairs.
type fakeRegistry struct {
	// packages[name][version] = list of "name@constraint" dependency keys.
	packages map[string]map[string][]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{packages: map[string]map[string][]string{}}
}

func (r *fakeRegistry) add(name, version string, deps ...string) *fakeRegistry {
	if r.packages[name] == nil {
		r.packages[name] = map[string][]string{}
	}
	r.packages[name][version] = deps
	return r
}

func (r *fakeRegistry) id(name, version string) domain.Identifier {
	return domain.NewIdentifier(domain.KindPackage, []byte(name+"@"+version))
}

func (r *fakeRegistry) Versions(name string) ([]string, error) {
	versions := r.packages[name]
	if versions == nil {
		return nil, fmt.Errorf("no such package: %s", name)
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	return out, nil
}

func (r *fakeRegistry) Resolve(name, version string) (domain.Identifier, error) {
	if _, ok := r.packages[name][version]; !ok {
		return domain.Identifier{}, fmt.Errorf("no such version: %s@%s", name, version)
	}
	return r.id(name, version), nil
}

func (r *fakeRegistry) Dependencies(id domain.Identifier) ([]domain.Specifier, error) {
	for name, versions := range r.packages {
		for version, deps := range versions {
			if r.id(name, version) == id {
				specs := make([]domain.Specifier, 0, len(deps))
				for _, d := range deps {
					specs = append(specs, domain.ParseSpecifier(d))
				}
				return specs, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown package id")
}

func resolveAll(t *testing.T, registry *fakeRegistry, roots ...string) (map[string]domain.Identifier, *solver.Report) {
	t.Helper()
	ctx := solver.NewContext(registry, nil)
	specs := make([]domain.Specifier, len(roots))
	for i, r := range roots {
		specs[i] = domain.ParseSpecifier(r)
	}
	result, report, err := solver.Solve(ctx, specs)
	require.NoError(t, err)
	return result, report
}

func TestSolve_SimpleDiamond(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry().
		add("a", "1.0.0", "b@^1.0.0", "c@^1.0.0").
		add("b", "1.0.0", "d@^1.0.0").
		add("c", "1.0.0", "d@^1.0.0").
		add("d", "1.0.0")

	result, report := resolveAll(t, registry, "a@^1.0.0")
	require.Nil(t, report)
	require.Contains(t, result, "a@^1.0.0")
	assert.Equal(t, registry.id("a", "1.0.0"), result["a@^1.0.0"])
}

func TestSolve_BacktracksToCompatibleVersion(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry().
		add("a", "1.0.0", "b@^1.0.0", "c@^1.0.0").
		add("b", "1.0.0", "d@^2.0.0").
		add("c", "1.0.0", "d@^1.0.0").
		add("d", "1.0.0").
		add("d", "2.0.0")

	result, report := resolveAll(t, registry, "a@^1.0.0")
	require.Nil(t, report)
	require.Contains(t, result, "a@^1.0.0")
}

func TestSolve_NoCompatibleVersionReportsConflict(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry().
		add("a", "1.0.0", "b@^1.0.0", "c@^1.0.0").
		add("b", "1.0.0", "d@1.0.0").
		add("c", "1.0.0", "d@2.0.0").
		add("d", "1.0.0").
		add("d", "2.0.0")

	_, report := resolveAll(t, registry, "a@^1.0.0")
	require.NotNil(t, report)
	require.NotEmpty(t, report.Errors)
}

func TestSolve_PathDependencyBypassesRegistry(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry().add("a", "1.0.0")
	pathID := domain.NewIdentifier(domain.KindPackage, []byte("local-sibling"))

	ctx := solver.NewContext(registry, map[string]domain.Identifier{
		"./sibling": pathID,
	})
	result, report, err := solver.Solve(ctx, []domain.Specifier{{Path: "./sibling"}})
	require.NoError(t, err)
	require.Nil(t, report)
	assert.Equal(t, pathID, result["./sibling"])
}

// TestSolve_ConcurrentEdgesWithDisjointConstraintsDoNotStarveEachOther
// mirrors the diamond from the solver's own design notes: b and c both
// depend on d, but with disjoint version constraints, so no single d can
// satisfy both and the solve must report a version conflict. Before
// remainingVersions was scoped per dependency edge, whichever edge reached
// d first would pop-and-discard every version failing *its own*
// constraint from a list shared by package name, so the second edge could
// see an already-depleted candidate list and fail with the wrong error
// (package does not exist) instead of a properly diagnosed conflict.
func TestSolve_ConcurrentEdgesWithDisjointConstraintsDoNotStarveEachOther(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry().
		add("a", "1.0.0", "b@^1.0.0", "c@^1.0.0").
		add("b", "1.0.0", "d@<1.2.0").
		add("c", "1.0.0", "d@>1.3.0").
		add("d", "1.0.0").
		add("d", "1.1.0").
		add("d", "1.2.0").
		add("d", "1.3.0").
		add("d", "1.4.0")

	ctx := solver.NewContext(registry, nil)
	_, report, err := solver.Solve(ctx, []domain.Specifier{domain.ParseSpecifier("a@^1.0.0")})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.NotEmpty(t, report.Errors)
	for _, entry := range report.Errors {
		assert.NotEqual(t, solver.ErrKindPackageDoesNotExist, entry.Err.Kind,
			"a disjoint-constraint conflict on an existing package must be diagnosed as a version conflict, not reported as a missing package")
	}
}

func TestSolve_Deterministic(t *testing.T) {
	t.Parallel()

	registry := newFakeRegistry().
		add("a", "1.0.0", "b@^1.0.0").
		add("b", "1.0.0")

	first, _ := resolveAll(t, registry, "a@^1.0.0")
	second, _ := resolveAll(t, registry, "a@^1.0.0")
	assert.Equal(t, first, second)
}
