package graph

import (
	"sort"
	"strings"

	"tangram.example.dev/tangram/internal/core/domain"
	"go.trai.ch/zerr"
)

// PackageGraph tracks path-dependency edges between package directories, so
// a cycle of packages depending on each other by relative path can be
// detected before it reaches the solver. The cycle-detection algorithm
// mirrors domain.Graph's: a three-state visited map plus an explicit path
// for reporting, retargeted from tasks to package directories.
type PackageGraph struct {
	edges map[string][]string
	order []string
}

// NewPackageGraph returns an empty graph.
func NewPackageGraph() *PackageGraph {
	return &PackageGraph{edges: make(map[string][]string)}
}

// AddEdge records that pkg has a path dependency on dep.
func (g *PackageGraph) AddEdge(pkg, dep string) {
	if _, ok := g.edges[pkg]; !ok {
		g.order = append(g.order, pkg)
	}
	g.edges[pkg] = append(g.edges[pkg], dep)
}

const (
	stateUnvisited = 0
	stateVisiting  = 1
	stateVisited   = 2
)

// Validate detects cycles among the recorded path-dependency edges.
func (g *PackageGraph) Validate() error {
	state := make(map[string]int, len(g.order))
	var path []string

	var visit func(pkg string) error
	visit = func(pkg string) error {
		switch state[pkg] {
		case stateVisited:
			return nil
		case stateVisiting:
			return zerr.With(domain.ErrModuleCycle, "path", strings.Join(append(append([]string{}, path...), pkg), " -> "))
		}

		state[pkg] = stateVisiting
		path = append(path, pkg)

		deps := append([]string(nil), g.edges[pkg]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[pkg] = stateVisited
		return nil
	}

	pkgs := append([]string(nil), g.order...)
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		if err := visit(pkg); err != nil {
			return err
		}
	}
	return nil
}
