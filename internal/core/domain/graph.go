package domain

import (
	"iter"
	"sort"

	"go.trai.ch/zerr"
)

// Graph is the task dependency graph loaded from a samefile or workfile.
// It is also reused by the module graph analyzer (C5) to represent
// tangram.tg import edges, with Task standing in for a module.
type Graph struct {
	root  string
	tasks map[InternedString]*Task
	order []InternedString
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		tasks: make(map[InternedString]*Task),
	}
}

// SetRoot sets the graph's root directory.
func (g *Graph) SetRoot(root string) {
	g.root = root
}

// Root returns the graph's root directory.
func (g *Graph) Root() string {
	return g.root
}

// AddTask registers a task under its name. Returns ErrTaskAlreadyExists on
// a duplicate name.
func (g *Graph) AddTask(t *Task) error {
	if _, exists := g.tasks[t.Name]; exists {
		return zerr.With(ErrTaskAlreadyExists, "name", t.Name.String())
	}
	g.tasks[t.Name] = t
	g.order = append(g.order, t.Name)
	return nil
}

// GetTask looks up a task by name.
func (g *Graph) GetTask(name InternedString) (*Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// TaskCount returns the number of registered tasks.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// Dependents returns the tasks that directly depend on t.
func (g *Graph) Dependents(t *Task) []*Task {
	var out []*Task
	for _, name := range g.order {
		candidate := g.tasks[name]
		for _, dep := range candidate.Dependencies {
			if dep == t.Name {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// Validate checks that every dependency resolves to a known task and that
// the graph contains no cycles, and computes the topological execution
// order consumed by Walk.
func (g *Graph) Validate() error {
	for _, name := range g.order {
		t := g.tasks[name]
		for _, dep := range t.Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return zerr.With(ErrMissingDependency, "task", name.String(), "dependency", dep.String())
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[InternedString]int, len(g.tasks))
	var order []InternedString
	var path []string

	names := make([]InternedString, 0, len(g.tasks))
	names = append(names, g.order...)
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })

	var visit func(name InternedString) error
	visit = func(name InternedString) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return zerr.With(ErrCycleDetected, "path", joinCycle(path, name.String()))
		}

		state[name] = visiting
		path = append(path, name.String())

		t := g.tasks[name]
		deps := make([]InternedString, len(t.Dependencies))
		copy(deps, t.Dependencies)
		sort.Slice(deps, func(i, j int) bool { return deps[i].String() < deps[j].String() })
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}

	g.order = order
	return nil
}

func joinCycle(path []string, closing string) string {
	out := ""
	for _, p := range path {
		out += p + "->"
	}
	return out + closing
}

// Walk iterates tasks in the topological order computed by Validate.
func (g *Graph) Walk() iter.Seq[*Task] {
	return func(yield func(*Task) bool) {
		for _, name := range g.order {
			if !yield(g.tasks[name]) {
				return
			}
		}
	}
}
