package solver

import (
	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"tangram.example.dev/tangram/internal/core/domain"
)

// Solution is the solver's persistent state: a permanent table mapping a
// resolved registry package name to its final outcome, and a partial table
// mapping every dependency edge visited so far (by Dependant.key) to its
// current mark. Both tables are immutable radix trees so that snapshotting
// a Solution into backtracking history is O(1) and never aliases mutations
// made after the snapshot was taken.
type Solution struct {
	permanent *iradix.Tree[Outcome]
	partial   *iradix.Tree[mark]
}

func emptySolution() Solution {
	return Solution{
		permanent: iradix.New[Outcome](),
		partial:   iradix.New[mark](),
	}
}

// getPermanent returns the final outcome recorded for a registry
// dependency's package name. Path dependencies never have a permanent
// entry; their identifier comes from the caller, not the solver.
func (s Solution) getPermanent(dep domain.Specifier) (Outcome, bool) {
	if dep.IsPath() {
		return Outcome{}, false
	}
	v, ok := s.permanent.Get([]byte(dep.Name))
	return v, ok
}

func (s Solution) getPartial(d Dependant) (mark, bool) {
	v, ok := s.partial.Get([]byte(d.key()))
	return v, ok
}

func (s Solution) contains(name string) bool {
	_, ok := s.permanent.Get([]byte(name))
	return ok
}

// markTemporaryFor records a tentative package choice for one dependency
// edge, without yet touching the global permanent table.
func (s Solution) markTemporaryFor(d Dependant, id domain.Identifier) Solution {
	partial, _, _ := s.partial.Insert([]byte(d.key()), mark{state: markTemporary, temp: id})
	return Solution{permanent: s.permanent, partial: partial}
}

// markPermanentFor finalizes one dependency edge's outcome. When the edge
// is a registry dependency, the package name's global permanent entry is
// updated too, so every other edge depending on the same name sees the
// same decision (Case 1/3 below).
func (s Solution) markPermanentFor(d Dependant, outcome Outcome) Solution {
	partial, _, _ := s.partial.Insert([]byte(d.key()), mark{state: markPermanent, perm: outcome})
	permanent := s.permanent
	if !d.Dependency.IsPath() {
		permanent, _, _ = permanent.Insert([]byte(d.Dependency.Name), outcome)
	}
	return Solution{permanent: permanent, partial: partial}
}

// Frame is one snapshot in the backtracking history: the solution state at
// the time the frame was pushed, the working set of dependency edges still
// to visit, and the error (if any) that most recently forced a backtrack
// into this frame.
//
// remainingVersions is the as-yet-untried candidate list for the edge at the
// back of workingSet, already filtered down to versions satisfying that
// edge's own constraint, nil until Case 0 first computes it. It belongs to
// one edge, not one package name: a different edge querying the same
// package name computes its own list from scratch, so two edges with
// different constraints never starve each other's candidates.
type Frame struct {
	solution          Solution
	workingSet        []Dependant
	remainingVersions []string
	lastError         *Error
}

// nextDependant pops the next dependency edge off the back of the working
// set, mirroring solve.rs's Vec-as-stack working set.
func (f Frame) nextDependant() (Dependant, []Dependant, bool) {
	if len(f.workingSet) == 0 {
		return Dependant{}, nil, false
	}
	last := len(f.workingSet) - 1
	return f.workingSet[last], f.workingSet[:last], true
}

// push appends dependants onto a fresh copy of the working set, so no
// mutation through the returned slice can ever reach a historical frame.
func push(workingSet []Dependant, dependants ...Dependant) []Dependant {
	fresh := make([]Dependant, len(workingSet), len(workingSet)+len(dependants))
	copy(fresh, workingSet)
	return append(fresh, dependants...)
}

// tryBacktrack is a literal port of solve.rs's try_backtrack: it walks the
// history from the front, counting frames whose solution does not yet
// contain a permanent entry for name, and returns the first frame at that
// count, with lastError set to err. It returns ok=false once that count
// reaches or exceeds len(history): no earlier frame can absorb the
// conflict and the solve has genuinely failed.
func tryBacktrack(history []Frame, name string, err *Error) (Frame, bool) {
	idx := 0
	for idx < len(history) && !history[idx].solution.contains(name) {
		idx++
	}
	if idx >= len(history) {
		return Frame{}, false
	}
	frame := history[idx]
	frame.lastError = err
	return frame, true
}

// solveInner runs the Case 0-3 state machine described by spec section
// 4.5.3 to exhaustion: every dependency edge in the working set is visited
// until none remain, at which point the frame's solution holds a final
// outcome, permanent error included, for every edge ever considered.
func solveInner(ctx *Context, root Frame) (Solution, error) {
	history := []Frame{root}
	current := root

	for {
		dependant, rest, hasNext := current.nextDependant()
		if !hasNext {
			return current.solution, nil
		}

		permanent, hasPermanent := current.solution.getPermanent(dependant.Dependency)
		partial, hasPartial := current.solution.getPartial(dependant)

		var next Frame
		var err error
		switch {
		case !hasPermanent && !hasPartial:
			// Case 0: first time this edge has been considered. This is the
			// solver's only choice point, so it alone may grow history (and
			// only on success: a frame that fails to find any candidate at
			// all has nothing a future backtrack could resume from).
			next, history, err = solveCase0(ctx, dependant, current, rest, history)

		case hasPermanent && !hasPartial:
			// Case 1: some other edge already settled this package name.
			next, err = solveCase1(ctx, dependant, permanent, current, rest, history)

		case hasPartial && partial.state == markTemporary:
			// Case 2: this edge's candidate is tentative; check whether its
			// own children have all settled.
			next, err = solveCase2(ctx, dependant, partial.temp, current, rest, history)

		default:
			// Case 3: already permanent for this exact edge. Nothing to do.
			next = Frame{solution: current.solution, workingSet: rest, lastError: current.lastError}
		}

		if err != nil {
			return Solution{}, err
		}
		current = next
	}
}

// solveCase0 picks a first candidate for a never-before-seen dependency
// edge: path dependencies resolve immediately to the caller-supplied
// identifier; registry dependencies pop the newest candidate off this
// edge's own remaining-versions list (computed fresh, filtered by this
// edge's constraint, the first time the edge is seen), mark it temporary,
// and push the edge back onto the working set behind its own children so
// the children are visited (and themselves resolved) before this edge is
// revisited in Case 2.
//
// On success it appends to history the pre-decision frame -- current,
// unchanged, except remainingVersions now holds the untried candidates left
// after this pop. That is the only frame a later backtrack into this same
// choice point can resume from; every other case leaves history untouched.
func solveCase0(ctx *Context, dependant Dependant, current Frame, rest []Dependant, history []Frame) (Frame, []Frame, error) {
	if ctx.isPathDependency(dependant.Dependency) {
		id, _ := ctx.resolvePathDependency(dependant.Dependency)
		solution := current.solution.markPermanentFor(dependant, ok(id))
		return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, history, nil
	}

	remaining := current.remainingVersions
	if remaining == nil {
		all, err := ctx.lookup(dependant.Dependency.Name)
		if err != nil {
			return Frame{}, history, err
		}
		filtered := make([]string, 0, len(all))
		for _, v := range all {
			matched, err := ctx.matches(v, dependant.Dependency.Constraint)
			if err != nil {
				return Frame{}, history, err
			}
			if matched {
				filtered = append(filtered, v)
			}
		}
		remaining = filtered
	}

	id, _, remaining, found, err := ctx.tryResolve(dependant.Dependency.Name, remaining)
	if err != nil {
		return Frame{}, history, err
	}
	if !found {
		solveErr := &Error{Kind: ErrKindPackageDoesNotExist, Package: dependant.Dependency.Name}
		if back, ok := tryBacktrack(history, dependant.Dependency.Name, solveErr); ok {
			return back, history, nil
		}
		solution := current.solution.markPermanentFor(dependant, fail(solveErr))
		return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, history, nil
	}

	history = append(history, Frame{
		solution:          current.solution,
		workingSet:        current.workingSet,
		remainingVersions: remaining,
		lastError:         current.lastError,
	})

	solution := current.solution.markTemporaryFor(dependant, id)
	deps, err := ctx.dependencies(id, false)
	if err != nil {
		return Frame{}, history, err
	}

	children := make([]Dependant, 0, len(deps))
	for _, d := range deps {
		children = append(children, Dependant{Package: id, Dependency: d})
	}

	workingSet := push(rest, dependant)
	workingSet = push(workingSet, children...)

	return Frame{solution: solution, workingSet: workingSet, lastError: current.lastError}, history, nil
}

// solveCase1 handles an edge whose package name already has a global
// permanent decision from resolving some other edge first. If the decided
// version satisfies this edge's own constraint, the decision is adopted
// for this edge too (1.1). If the global decision is itself an error, it
// propagates unchanged (1.2). If the version does not satisfy this edge's
// constraint, the conflict is reported and, if possible, backtracked (1.3).
func solveCase1(ctx *Context, dependant Dependant, permanent Outcome, current Frame, rest []Dependant, history []Frame) (Frame, error) {
	// 1.2: the name was already decided as an error elsewhere; propagate.
	if permanent.isErr() {
		solution := current.solution.markPermanentFor(dependant, permanent)
		return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, nil
	}

	version, _ := ctx.version(permanent.Package)
	matched, err := ctx.matches(version, dependant.Dependency.Constraint)
	if err != nil {
		return Frame{}, err
	}

	// 1.1: the globally decided version also satisfies this edge.
	if matched {
		solution := current.solution.markPermanentFor(dependant, permanent)
		return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, nil
	}

	// 1.3: the globally decided version conflicts with this edge's own
	// constraint. Report it and try to backtrack past whichever frame
	// first decided the name.
	solveErr := &Error{
		Kind:            ErrKindVersionConflict,
		Package:         dependant.Dependency.Name,
		PreviousVersion: version,
	}
	if back, ok := tryBacktrack(history, dependant.Dependency.Name, solveErr); ok {
		return back, nil
	}
	solution := current.solution.markPermanentFor(dependant, fail(solveErr))
	return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, nil
}

// solveCase2 handles an edge whose own candidate is still tentative: it
// inspects the candidate package's direct dependency edges. If every one
// of them has settled permanently and successfully, the candidate is
// promoted to a permanent success. If any settled with an error, or if a
// cycle has left one of them still temporary, the candidate is rejected
// and the solver attempts to backtrack past it.
func solveCase2(ctx *Context, dependant Dependant, candidate domain.Identifier, current Frame, rest []Dependant, history []Frame) (Frame, error) {
	deps, err := ctx.dependencies(candidate, ctx.isPathDependency(dependant.Dependency))
	if err != nil {
		return Frame{}, err
	}

	var erroneous []ErroneousDependency
	allSettled := true
	for _, d := range deps {
		child := Dependant{Package: candidate, Dependency: d}
		m, hasMark := current.solution.getPartial(child)
		if !hasMark {
			// Children are pushed ahead of their parent (see solveCase0), so
			// this only happens before the child has been visited even
			// once; re-queue the parent behind it.
			allSettled = false
			continue
		}
		if m.state == markTemporary {
			// A child still tentative while its parent is revisited means
			// the child's own resolution loops back to this candidate: a
			// genuine dependency cycle, not a transient ordering gap.
			erroneous = append(erroneous, ErroneousDependency{
				Dependency: d,
				Err:        &Error{Kind: ErrKindCycleExists, Dependant: &child},
			})
			continue
		}
		if m.perm.isErr() {
			erroneous = append(erroneous, ErroneousDependency{Dependency: d, Err: m.perm.Err})
		}
	}

	if len(erroneous) == 0 && allSettled {
		solution := current.solution.markPermanentFor(dependant, ok(candidate))
		return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, nil
	}
	if !allSettled {
		// Children not all visited yet: put this edge back behind them.
		return Frame{solution: current.solution, workingSet: push(rest, dependant), lastError: current.lastError}, nil
	}

	solveErr := &Error{
		Kind:                  ErrKindBacktrack,
		Package:                dependant.Dependency.Name,
		ErroneousDependencies:  erroneous,
	}
	if back, ok := tryBacktrack(history, dependant.Dependency.Name, solveErr); ok {
		return back, nil
	}
	solution := current.solution.markPermanentFor(dependant, fail(solveErr))
	return Frame{solution: solution, workingSet: rest, lastError: current.lastError}, nil
}

// Solve resolves every dependency of roots (the root packages being
// solved) plus their transitive registry dependencies, and assembles a
// Lock for each root. pathDependencies supplies the already-resolved
// package identifier for every path dependency reachable from the roots;
// the solver never contacts the registry for those.
func Solve(ctx *Context, roots []domain.Specifier) (map[string]domain.Identifier, *Report, error) {
	workingSet := make([]Dependant, 0, len(roots))
	for _, root := range roots {
		workingSet = append(workingSet, Dependant{Dependency: root})
	}

	root := Frame{solution: emptySolution(), workingSet: workingSet}
	solution, err := solveInner(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	results := make(map[string]domain.Identifier, len(roots))
	var report Report
	for _, spec := range roots {
		if ctx.isPathDependency(spec) {
			id, _ := ctx.resolvePathDependency(spec)
			results[spec.Key()] = id
			continue
		}
		outcome, ok := solution.getPermanent(spec)
		if !ok || outcome.isErr() {
			var solveErr *Error
			if ok {
				solveErr = outcome.Err
			} else {
				solveErr = &Error{Kind: ErrKindOther, Message: "dependency was never resolved"}
			}
			report.Errors = append(report.Errors, ReportEntry{Dependency: spec, Err: solveErr})
			continue
		}
		results[spec.Key()] = outcome.Package
	}

	if len(report.Errors) > 0 {
		return nil, &report, nil
	}
	return results, nil, nil
}
