// Package solver resolves a consistent set of registry package versions for
// a workspace, backtracking over conflicting constraints until every
// dependency edge is satisfied or proven unsatisfiable.
package solver

import (
	"fmt"

	"tangram.example.dev/tangram/internal/core/domain"
)

// Dependant names one dependency edge in the working set: the package that
// declared the dependency, and the specifier it used.
type Dependant struct {
	Package    domain.Identifier
	Dependency domain.Specifier
}

func (d Dependant) key() string {
	return d.Package.String() + "\x00" + d.Dependency.Key()
}

// ErrorKind classifies why an edge could not be resolved.
type ErrorKind int

const (
	ErrKindPackageDoesNotExist ErrorKind = iota
	ErrKindVersionConflict
	ErrKindCycleExists
	ErrKindBacktrack
	ErrKindSemver
	ErrKindOther
)

// Error is the solver's structured failure, rich enough to format the
// report described by spec's error taxonomy.
type Error struct {
	Kind ErrorKind

	// Set for ErrKindCycleExists.
	Dependant *Dependant

	// Set for ErrKindBacktrack.
	Package               string
	PreviousVersion       string
	ErroneousDependencies []ErroneousDependency

	Message string
}

// ErroneousDependency pairs a dependency specifier with the error one of its
// candidate's children produced, used by ErrKindBacktrack.
type ErroneousDependency struct {
	Dependency domain.Specifier
	Err        *Error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindPackageDoesNotExist:
		return "no package by that name exists in the registry"
	case ErrKindVersionConflict:
		return "no version could be found that satisfies all constraints"
	case ErrKindCycleExists:
		return "a package cycle exists"
	case ErrKindBacktrack:
		return fmt.Sprintf("backtracked from %s@%s: %d erroneous dependencies", e.Package, e.PreviousVersion, len(e.ErroneousDependencies))
	case ErrKindSemver:
		return "semver error: " + e.Message
	default:
		return "solve error: " + e.Message
	}
}

// Outcome is the final fate of a resolved edge or package name: either a
// chosen package identifier, or the reason none could be chosen.
type Outcome struct {
	Package domain.Identifier
	Err     *Error
}

func ok(id domain.Identifier) Outcome { return Outcome{Package: id} }
func fail(err *Error) Outcome         { return Outcome{Err: err} }
func (o Outcome) isErr() bool         { return o.Err != nil }

type markState int

const (
	markTemporary markState = iota
	markPermanent
)

// mark is the state of one partial-solution entry: a tentative package
// choice awaiting its children, or a final outcome.
type mark struct {
	state markState
	temp  domain.Identifier
	perm  Outcome
}
