package solver

import (
	"fmt"
	"strings"

	"tangram.example.dev/tangram/internal/core/domain"
)

// ReportEntry pairs a root dependency that could not be resolved with the
// error the solver produced for it.
type ReportEntry struct {
	Dependency domain.Specifier
	Err        *Error
}

// Report collects every unresolved root dependency from a failed solve, so
// a caller can print all conflicts at once instead of stopping at the
// first one.
type Report struct {
	Errors []ReportEntry
}

// String formats the report the way the original solver's Display impl
// does: one line per failed dependency, naming the package and constraint
// that could not be satisfied and why.
func (r *Report) String() string {
	var b strings.Builder
	for i, entry := range r.Errors {
		if i > 0 {
			b.WriteString("\n")
		}
		writeEntry(&b, entry.Dependency, entry.Err)
	}
	return b.String()
}

func writeEntry(b *strings.Builder, dep domain.Specifier, err *Error) {
	switch err.Kind {
	case ErrKindCycleExists:
		name, version := "", ""
		if err.Dependant != nil {
			name = err.Dependant.Dependency.Name
			version = err.Dependant.Dependency.Constraint
		}
		fmt.Fprintf(b, "%s requires %s, but %s @ %s is part of a cycle", dep.Key(), dep.Key(), name, version)
	case ErrKindBacktrack:
		fmt.Fprintf(b, "%s @ %s requires %s, but no compatible version could be found:", err.Package, err.PreviousVersion, dep.Key())
		for _, ed := range err.ErroneousDependencies {
			fmt.Fprintf(b, "\n  - %s: %s", ed.Dependency.Key(), ed.Err.Error())
		}
	default:
		fmt.Fprintf(b, "%s: %s", dep.Key(), err.Error())
	}
}
