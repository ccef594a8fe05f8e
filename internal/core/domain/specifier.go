package domain

import "strings"

// Specifier names a dependency as written in a package's tangram.tg module:
// either a relative path to a sibling package, or a registry name with an
// optional semver constraint.
type Specifier struct {
	Path       string `json:"path,omitempty"`
	Name       string `json:"name,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// IsPath reports whether this specifier names a path dependency rather than
// a registry dependency.
func (s Specifier) IsPath() bool {
	return s.Path != ""
}

// Key returns the canonical string form of the specifier, used both as the
// lockfile's dependency key and for de-duplicating registry versions during
// solving.
func (s Specifier) Key() string {
	if s.IsPath() {
		return s.Path
	}
	if s.Constraint == "" {
		return s.Name
	}
	return s.Name + "@" + s.Constraint
}

// ParseSpecifier parses a dependency key of the form produced by Key back
// into a Specifier. A leading "./" or "../" marks a path dependency.
func ParseSpecifier(key string) Specifier {
	if strings.HasPrefix(key, "./") || strings.HasPrefix(key, "../") || strings.HasPrefix(key, "/") {
		return Specifier{Path: key}
	}
	if name, constraint, ok := strings.Cut(key, "@"); ok {
		return Specifier{Name: name, Constraint: constraint}
	}
	return Specifier{Name: key}
}
