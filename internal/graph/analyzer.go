// Package graph analyzes tangram.tg module files: it collects a package's
// exported metadata and its transitive dependency set by textual scanning,
// without parsing the module as a full TypeScript AST.
package graph

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"tangram.example.dev/tangram/internal/core/domain"
	"go.trai.ch/zerr"
)

// RootModuleFileName is the canonical name of a package's root module.
const RootModuleFileName = "tangram.tg"

// Metadata is the subset of a package's exported metadata literal the
// analyzer extracts.
type Metadata struct {
	Name        string
	Version     string
	Description string
}

var (
	importRe  = regexp.MustCompile(`import\s+(?:[^'"]*\s+from\s+)?["']([^"']+)["']\s*;?`)
	metaBlock = regexp.MustCompile(`export\s+const\s+metadata\s*=\s*\{([^}]*)\}`)
	metaField = func(name string) *regexp.Regexp {
		return regexp.MustCompile(name + `\s*:\s*["']([^"']*)["']`)
	}
)

// AnalyzePackage reads the root module of the package rooted at dir,
// follows every path import transitively (staying within dir), and
// returns the root module's metadata together with the package's full
// dependency set: every registry import encountered anywhere in the
// package, plus any path import that resolves outside dir (a path
// dependency on a sibling package).
func AnalyzePackage(dir string) (Metadata, []domain.Specifier, error) {
	root := filepath.Clean(dir)

	deps := map[string]domain.Specifier{}
	visited := map[string]bool{}
	var metadata Metadata
	var visitedRoot bool

	var visit func(modulePath string) error
	visit = func(modulePath string) error {
		data, err := os.ReadFile(modulePath) //nolint:gosec // modulePath is derived from a bounded package-directory walk
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to read module"), "path", modulePath)
		}
		text := string(data)

		if !visitedRoot {
			metadata = extractMetadata(text)
			visitedRoot = true
		}

		for _, specifier := range extractImports(text) {
			if isPathSpecifier(specifier) {
				resolved := filepath.Clean(filepath.Join(filepath.Dir(modulePath), specifier))
				rel, err := filepath.Rel(root, resolved)
				if err != nil || strings.HasPrefix(rel, "..") {
					depPath := filepath.ToSlash(rel)
					spec := domain.Specifier{Path: depPath}
					deps[spec.Key()] = spec
					continue
				}

				key := filepath.ToSlash(filepath.Clean(rel))
				if visited[key] {
					continue
				}
				visited[key] = true
				if err := visit(resolved); err != nil {
					return err
				}
				continue
			}

			spec := domain.ParseSpecifier(specifier)
			deps[spec.Key()] = spec
		}
		return nil
	}

	rootModule := filepath.Join(root, RootModuleFileName)
	visited[RootModuleFileName] = true
	if err := visit(rootModule); err != nil {
		return Metadata{}, nil, err
	}

	result := make([]domain.Specifier, 0, len(deps))
	for _, d := range deps {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key() < result[j].Key() })

	return metadata, result, nil
}

func extractImports(text string) []string {
	matches := importRe.FindAllStringSubmatch(text, -1)
	specifiers := make([]string, 0, len(matches))
	for _, m := range matches {
		specifiers = append(specifiers, m[1])
	}
	return specifiers
}

func extractMetadata(text string) Metadata {
	block := metaBlock.FindStringSubmatch(text)
	if block == nil {
		return Metadata{}
	}
	body := block[1]

	field := func(name string) string {
		if m := metaField(name).FindStringSubmatch(body); m != nil {
			return m[1]
		}
		return ""
	}

	return Metadata{
		Name:        field("name"),
		Version:     field("version"),
		Description: field("description"),
	}
}

func isPathSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || strings.HasPrefix(specifier, "/")
}
