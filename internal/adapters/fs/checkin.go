package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/xattr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/core/ports"
	"go.trai.ch/zerr"
)

// referenceXattr is the extended attribute name a checked-in file's foreign
// artifact references (e.g. symlinks rewritten to point into the store) are
// recorded under, so checkout can restore them verbatim.
const referenceXattr = "user.tangram"

// fdBudget caps the number of files checkin holds open concurrently.
const fdBudget = 16

// CheckIn walks root with walker, builds a domain.Artifact tree matching the
// directory's contents, writes every object into store, and returns the
// identifier of the resulting root artifact.
func CheckIn(ctx context.Context, store ports.ObjectStore, walker *Walker, root string, ignores []string) (domain.Identifier, error) {
	var relPaths []string
	for path := range walker.WalkFiles(root, ignores) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return domain.Identifier{}, zerr.Wrap(err, "failed to relativize checkin path")
		}
		relPaths = append(relPaths, rel)
	}

	fileArtifacts := make(map[string]domain.Identifier, len(relPaths))
	var mu sync.Mutex

	sem := semaphore.NewWeighted(fdBudget)
	g, gctx := errgroup.WithContext(ctx)
	for _, rel := range relPaths {
		rel := rel
		if err := sem.Acquire(gctx, 1); err != nil {
			return domain.Identifier{}, zerr.Wrap(err, "failed to acquire fd budget")
		}
		g.Go(func() error {
			defer sem.Release(1)
			id, err := checkinEntry(store, filepath.Join(root, rel))
			if err != nil {
				return zerr.With(err, "path", rel)
			}
			mu.Lock()
			fileArtifacts[rel] = id
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Identifier{}, err
	}

	return assembleDirectoryTree(store, fileArtifacts)
}

// checkinEntry builds and stores the artifact for a single filesystem entry
// (regular file or symlink).
func checkinEntry(store ports.ObjectStore, path string) (domain.Identifier, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to lstat checkin entry")
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return domain.Identifier{}, zerr.Wrap(err, "failed to read symlink target")
		}
		tmpl := symlinkTemplate(target)
		id, data, err := domain.EncodeSymlink(tmpl)
		if err != nil {
			return domain.Identifier{}, err
		}
		if _, err := store.Put(id, data); err != nil {
			return domain.Identifier{}, err
		}
		return id, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from a bounded checkin walk
	if err != nil {
		return domain.Identifier{}, zerr.Wrap(err, "failed to read checkin file")
	}

	nodes, blobRoot, err := domain.BuildBlobTree(data)
	if err != nil {
		return domain.Identifier{}, err
	}
	for _, n := range nodes {
		if _, err := store.Put(n.ID, n.Data); err != nil {
			return domain.Identifier{}, err
		}
	}

	references, err := readReferenceXattr(path)
	if err != nil {
		return domain.Identifier{}, err
	}

	executable := info.Mode()&0o111 != 0
	id, objData, err := domain.EncodeFile(blobRoot, executable, references)
	if err != nil {
		return domain.Identifier{}, err
	}
	missing, err := store.Put(id, objData)
	if err != nil {
		return domain.Identifier{}, err
	}
	if len(missing) > 0 {
		return domain.Identifier{}, zerr.With(domain.ErrMissingChildren, "path", path, "missing", len(missing))
	}
	return id, nil
}

// symlinkTemplate rewrites a symlink target into a template. A target that
// points inside the managed artifacts directory is re-encoded as an
// artifact reference plus the literal suffix after the artifact id, so
// check-out can re-home it wherever the artifact ends up materialized
// next time; anything else is kept as a literal string.
func symlinkTemplate(target string) domain.Template {
	artifactsDir := domain.DefaultArtifactsPath()
	if !filepath.IsAbs(target) || !strings.HasPrefix(target, artifactsDir+string(filepath.Separator)) {
		return domain.Template{{Kind: domain.TemplateLiteral, Literal: target}}
	}

	rest := strings.TrimPrefix(target, artifactsDir+string(filepath.Separator))
	idHex, suffix, _ := strings.Cut(rest, string(filepath.Separator))
	id, err := domain.ParseIdentifier(idHex)
	if err != nil {
		return domain.Template{{Kind: domain.TemplateLiteral, Literal: target}}
	}

	tmpl := domain.Template{{Kind: domain.TemplateArtifactRef, Artifact: id}}
	if suffix != "" {
		tmpl = append(tmpl, domain.TemplateComponent{Kind: domain.TemplateLiteral, Literal: string(filepath.Separator) + suffix})
	}
	return tmpl
}

// readReferenceXattr reads the user.tangram extended attribute, if set, and
// parses it as a comma-separated list of object identifiers.
func readReferenceXattr(path string) ([]domain.Identifier, error) {
	raw, err := xattr.Get(path, referenceXattr)
	if err != nil {
		if xattr.IsNotExist(err) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, "failed to read reference xattr")
	}
	if len(raw) == 0 {
		return nil, nil
	}

	parts := strings.Split(string(raw), ",")
	refs := make([]domain.Identifier, 0, len(parts))
	for _, p := range parts {
		id, err := domain.ParseIdentifier(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		refs = append(refs, id)
	}
	return refs, nil
}

// assembleDirectoryTree builds and stores domain.Directory objects
// bottom-up from a flat map of relative file path to its artifact, and
// returns the identifier of the root directory.
func assembleDirectoryTree(store ports.ObjectStore, fileArtifacts map[string]domain.Identifier) (domain.Identifier, error) {
	childDirs := map[string]map[string]bool{}
	fileEntries := map[string][]domain.DirectoryEntry{}

	addDir := func(dir string) {
		if _, ok := childDirs[dir]; !ok {
			childDirs[dir] = map[string]bool{}
		}
	}
	addDir(".")

	for rel, id := range fileArtifacts {
		dir := filepath.Dir(rel)
		if dir == "" {
			dir = "."
		}
		fileEntries[dir] = append(fileEntries[dir], domain.DirectoryEntry{Name: filepath.Base(rel), Artifact: id})

		for d := dir; d != "."; d = filepath.Dir(d) {
			parent := filepath.Dir(d)
			if parent == "" {
				parent = "."
			}
			addDir(parent)
			childDirs[parent][d] = true
			addDir(d)
		}
	}

	var build func(dir string) (domain.Identifier, error)
	build = func(dir string) (domain.Identifier, error) {
		entries := append([]domain.DirectoryEntry(nil), fileEntries[dir]...)
		for child := range childDirs[dir] {
			id, err := build(child)
			if err != nil {
				return domain.Identifier{}, err
			}
			entries = append(entries, domain.DirectoryEntry{Name: filepath.Base(child), Artifact: id})
		}

		id, data, err := domain.EncodeDirectory(entries)
		if err != nil {
			return domain.Identifier{}, err
		}
		if _, err := store.Put(id, data); err != nil {
			return domain.Identifier{}, err
		}
		return id, nil
	}

	return build(".")
}
