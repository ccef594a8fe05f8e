package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/xattr"
	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	executableFilePerm = 0o755
	regularFilePerm    = 0o644
)

// artifactIDXattr records, on every checked-out path, the identifier it was
// materialized from, so a later check-out of the same identifier can leave
// an up-to-date path untouched instead of rewriting it.
const artifactIDXattr = "user.tangram.id"

// CheckOut materializes the artifact named by id onto disk at dest,
// recursively reconstructing directories, files, and symlinks from store.
// If dest already holds the same artifact, it is left untouched; otherwise
// any existing entry is removed first.
func CheckOut(store ports.ObjectStore, id domain.Identifier, dest string) error {
	if existing, ok := existingArtifactID(dest); ok && existing == id {
		return nil
	}
	if _, err := os.Lstat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return zerr.Wrap(err, "failed to remove stale checkout path")
		}
	}

	if err := checkoutByKind(store, id, dest); err != nil {
		return err
	}
	if err := xattr.LSet(dest, artifactIDXattr, []byte(id.String())); err != nil && !isXattrUnsupported(err) {
		return zerr.Wrap(err, "failed to write artifact id xattr")
	}
	return nil
}

// isXattrUnsupported reports whether err indicates the underlying path
// (e.g. a symlink on some platforms) does not support extended attributes;
// such paths are still valid checkouts, just not reuse-detectable.
func isXattrUnsupported(err error) bool {
	return xattr.IsNotExist(err) || errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EPERM)
}

func existingArtifactID(dest string) (domain.Identifier, bool) {
	raw, err := xattr.LGet(dest, artifactIDXattr)
	if err != nil {
		return domain.Identifier{}, false
	}
	id, err := domain.ParseIdentifier(string(raw))
	if err != nil {
		return domain.Identifier{}, false
	}
	return id, true
}

func checkoutByKind(store ports.ObjectStore, id domain.Identifier, dest string) error {
	switch id.Kind() {
	case domain.KindDirectory:
		return checkoutDirectory(store, id, dest)
	case domain.KindFile:
		return checkoutFile(store, id, dest)
	case domain.KindSymlink:
		return checkoutSymlink(store, id, dest)
	default:
		return zerr.With(domain.ErrInvalidKind, "kind", id.Kind().String())
	}
}

func checkoutDirectory(store ports.ObjectStore, id domain.Identifier, dest string) error {
	data, err := store.Get(id)
	if err != nil {
		return err
	}
	if data == nil {
		return zerr.With(domain.ErrNotFound, "id", id.String())
	}
	dir, err := domain.DecodeDirectory(data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create checkout directory")
	}

	for _, entry := range dir.Entries {
		if err := CheckOut(store, entry.Artifact, filepath.Join(dest, entry.Name)); err != nil {
			return err
		}
	}
	return nil
}

func checkoutFile(store ports.ObjectStore, id domain.Identifier, dest string) error {
	data, err := store.Get(id)
	if err != nil {
		return err
	}
	if data == nil {
		return zerr.With(domain.ErrNotFound, "id", id.String())
	}
	file, err := domain.DecodeFile(data)
	if err != nil {
		return err
	}

	reader, err := domain.NewBlobReader(func(blobID domain.Identifier) ([]byte, error) {
		return store.Get(blobID)
	}, file.Contents)
	if err != nil {
		return err
	}

	perm := os.FileMode(regularFilePerm)
	if file.Executable {
		perm = executableFilePerm
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec // dest is derived from a checked-out artifact tree
	if err != nil {
		return zerr.Wrap(err, "failed to create checkout file")
	}
	defer out.Close() //nolint:errcheck // best effort close in defer

	buf := make([]byte, domain.MaxLeafSize)
	if _, err := io.CopyBuffer(out, reader, buf); err != nil {
		return zerr.Wrap(err, "failed to write checkout file contents")
	}

	if len(file.References) > 0 {
		refs := make([]string, len(file.References))
		for i, r := range file.References {
			refs[i] = r.String()
		}
		if err := xattr.Set(dest, referenceXattr, []byte(strings.Join(refs, ","))); err != nil {
			return zerr.Wrap(err, "failed to write reference xattr")
		}
	}
	return nil
}

func checkoutSymlink(store ports.ObjectStore, id domain.Identifier, dest string) error {
	data, err := store.Get(id)
	if err != nil {
		return err
	}
	if data == nil {
		return zerr.With(domain.ErrNotFound, "id", id.String())
	}
	sym, err := domain.DecodeSymlink(data)
	if err != nil {
		return err
	}

	target, err := sym.Target.Render(
		func(string) (string, bool) { return "", false },
		func(refID domain.Identifier) (string, error) {
			return domain.ArtifactCheckoutPath(refID), nil
		},
	)
	if err != nil {
		return err
	}

	if err := os.Symlink(target, dest); err != nil {
		return zerr.Wrap(err, "failed to create checkout symlink")
	}
	return nil
}
