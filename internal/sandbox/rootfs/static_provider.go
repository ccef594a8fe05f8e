package rootfs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// DirProvider serves static binaries from a directory laid out
// <dir>/<arch>/<name>, the simplest on-disk shape for a set of
// precompiled helper binaries. The binaries themselves are produced by a
// separate build pipeline; this module never compiles them.
type DirProvider struct {
	dir string
}

// NewDirProvider returns a StaticBinaryProvider rooted at dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// StaticBinary reads <dir>/<arch>/<name> fully into memory and returns it
// as a Reader, returning ErrNoStaticBinary if dir is unset or the file does
// not exist. Read in full rather than streamed: the interface is a plain
// io.Reader with no Close, and these binaries are small enough (a few
// hundred KB at most) that buffering the whole thing avoids leaking an
// open file descriptor per installed binary.
func (p *DirProvider) StaticBinary(arch, name string) (io.Reader, error) {
	if p.dir == "" {
		return nil, ErrNoStaticBinary
	}
	path := filepath.Join(p.dir, arch, name)
	data, err := os.ReadFile(path) //nolint:gosec // arch/name come from the sandbox's own fixed static-binary table
	if err != nil {
		if os.IsNotExist(err) {
			return nil, zerr.With(ErrNoStaticBinary, "path", path)
		}
		return nil, zerr.Wrap(err, "failed to read static binary")
	}
	return bytes.NewReader(data), nil
}
