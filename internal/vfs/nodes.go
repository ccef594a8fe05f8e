package vfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/core/ports"
)

// DirectoryNode lists its entries straight out of the decoded Directory
// object; every Lookup fetches the child artifact from the store fresh, so
// the node itself holds no cache.
type DirectoryNode struct {
	fs.Inode
	store ports.ObjectStore
	fetch domain.BlobFetch
	dir   domain.Directory
}

var (
	_ fs.NodeLookuper  = (*DirectoryNode)(nil)
	_ fs.NodeReaddirer = (*DirectoryNode)(nil)
	_ fs.NodeGetattrer = (*DirectoryNode)(nil)
)

func (d *DirectoryNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0o555 | syscall.S_IFDIR
	setNow(&out.Attr)
	return 0
}

func (d *DirectoryNode) Readdir(_ context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(d.dir.Entries))
	for _, e := range d.dir.Entries {
		entries = append(entries, fuse.DirEntry{Name: e.Name, Mode: modeForKind(e.Artifact.Kind())})
	}
	return fs.NewListDirStream(entries), 0
}

func (d *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, e := range d.dir.Entries {
		if e.Name != name {
			continue
		}
		data, err := d.store.Get(e.Artifact)
		if err != nil {
			return nil, syscall.EIO
		}
		if data == nil {
			return nil, syscall.ENOENT
		}
		node, mode, errno := newArtifactNode(d.store, d.fetch, e.Artifact, data, out)
		if errno != 0 {
			return nil, errno
		}
		return d.NewInode(ctx, node, fs.StableAttr{Mode: mode}), 0
	}
	return nil, syscall.ENOENT
}

func modeForKind(kind domain.Kind) uint32 {
	switch kind {
	case domain.KindDirectory:
		return syscall.S_IFDIR
	case domain.KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// FileNode serves a blob's contents through domain.BlobReader, which
// already knows how to seek across a leaf/branch tree without holding the
// whole blob in memory.
type FileNode struct {
	fs.Inode
	fetch domain.BlobFetch
	file  domain.File
}

var (
	_ fs.NodeGetattrer = (*FileNode)(nil)
	_ fs.NodeOpener    = (*FileNode)(nil)
	_ fs.NodeReader    = (*FileNode)(nil)
)

func (f *FileNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	mode := uint32(0o444)
	if f.file.Executable {
		mode = 0o555
	}
	out.Mode = mode | syscall.S_IFREG
	if size, err := blobSize(f.fetch, f.file.Contents); err == nil {
		out.Size = uint64(size)
	}
	setNow(&out.Attr)
	return 0
}

func (f *FileNode) Open(_ context.Context, _ uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *FileNode) Read(_ context.Context, _ fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	reader, err := domain.NewBlobReader(f.fetch, f.file.Contents)
	if err != nil {
		return nil, syscall.EIO
	}
	if _, err := reader.Seek(off, 0); err != nil {
		return nil, syscall.EIO
	}
	n, err := reader.Read(dest)
	if err != nil && n == 0 {
		return fuse.ReadResultData(nil), 0
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// SymlinkNode renders its target template lazily: artifact references in
// the template resolve to the virtual filesystem's own mount-relative
// path, so a rendered symlink points back into this same mount.
type SymlinkNode struct {
	fs.Inode
	target domain.Template
}

var (
	_ fs.NodeGetattrer  = (*SymlinkNode)(nil)
	_ fs.NodeReadlinker = (*SymlinkNode)(nil)
)

func (s *SymlinkNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0o777 | syscall.S_IFLNK
	setNow(&out.Attr)
	return 0
}

func (s *SymlinkNode) Readlink(_ context.Context) ([]byte, syscall.Errno) {
	rendered, err := s.target.Render(nil, func(id domain.Identifier) (string, error) {
		return "/" + id.String(), nil
	})
	if err != nil {
		return nil, syscall.EIO
	}
	return []byte(rendered), 0
}
