// Package vfs exposes content-addressed artifacts as a read-only FUSE
// filesystem: the mount root resolves a hex identifier looked up by name
// directly into that artifact's directory/file/symlink tree, so any
// artifact already in the object store can be browsed or read without a
// prior checkout.
package vfs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"tangram.example.dev/tangram/internal/core/domain"
	"tangram.example.dev/tangram/internal/core/ports"
)

// RootNode is the filesystem root. Every entry name it is asked to look up
// is parsed as a 64-character hex identifier; anything else is ENOENT.
type RootNode struct {
	fs.Inode
	store ports.ObjectStore
	fetch domain.BlobFetch
}

// NewRoot builds the root inode for a store-backed mount.
func NewRoot(store ports.ObjectStore) *RootNode {
	root := &RootNode{store: store}
	root.fetch = func(id domain.Identifier) ([]byte, error) { return store.Get(id) }
	return root
}

var (
	_ fs.NodeLookuper  = (*RootNode)(nil)
	_ fs.NodeGetattrer = (*RootNode)(nil)
)

func (r *RootNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0o555 | syscall.S_IFDIR
	setNow(&out.Attr)
	return 0
}

func (r *RootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	id, err := domain.ParseIdentifier(name)
	if err != nil {
		return nil, syscall.ENOENT
	}

	data, err := r.store.Get(id)
	if err != nil {
		return nil, syscall.EIO
	}
	if data == nil {
		return nil, syscall.ENOENT
	}

	node, mode, errno := newArtifactNode(r.store, r.fetch, id, data, out)
	if errno != 0 {
		return nil, errno
	}
	return r.NewInode(ctx, node, fs.StableAttr{Mode: mode}), 0
}

// newArtifactNode decodes the stored object under id and builds the
// InodeEmbedder for its kind, filling out (when non-nil) with the entry's
// attributes. The caller attaches the returned node with its own NewInode
// so it lands in the right part of the tree.
func newArtifactNode(store ports.ObjectStore, fetch domain.BlobFetch, id domain.Identifier, data []byte, out *fuse.EntryOut) (fs.InodeEmbedder, uint32, syscall.Errno) {
	switch id.Kind() {
	case domain.KindDirectory:
		dir, err := domain.DecodeDirectory(data)
		if err != nil {
			return nil, 0, syscall.EIO
		}
		node := &DirectoryNode{store: store, fetch: fetch, dir: dir}
		if out != nil {
			out.Mode = 0o555 | syscall.S_IFDIR
			setNow(&out.Attr)
		}
		return node, syscall.S_IFDIR, 0

	case domain.KindFile:
		file, err := domain.DecodeFile(data)
		if err != nil {
			return nil, 0, syscall.EIO
		}
		node := &FileNode{fetch: fetch, file: file}
		if out != nil {
			mode := uint32(0o444)
			if file.Executable {
				mode = 0o555
			}
			out.Mode = mode | syscall.S_IFREG
			size, err := blobSize(fetch, file.Contents)
			if err == nil {
				out.Size = uint64(size)
			}
			setNow(&out.Attr)
		}
		return node, syscall.S_IFREG, 0

	case domain.KindSymlink:
		symlink, err := domain.DecodeSymlink(data)
		if err != nil {
			return nil, 0, syscall.EIO
		}
		node := &SymlinkNode{target: symlink.Target}
		if out != nil {
			out.Mode = 0o777 | syscall.S_IFLNK
			setNow(&out.Attr)
		}
		return node, syscall.S_IFLNK, 0

	default:
		return nil, 0, syscall.ENOENT
	}
}

func blobSize(fetch domain.BlobFetch, id domain.Identifier) (int64, error) {
	r, err := domain.NewBlobReader(fetch, id)
	if err != nil {
		return 0, err
	}
	return r.Size(), nil
}

func setNow(attr *fuse.Attr) {
	now := time.Now()
	attr.SetTimes(&now, &now, &now)
}
