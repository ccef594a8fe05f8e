package domain

import (
	"io"

	"go.trai.ch/zerr"
)

// MaxLeafSize is the largest number of bytes a single blob leaf may hold.
const MaxLeafSize = 262144

// MaxBranchChildren is the largest number of children a blob branch node may hold.
const MaxBranchChildren = 1024

// BlobChild names one child of a branch node: its identifier and the number
// of bytes reachable beneath it.
type BlobChild struct {
	ID   Identifier `json:"id"`
	Size int64      `json:"size"`
}

// BlobNode is a (identifier, encoded bytes) pair produced while building a
// blob tree; callers push these into the object store bottom-up.
type BlobNode struct {
	ID   Identifier
	Data []byte
}

// EncodeBlobLeaf wraps raw bytes (at most MaxLeafSize) into a leaf object.
func EncodeBlobLeaf(data []byte) (Identifier, []byte, error) {
	return EncodeObject(KindBlob, nil, data)
}

// EncodeBlobBranch wraps an ordered list of children (at most
// MaxBranchChildren) into a branch object.
func EncodeBlobBranch(children []BlobChild) (Identifier, []byte, error) {
	if len(children) > MaxBranchChildren {
		return Identifier{}, nil, zerr.With(ErrBlobTooManyChildren, "count", len(children))
	}
	ids := make([]Identifier, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return EncodeObject(KindBlob, ids, children)
}

// BuildBlobTree splits data into leaves and assembles a balanced branch tree
// bottom-up, regrouping whenever a layer exceeds MaxBranchChildren. It
// returns every node that must be written to the store, in write order
// (children before parents), and the root identifier. The empty blob is the
// canonical zero-byte leaf.
func BuildBlobTree(data []byte) ([]BlobNode, Identifier, error) {
	var nodes []BlobNode
	var layer []BlobChild

	if len(data) == 0 {
		id, bytes, err := EncodeBlobLeaf(nil)
		if err != nil {
			return nil, Identifier{}, err
		}
		return []BlobNode{{ID: id, Data: bytes}}, id, nil
	}

	for offset := 0; offset < len(data); offset += MaxLeafSize {
		end := offset + MaxLeafSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		id, bytes, err := EncodeBlobLeaf(chunk)
		if err != nil {
			return nil, Identifier{}, err
		}
		nodes = append(nodes, BlobNode{ID: id, Data: bytes})
		layer = append(layer, BlobChild{ID: id, Size: int64(len(chunk))})
	}

	for len(layer) > 1 {
		var next []BlobChild
		for i := 0; i < len(layer); i += MaxBranchChildren {
			end := i + MaxBranchChildren
			if end > len(layer) {
				end = len(layer)
			}
			group := layer[i:end]
			id, bytes, err := EncodeBlobBranch(group)
			if err != nil {
				return nil, Identifier{}, err
			}
			var size int64
			for _, c := range group {
				size += c.Size
			}
			nodes = append(nodes, BlobNode{ID: id, Data: bytes})
			next = append(next, BlobChild{ID: id, Size: size})
		}
		layer = next
	}

	return nodes, layer[0].ID, nil
}

// DecodeBlob parses a stored blob object, returning its leaf bytes when it
// is a leaf, or its children when it is a branch.
func DecodeBlob(data []byte) (leaf []byte, children []BlobChild, err error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return nil, nil, err
	}
	if len(obj.Children) == 0 {
		var leafData []byte
		if err := obj.DecodePayload(&leafData); err != nil {
			return nil, nil, err
		}
		return leafData, nil, nil
	}
	var branchChildren []BlobChild
	if err := obj.DecodePayload(&branchChildren); err != nil {
		return nil, nil, err
	}
	return nil, branchChildren, nil
}

// BlobFetch retrieves the raw encoded bytes of the object named by id. It
// abstracts over the object store so BlobReader stays decoupled from the
// ports package.
type BlobFetch func(id Identifier) ([]byte, error)

// BlobReader is a seekable reader over a blob tree. Construction fetches
// only the root object; branch nodes further down are fetched one level at
// a time, on demand, as Read descends toward whichever leaf contains the
// current position, and a leaf's payload is fetched only when a read
// actually lands inside it.
type BlobReader struct {
	fetch BlobFetch
	root  Identifier

	size int64
	pos  int64

	// topChildren is the root's own children, already known from the root
	// fetch; nil when the whole blob is a single leaf.
	topChildren []BlobChild

	haveCachedLeaf  bool
	cachedLeafID    Identifier
	cachedLeaf      []byte
	cachedLeafStart int64
	cachedLeafEnd   int64
}

// NewBlobReader constructs a reader over the blob rooted at root.
func NewBlobReader(fetch BlobFetch, root Identifier) (*BlobReader, error) {
	r := &BlobReader{fetch: fetch, root: root}

	data, err := fetch(root)
	if err != nil {
		return nil, err
	}
	leaf, children, err := DecodeBlob(data)
	if err != nil {
		return nil, err
	}

	if children == nil {
		r.size = int64(len(leaf))
		r.haveCachedLeaf = true
		r.cachedLeafID = root
		r.cachedLeaf = leaf
		r.cachedLeafStart = 0
		r.cachedLeafEnd = r.size
		return r, nil
	}

	r.topChildren = children
	for _, c := range children {
		r.size += c.Size
	}
	return r, nil
}

// Size returns the blob's total byte length.
func (r *BlobReader) Size() int64 {
	return r.size
}

// locateLeaf descends from the root to the leaf containing pos, fetching
// only the branch nodes on that path, and returns the leaf's payload
// together with its absolute start offset within the blob.
func (r *BlobReader) locateLeaf(pos int64) (leaf []byte, start int64, id Identifier, err error) {
	if r.topChildren == nil {
		return r.cachedLeaf, 0, r.root, nil
	}

	children := r.topChildren
	base := int64(0)
	for {
		var cum int64
		var next *BlobChild
		for i := range children {
			c := &children[i]
			if pos < base+cum+c.Size {
				next = c
				break
			}
			cum += c.Size
		}
		if next == nil {
			return nil, 0, Identifier{}, zerr.With(ErrSeekOutOfRange, "pos", pos)
		}
		childStart := base + cum

		data, err := r.fetch(next.ID)
		if err != nil {
			return nil, 0, Identifier{}, err
		}
		leafData, grandchildren, err := DecodeBlob(data)
		if err != nil {
			return nil, 0, Identifier{}, err
		}
		if grandchildren == nil {
			return leafData, childStart, next.ID, nil
		}
		base = childStart
		children = grandchildren
	}
}

// Read implements io.Reader. It returns the stdlib io.EOF exactly (not a
// zerr-wrapped sentinel) once pos reaches size, so callers that depend on
// that exact identity -- io.Copy, io.ReadAll, bufio -- terminate cleanly
// instead of surfacing a spurious read error.
func (r *BlobReader) Read(p []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}

	if !r.haveCachedLeaf || r.pos < r.cachedLeafStart || r.pos >= r.cachedLeafEnd {
		leaf, start, id, err := r.locateLeaf(r.pos)
		if err != nil {
			return 0, err
		}
		r.cachedLeaf = leaf
		r.cachedLeafStart = start
		r.cachedLeafEnd = start + int64(len(leaf))
		r.cachedLeafID = id
		r.haveCachedLeaf = true
	}

	offset := r.pos - r.cachedLeafStart
	n := copy(p, r.cachedLeaf[offset:])
	r.pos += int64(n)
	return n, nil
}

// Seek implements io.Seeker. The cached leaf is kept if the new position
// still falls within it; Read re-descends lazily otherwise.
func (r *BlobReader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case seekStart:
		newPos = offset
	case seekCurrent:
		newPos = r.pos + offset
	case seekEnd:
		newPos = r.size + offset
	default:
		return 0, zerr.With(ErrSeekOutOfRange, "whence", whence)
	}

	if newPos < 0 || newPos > r.size {
		return 0, zerr.With(ErrSeekOutOfRange, "pos", newPos)
	}

	r.pos = newPos
	return r.pos, nil
}

const (
	seekStart   = 0
	seekCurrent = 1
	seekEnd     = 2
)
