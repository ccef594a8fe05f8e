package domain

import (
	"sort"

	"go.trai.ch/zerr"
)

// DirectoryEntry names one child of a directory artifact.
type DirectoryEntry struct {
	Name     string     `json:"name"`
	Artifact Identifier `json:"artifact"`
}

// Directory is the payload of a KindDirectory object: an ordered, by-name,
// mapping of entry names to artifacts.
type Directory struct {
	Entries []DirectoryEntry `json:"entries"`
}

// EncodeDirectory sorts entries by name and wraps them into a directory
// object. Re-encoding the same entry set always produces the same bytes and
// therefore the same identifier, regardless of insertion order.
func EncodeDirectory(entries []DirectoryEntry) (Identifier, []byte, error) {
	sorted := make([]DirectoryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	children := make([]Identifier, len(sorted))
	for i, e := range sorted {
		children[i] = e.Artifact
	}
	return EncodeObject(KindDirectory, children, Directory{Entries: sorted})
}

// DecodeDirectory parses a stored directory object.
func DecodeDirectory(data []byte) (Directory, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return Directory{}, err
	}
	var dir Directory
	if err := obj.DecodePayload(&dir); err != nil {
		return Directory{}, err
	}
	return dir, nil
}

// File is the payload of a KindFile object.
type File struct {
	Contents   Identifier   `json:"contents"`
	Executable bool         `json:"executable"`
	References []Identifier `json:"references,omitempty"`
}

// EncodeFile wraps a blob reference, executable bit, and the set of other
// artifacts this file's contents refer to (via the user.tangram extended
// attribute on check-in) into a file object.
func EncodeFile(contents Identifier, executable bool, references []Identifier) (Identifier, []byte, error) {
	children := append([]Identifier{contents}, references...)
	return EncodeObject(KindFile, children, File{
		Contents:   contents,
		Executable: executable,
		References: references,
	})
}

// DecodeFile parses a stored file object.
func DecodeFile(data []byte) (File, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := obj.DecodePayload(&f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Symlink is the payload of a KindSymlink object.
type Symlink struct {
	Target Template `json:"target"`
}

// EncodeSymlink wraps a symlink's target template into a symlink object.
func EncodeSymlink(target Template) (Identifier, []byte, error) {
	return EncodeObject(KindSymlink, target.ArtifactReferences(), Symlink{Target: target})
}

// DecodeSymlink parses a stored symlink object.
func DecodeSymlink(data []byte) (Symlink, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return Symlink{}, err
	}
	var s Symlink
	if err := obj.DecodePayload(&s); err != nil {
		return Symlink{}, err
	}
	return s, nil
}

// ArtifactKind reports which of Directory, File, or Symlink an identifier
// names, derived straight from its tag byte.
func ArtifactKind(id Identifier) (Kind, error) {
	switch id.Kind() {
	case KindDirectory, KindFile, KindSymlink:
		return id.Kind(), nil
	default:
		return 0, zerr.With(ErrInvalidKind, "kind", id.Kind().String())
	}
}
