package domain

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"go.trai.ch/zerr"
	"lukechampine.com/blake3"
)

// Kind tags the first byte of an Identifier, classifying what kind of value
// it names.
type Kind byte

// The full set of identifier kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindBytes
	KindRelpath
	KindSubpath
	KindBlob
	KindDirectory
	KindFile
	KindSymlink
	KindPlaceholder
	KindTemplate
	KindPackage
	KindLock
	KindTarget
	KindTask
	KindArray
	KindObject
	kindSentinel
)

// String names the kind for diagnostics.
func (k Kind) String() string {
	names := [...]string{
		"null", "bool", "number", "string", "bytes", "relpath", "subpath",
		"blob", "directory", "file", "symlink", "placeholder", "template",
		"package", "lock", "target", "task", "array", "object",
	}
	if int(k) >= len(names) {
		return "unknown"
	}
	return names[k]
}

func (k Kind) valid() bool {
	return k < kindSentinel
}

// Identifier is a 32-byte content-addressed value: byte 0 is the Kind tag,
// bytes 1..32 carry either 31 bytes of a BLAKE3 digest over the value's
// canonical serialization, or 31 random bytes for handle kinds that have no
// canonical content (e.g. in-flight targets).
type Identifier [32]byte

// NewIdentifier hashes data with BLAKE3 and tags the result with kind.
func NewIdentifier(kind Kind, data []byte) Identifier {
	sum := blake3.Sum256(data)
	var id Identifier
	id[0] = byte(kind)
	copy(id[1:], sum[:31])
	return id
}

// NewRandomIdentifier mints a handle with no derivable content, for kinds
// that name mutable-by-nature or in-flight objects.
func NewRandomIdentifier(kind Kind) (Identifier, error) {
	var id Identifier
	id[0] = byte(kind)
	if _, err := rand.Read(id[1:]); err != nil {
		return Identifier{}, zerr.Wrap(err, "failed to generate random identifier")
	}
	return id, nil
}

// Kind returns the identifier's kind tag.
func (id Identifier) Kind() Kind {
	return Kind(id[0])
}

// String renders the identifier as 64 lowercase hex characters.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identifier is the zero value.
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

// ParseIdentifier parses a 64-character lowercase hex string, validating the
// kind byte.
func ParseIdentifier(s string) (Identifier, error) {
	if len(s) != 64 {
		return Identifier{}, zerr.With(ErrInvalidIdentifier, "value", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Identifier{}, zerr.Wrap(err, ErrInvalidIdentifier.Error())
	}

	var id Identifier
	copy(id[:], raw)
	if !id.Kind().valid() {
		return Identifier{}, zerr.With(ErrInvalidKind, "kind", int(id.Kind()))
	}
	return id, nil
}

// MarshalJSON implements json.Marshaler, rendering the identifier as its hex string.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return zerr.Wrap(err, ErrInvalidIdentifier.Error())
	}
	parsed, err := ParseIdentifier(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
