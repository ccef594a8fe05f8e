package domain

import (
	"encoding/json"

	"go.trai.ch/zerr"
)

// Object is the canonical envelope every content-addressed value (blob,
// artifact, package, lock) is serialized into before being hashed and
// stored. Children lists every identifier the payload directly references,
// so the object store can answer `children(id)` without understanding each
// kind's payload shape.
type Object struct {
	Kind     Kind            `json:"kind"`
	Children []Identifier    `json:"children,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// EncodeObject marshals payload into an Object envelope, computes its
// identifier, and returns both the identifier and the envelope's bytes.
func EncodeObject(kind Kind, children []Identifier, payload any) (Identifier, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Identifier{}, nil, zerr.Wrap(err, "failed to marshal object payload")
	}

	obj := Object{Kind: kind, Children: children, Payload: raw}
	data, err := json.Marshal(obj)
	if err != nil {
		return Identifier{}, nil, zerr.Wrap(err, "failed to marshal object envelope")
	}

	return NewIdentifier(kind, data), data, nil
}

// DecodeObject parses a stored envelope back into its Object form.
func DecodeObject(data []byte) (Object, error) {
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return Object{}, zerr.Wrap(err, "failed to unmarshal object envelope")
	}
	return obj, nil
}

// DecodePayload unmarshals an Object's payload into v.
func (o Object) DecodePayload(v any) error {
	if err := json.Unmarshal(o.Payload, v); err != nil {
		return zerr.Wrap(err, "failed to unmarshal object payload")
	}
	return nil
}
