package domain

import "go.trai.ch/zerr"

// TemplateComponentKind distinguishes the three kinds of template component.
type TemplateComponentKind int

const (
	// TemplateLiteral is a raw string fragment.
	TemplateLiteral TemplateComponentKind = iota
	// TemplateArtifactRef embeds the resolved path of another artifact.
	TemplateArtifactRef
	// TemplatePlaceholder is a named hole filled in at render time.
	TemplatePlaceholder
)

// TemplateComponent is one piece of a Template.
type TemplateComponent struct {
	Kind        TemplateComponentKind `json:"kind"`
	Literal     string                `json:"literal,omitempty"`
	Artifact    Identifier            `json:"artifact,omitempty"`
	Placeholder string                `json:"placeholder,omitempty"`
}

// Template is an ordered sequence of literal text, artifact references, and
// placeholders, used for symlink targets and process argv/env substitution.
type Template []TemplateComponent

// ArtifactReferences returns every artifact identifier embedded in the
// template, in order. These are the template's children for object-store
// purposes.
func (t Template) ArtifactReferences() []Identifier {
	var ids []Identifier
	for _, c := range t {
		if c.Kind == TemplateArtifactRef {
			ids = append(ids, c.Artifact)
		}
	}
	return ids
}

// PlaceholderResolver maps a placeholder name to its substituted value.
type PlaceholderResolver func(name string) (string, bool)

// ArtifactPather maps an artifact identifier to its materialized filesystem
// path.
type ArtifactPather func(id Identifier) (string, error)

// Render substitutes every component into a single string. It fails with
// ErrUnsubstitutedPlaceholder if resolve has no value for a placeholder the
// template references.
func (t Template) Render(resolve PlaceholderResolver, path ArtifactPather) (string, error) {
	var out []byte
	for _, c := range t {
		switch c.Kind {
		case TemplateLiteral:
			out = append(out, c.Literal...)
		case TemplateArtifactRef:
			p, err := path(c.Artifact)
			if err != nil {
				return "", err
			}
			out = append(out, p...)
		case TemplatePlaceholder:
			v, ok := resolve(c.Placeholder)
			if !ok {
				return "", zerr.With(ErrUnsubstitutedPlaceholder, "name", c.Placeholder)
			}
			out = append(out, v...)
		}
	}
	return string(out), nil
}
