package metadata

import (
	"github.com/windmill-io/windmill/internal/operator"
)

// Merger assembles the effective parameter list of a class from its own
// parameters and those of its ancestors.
type Merger struct {
	extractor *Extractor
	root      string
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithRoot stops the ancestor walk at the class with this qualified name.
// The root and everything above it are excluded.
func WithRoot(qualifiedName string) MergerOption {
	return func(m *Merger) { m.root = qualifiedName }
}

// NewMerger creates a Merger. A nil extractor uses NewExtractor().
func NewMerger(extractor *Extractor, opts ...MergerOption) *Merger {
	if extractor == nil {
		extractor = NewExtractor()
	}
	m := &Merger{extractor: extractor}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge returns the own parameters of cls followed by every ancestor
// parameter not already present, nearest ancestor first. Inherited
// parameters carry the qualified name of the nearest ancestor declaring them.
func (m *Merger) Merge(cls operator.Class) ([]ParameterDescriptor, error) {
	out, err := m.extractor.Extract(cls)
	if err != nil {
		return nil, err
	}

	ancestors, err := operator.Ancestors(cls)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(out))
	for _, p := range out {
		seen[p.ID] = true
	}

	for _, anc := range ancestors {
		if m.root != "" && anc.QualifiedName() == m.root {
			break
		}
		params, err := m.extractor.Extract(anc)
		if err != nil {
			return nil, err
		}
		from := anc.QualifiedName()
		for _, p := range params {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			p.InheritedFrom = from
			out = append(out, p)
		}
	}
	return out, nil
}
