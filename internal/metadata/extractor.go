package metadata

import (
	"errors"
	"fmt"

	"github.com/windmill-io/windmill/internal/docstring"
	"github.com/windmill-io/windmill/internal/operator"
)

// Extractor extracts the parameters a class declares directly.
type Extractor struct {
	inferTypes bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithTypeInference makes undocumented parameter types follow the declared
// default value (false -> "bool") instead of the baseline "str".
func WithTypeInference(enabled bool) ExtractorOption {
	return func(e *Extractor) { e.inferTypes = enabled }
}

// NewExtractor creates a new parameter extractor
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the parameters declared by cls's own constructor, in
// declaration order, typed and described from its normalized documentation.
// Receiver and catch-all parameters are skipped; documented names without a
// matching parameter are ignored.
func (e *Extractor) Extract(cls operator.Class) ([]ParameterDescriptor, error) {
	if cls == nil {
		return nil, fmt.Errorf("%w: nil class", operator.ErrIntrospection)
	}

	params, err := cls.Parameters()
	if err != nil {
		if errors.Is(err, operator.ErrIntrospection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", operator.ErrIntrospection, cls.QualifiedName(), err)
	}

	var hints map[string]string
	if e.inferTypes {
		hints = make(map[string]string)
		for _, p := range params {
			if !p.Configurable() || !p.HasDefault {
				continue
			}
			if h := TypeHint(p.Default); h != "" {
				hints[p.Name] = h
			}
		}
	}
	block := docstring.Parse(docstring.NormalizeWithHints(cls.Doc(), hints))

	out := make([]ParameterDescriptor, 0, len(params))
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if !p.Configurable() {
			continue
		}
		if !docstring.IsIdentifier(p.Name) {
			return nil, fmt.Errorf("%w: %s: invalid parameter name %q", operator.ErrIntrospection, cls.QualifiedName(), p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %s: duplicate parameter %q", operator.ErrIntrospection, cls.QualifiedName(), p.Name)
		}
		seen[p.Name] = true

		desc := ""
		typ := docstring.DefaultType
		if h, ok := hints[p.Name]; ok {
			typ = h
		}
		if entry, ok := block.Lookup(p.Name); ok {
			desc = entry.Description
			if entry.Type != "" {
				typ = entry.Type
			}
		}

		pd := ParameterDescriptor{
			ID:          p.Name,
			Type:        typ,
			Required:    !p.HasDefault,
			HasDefault:  p.HasDefault,
			Description: &desc,
		}
		if p.HasDefault {
			pd.Default = p.Default
		}
		out = append(out, pd)
	}
	return out, nil
}

// TypeHint maps a default value to a type tag, or "" when the value says
// nothing about the type (nil).
func TypeHint(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case []any, []string:
		return "list"
	case map[string]any, map[string]string:
		return "dict"
	default:
		return ""
	}
}
