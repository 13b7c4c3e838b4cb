package index

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/windmill-io/windmill/internal/handler"
	"github.com/windmill-io/windmill/internal/operator"
)

// Catalog is the external collection of operator classes.
type Catalog interface {
	// Root returns the abstract root base class of every operator.
	Root() operator.Class
	// Classes returns the discoverable classes. It may include the root.
	Classes() ([]operator.Class, error)
}

// IntrospectionError names the operator whose introspection failed.
type IntrospectionError struct {
	Operator string
	Err      error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("operator %s: %v", e.Operator, e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// Index enumerates a catalog and marshals its operators.
type Index struct {
	catalog Catalog
	builder *handler.Builder
	logger  *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithBuilder sets the handler builder used for every operator.
func WithBuilder(b *handler.Builder) Option {
	return func(i *Index) { i.builder = b }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an Index over catalog.
func New(catalog Catalog, opts ...Option) (*Index, error) {
	if catalog == nil {
		return nil, errors.New("index: nil catalog")
	}
	idx := &Index{catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.builder == nil {
		b, err := handler.NewBuilder(handler.Options{})
		if err != nil {
			return nil, err
		}
		idx.builder = b
	}
	return idx, nil
}

// GetDefaultOperators returns every proper subclass of the catalog root,
// de-duplicated and sorted by qualified name. The root itself is never
// included.
func (i *Index) GetDefaultOperators() ([]operator.Class, error) {
	root := i.catalog.Root()
	if root == nil {
		return nil, errors.New("index: catalog has no root class")
	}
	classes, err := i.catalog.Classes()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate catalog: %w", err)
	}

	seen := make(map[string]bool, len(classes))
	out := make([]operator.Class, 0, len(classes))
	for _, cls := range classes {
		if cls == nil || !operator.IsSubclass(cls, root) {
			continue
		}
		q := cls.QualifiedName()
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, cls)
	}

	sort.Slice(out, func(a, b int) bool {
		return out[a].QualifiedName() < out[b].QualifiedName()
	})
	return out, nil
}

// MarshallOperatorList dumps every default operator. A broken operator is
// never dropped silently: the healthy entries are returned together with an
// error joining one *IntrospectionError per broken operator.
func (i *Index) MarshallOperatorList() ([]map[string]any, error) {
	classes, err := i.GetDefaultOperators()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(classes))
	var errs []error
	for _, cls := range classes {
		dict, err := i.marshal(cls)
		if err != nil {
			i.logger.Warn("operator introspection failed",
				zap.String("operator", cls.QualifiedName()),
				zap.Error(err))
			errs = append(errs, &IntrospectionError{Operator: cls.QualifiedName(), Err: err})
			continue
		}
		i.logger.Debug("operator marshalled",
			zap.String("operator", cls.QualifiedName()),
			zap.Int("parameters", len(parameterList(dict))))
		out = append(out, dict)
	}
	return out, errors.Join(errs...)
}

// Describe dumps a single operator by type name.
func (i *Index) Describe(typeName string) (map[string]any, error) {
	classes, err := i.GetDefaultOperators()
	if err != nil {
		return nil, err
	}
	for _, cls := range classes {
		if cls.Name() == typeName || cls.QualifiedName() == typeName {
			dict, err := i.marshal(cls)
			if err != nil {
				return nil, &IntrospectionError{Operator: cls.QualifiedName(), Err: err}
			}
			return dict, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, typeName)
}

func (i *Index) marshal(cls operator.Class) (map[string]any, error) {
	h, err := i.builder.FromOperator(cls)
	if err != nil {
		return nil, err
	}
	return h.Dump()
}
