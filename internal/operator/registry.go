package operator

import (
	"errors"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrNilType is returned when a nil type or value is registered.
	ErrNilType = errors.New("operator(registry): nil type provided")
	// ErrConflictingRegistration indicates an attempt to re-register a type
	// with different metadata.
	ErrConflictingRegistration = errors.New("operator(registry): conflicting type registration")
)

// Meta is the out-of-band metadata attached to a reflected operator type.
// Go reflection cannot see doc comments, so documentation is registered.
type Meta struct {
	// Module overrides the Go package path as the module path.
	Module string
	// Doc is the raw documentation block.
	Doc string
}

// Option configures a registration.
type Option func(*Meta)

// WithModule sets the module path reported for the type.
func WithModule(module string) Option {
	return func(m *Meta) { m.Module = module }
}

// WithDoc sets the documentation block of the type.
func WithDoc(doc string) Option {
	return func(m *Meta) { m.Doc = doc }
}

// Registry maps reflected operator types to their metadata.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	m     sync.Map // map[reflect.Type]Meta
	count int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// defaultRegistry backs the package-level helpers.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register attaches metadata to the struct type of v and returns its Class.
// Re-registering the same metadata is a no-op.
func Register(v any, opts ...Option) (Class, error) {
	return defaultRegistry.Register(v, opts...)
}

// ClassOf returns the Class of v using the process-wide registry.
func ClassOf(v any) (Class, error) {
	return defaultRegistry.ClassOf(v)
}

// Register attaches metadata to the struct type of v and returns its Class.
func (r *Registry) Register(v any, opts ...Option) (Class, error) {
	if v == nil {
		return nil, ErrNilType
	}
	t, err := structType(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}

	var meta Meta
	for _, opt := range opts {
		opt(&meta)
	}

	if old, ok := r.m.Load(t); ok {
		if old.(Meta) == meta {
			return r.classOf(t), nil
		}
		return nil, ErrConflictingRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under lock in case another goroutine stored meanwhile.
	if old, ok := r.m.Load(t); ok {
		if old.(Meta) == meta {
			return r.classOf(t), nil
		}
		return nil, ErrConflictingRegistration
	}
	r.m.Store(t, meta)
	r.count++
	return r.classOf(t), nil
}

// ClassOf returns the Class of v, which must be a named struct or a pointer to one.
// Unregistered types are allowed and report no documentation.
func (r *Registry) ClassOf(v any) (Class, error) {
	if v == nil {
		return nil, ErrNilType
	}
	if t, ok := v.(reflect.Type); ok {
		return r.ClassOfType(t)
	}
	return r.ClassOfType(reflect.TypeOf(v))
}

// ClassOfType returns the Class of the struct type t.
func (r *Registry) ClassOfType(t reflect.Type) (Class, error) {
	st, err := structType(t)
	if err != nil {
		return nil, err
	}
	return r.classOf(st), nil
}

// Lookup returns the metadata registered for t.
func (r *Registry) Lookup(t reflect.Type) (Meta, bool) {
	if t == nil {
		return Meta{}, false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if v, ok := r.m.Load(t); ok {
		return v.(Meta), true
	}
	return Meta{}, false
}

// Classes returns every registered type as a Class, sorted by qualified name.
func (r *Registry) Classes() []Class {
	out := make([]Class, 0, r.Count())
	r.m.Range(func(key, _ any) bool {
		out = append(out, r.classOf(key.(reflect.Type)))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Reset clears all registrations. It is safe alongside concurrent readers.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Range(func(key, _ any) bool {
		r.m.Delete(key)
		return true
	})
	r.count = 0
}
