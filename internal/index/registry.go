package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/windmill-io/windmill/internal/metadata"
)

// ErrOperatorNotFound is returned when no operator has the requested type.
var ErrOperatorNotFound = errors.New("operator not found")

// Registry holds a marshalled operator list with pre-computed indexes.
// Lookups return copies, so callers may mutate results freely.
type Registry struct {
	mu sync.RWMutex

	list     []map[string]any
	byType   map[string]map[string]any
	byModule map[string][]string // module -> type names
}

// NewRegistry builds a Registry from a marshalled list. Duplicate type names
// are rejected since lookups are keyed by type.
func NewRegistry(list []map[string]any) (*Registry, error) {
	r := &Registry{}
	if err := r.Load(list); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the registry contents and rebuilds all indexes.
func (r *Registry) Load(list []map[string]any) error {
	byType := make(map[string]map[string]any, len(list))
	byModule := make(map[string][]string)

	for i, dict := range list {
		d, err := metadata.FromDict(dict)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := byType[d.Type]; dup {
			return fmt.Errorf("duplicate operator type %q", d.Type)
		}
		byType[d.Type] = dict
		byModule[d.ModuleName()] = append(byModule[d.ModuleName()], d.Type)
	}
	for _, names := range byModule {
		sort.Strings(names)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = list
	r.byType = byType
	r.byModule = byModule
	return nil
}

// List returns a copy of every descriptor in load order.
func (r *Registry) List() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]map[string]any, 0, len(r.list))
	for _, d := range r.list {
		out = append(out, copyDict(d))
	}
	return out
}

// Get returns the descriptor for a type name using the pre-computed index.
func (r *Registry) Get(typeName string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, typeName)
	}
	return copyDict(d), nil
}

// Types returns every type name, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Modules returns the type names defined in each module.
func (r *Registry) Modules() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.byModule))
	for m, names := range r.byModule {
		out[m] = append([]string(nil), names...)
	}
	return out
}

// Count returns the number of descriptors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

func copyDict(d map[string]any) map[string]any {
	parsed, err := metadata.FromDict(d)
	if err != nil {
		// Entries were parsed at load time.
		return d
	}
	return parsed.ToDict()
}
