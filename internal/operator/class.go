// Package operator defines the introspection surface of operator types.
//
// An operator is a configurable unit of work whose constructor parameters form
// its configuration surface. The metadata engine never inspects operators
// directly; it talks to the Class capability interface, which has two
// implementations:
//
//   - ClassOf reflects over a Go struct type. Exported fields are the
//     constructor parameters in declaration order, the first embedded struct is
//     the base class, and struct tags carry names and defaults.
//   - StaticClass is an explicit declaration table for operators that cannot
//     be expressed as Go structs (e.g. operators owned by a foreign runtime).
package operator

import (
	"errors"
	"fmt"
)

// ErrIntrospection marks a class whose constructor or documentation cannot be
// introspected.
var ErrIntrospection = errors.New("introspection failure")

// Class is the capability an operator type exposes to the metadata engine.
type Class interface {
	// Name is the unqualified type name, e.g. "BashOperator".
	Name() string
	// Module is the path of the defining module.
	Module() string
	// QualifiedName is Module + "." + Name.
	QualifiedName() string
	// Doc is the raw, un-normalized documentation block.
	Doc() string
	// Parameters returns the parameters declared by this class's own
	// constructor, in declaration order. Ancestor parameters are excluded.
	Parameters() ([]Parameter, error)
	// Base returns the direct ancestor, or nil at the end of the chain.
	Base() Class
}

// Kind classifies a constructor parameter.
type Kind int

const (
	// Positional is an ordinary named parameter.
	Positional Kind = iota
	// Receiver is the implicit instance receiver ("self").
	Receiver
	// Variadic collects extra positional arguments ("*args").
	Variadic
	// Keywords collects extra keyword arguments ("**kwargs").
	Keywords
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case Positional:
		return "positional"
	case Receiver:
		return "receiver"
	case Variadic:
		return "variadic"
	case Keywords:
		return "keywords"
	default:
		return "unknown"
	}
}

// Parameter is one declared constructor parameter.
type Parameter struct {
	Name       string
	Kind       Kind
	HasDefault bool
	// Default is meaningful only when HasDefault is set. A nil Default with
	// HasDefault set is a declared null default.
	Default any
}

// Configurable reports whether the parameter is part of the configuration
// surface, i.e. neither the receiver nor a catch-all.
func (p Parameter) Configurable() bool {
	return p.Kind == Positional
}

// Required declares a parameter without default.
func Required(name string) Parameter {
	return Parameter{Name: name}
}

// Optional declares a parameter with a default value.
func Optional(name string, def any) Parameter {
	return Parameter{Name: name, HasDefault: true, Default: def}
}

// QualifiedName joins a module path and a type name.
func QualifiedName(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

// IsSubclass reports whether cls has root as a proper ancestor.
// Classes are compared by qualified name.
func IsSubclass(cls, root Class) bool {
	if cls == nil || root == nil {
		return false
	}
	want := root.QualifiedName()
	if cls.QualifiedName() == want {
		return false
	}
	seen := map[string]bool{cls.QualifiedName(): true}
	for b := cls.Base(); b != nil; b = b.Base() {
		q := b.QualifiedName()
		if q == want {
			return true
		}
		if seen[q] {
			return false
		}
		seen[q] = true
	}
	return false
}

// Ancestors returns the ancestor chain of cls from nearest to farthest.
// It fails with ErrIntrospection when the chain loops.
func Ancestors(cls Class) ([]Class, error) {
	var out []Class
	seen := map[string]bool{cls.QualifiedName(): true}
	for b := cls.Base(); b != nil; b = b.Base() {
		q := b.QualifiedName()
		if seen[q] {
			return nil, fmt.Errorf("%w: %s: inheritance cycle at %s", ErrIntrospection, cls.QualifiedName(), q)
		}
		seen[q] = true
		out = append(out, b)
	}
	return out, nil
}
