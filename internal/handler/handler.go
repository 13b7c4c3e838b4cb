// Package handler binds one operator class or one descriptor dict and converts
// between the two.
//
//	h, err := handler.FromOperator(cls)
//	dict, err := h.Dump()          // validated descriptor dict
//	back, err := handler.FromMarsh(dict)
//	again, err := back.Dump()      // deeply equal to dict
//
// Handlers are immutable after construction and safe for concurrent use.
package handler

import (
	"fmt"

	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/operator"
)

// Handler holds one descriptor and, when built from a class, that class.
type Handler struct {
	cls        operator.Class
	descriptor *metadata.OperatorDescriptor
	validator  metadata.Validator
}

// Options configures how handlers are built.
type Options struct {
	// Merger builds parameter lists. Nil uses metadata.NewMerger(nil).
	Merger *metadata.Merger
	// Validator checks dumped dicts. Nil uses metadata.DefaultValidator().
	Validator metadata.Validator
}

// Builder creates handlers with shared options.
type Builder struct {
	merger    *metadata.Merger
	validator metadata.Validator
}

// NewBuilder creates a Builder from opts.
func NewBuilder(opts Options) (*Builder, error) {
	b := &Builder{merger: opts.Merger, validator: opts.Validator}
	if b.merger == nil {
		b.merger = metadata.NewMerger(nil)
	}
	if b.validator == nil {
		v, err := metadata.DefaultValidator()
		if err != nil {
			return nil, err
		}
		b.validator = v
	}
	return b, nil
}

// FromOperator builds a handler for cls with default options.
func FromOperator(cls operator.Class) (*Handler, error) {
	b, err := NewBuilder(Options{})
	if err != nil {
		return nil, err
	}
	return b.FromOperator(cls)
}

// FromMarsh builds a descriptor-only handler with default options.
func FromMarsh(data map[string]any) (*Handler, error) {
	b, err := NewBuilder(Options{})
	if err != nil {
		return nil, err
	}
	return b.FromMarsh(data)
}

// FromOperator builds a handler by introspecting cls.
func (b *Builder) FromOperator(cls operator.Class) (*Handler, error) {
	if cls == nil {
		return nil, fmt.Errorf("%w: nil class", operator.ErrIntrospection)
	}
	params, err := b.merger.Merge(cls)
	if err != nil {
		return nil, err
	}

	module := cls.Module()
	return &Handler{
		cls: cls,
		descriptor: &metadata.OperatorDescriptor{
			Type:       cls.Name(),
			Module:     &module,
			Parameters: params,
		},
		validator: b.validator,
	}, nil
}

// FromMarsh builds a handler from a dict the caller has already validated.
// The handler has no backing class.
func (b *Builder) FromMarsh(data map[string]any) (*Handler, error) {
	d, err := metadata.FromDict(data)
	if err != nil {
		return nil, err
	}
	return &Handler{descriptor: d, validator: b.validator}, nil
}

// Dump serializes the descriptor to its dict and validates it.
func (h *Handler) Dump() (map[string]any, error) {
	dict := h.descriptor.ToDict()
	if err := h.validator.Validate(dict); err != nil {
		return nil, fmt.Errorf("operator %s: %w", h.descriptor.Type, err)
	}
	return dict, nil
}

// Class returns the backing class, or nil for handlers built from a dict.
func (h *Handler) Class() operator.Class {
	return h.cls
}

// Descriptor returns a copy of the held descriptor.
func (h *Handler) Descriptor() *metadata.OperatorDescriptor {
	d := *h.descriptor
	d.Parameters = append([]metadata.ParameterDescriptor(nil), h.descriptor.Parameters...)
	return &d
}

// Type returns the operator type name.
func (h *Handler) Type() string {
	return h.descriptor.Type
}
