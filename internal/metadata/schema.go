// Package metadata builds, marshals and validates operator descriptors.
//
// An OperatorDescriptor is the canonical in-memory form of one operator's
// metadata. Its only durable form is the descriptor dict:
//
//	{
//	  "type": "BashOperator",
//	  "properties": {
//	    "module": "airflow.operators.bash_operator",
//	    "parameters": [
//	      {"id": "bash_command", "type": "str", "required": true, "description": "..."},
//	      {"id": "xcom_push", "type": "str", "default": false, "required": false, "description": ""},
//	      {"id": "task_id", "type": "str", "required": true, "description": "...",
//	       "inheritedFrom": "airflow.models.BaseOperator"}
//	    ]
//	  }
//	}
//
// Descriptors are built from live classes by the Extractor and Merger, and
// from dicts by FromDict. ToDict is the exact inverse of FromDict for every
// dict accepted by the Validator.
package metadata

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Dict keys of the descriptor wire shape.
const (
	KeyType          = "type"
	KeyProperties    = "properties"
	KeyModule        = "module"
	KeyParameters    = "parameters"
	KeyID            = "id"
	KeyDefault       = "default"
	KeyRequired      = "required"
	KeyDescription   = "description"
	KeyInheritedFrom = "inheritedFrom"
)

// OperatorDescriptor describes one operator.
type OperatorDescriptor struct {
	Type string
	// Module is nil when an external dict omitted it.
	Module     *string
	Parameters []ParameterDescriptor

	// typedParams records that FromDict read parameters from a
	// []map[string]any, so ToDict emits the same container.
	typedParams bool
}

// ParameterDescriptor describes one constructor parameter.
type ParameterDescriptor struct {
	ID   string
	Type string
	// Default is meaningful only when HasDefault is set.
	Default    any
	HasDefault bool
	Required   bool
	// Description is nil when an external dict omitted it.
	Description *string
	// InheritedFrom is the qualified name of the declaring ancestor, or "".
	InheritedFrom string
}

// ModuleName returns the module path, or "" when absent.
func (d *OperatorDescriptor) ModuleName() string {
	if d.Module == nil {
		return ""
	}
	return *d.Module
}

// Parameter finds a parameter by id.
func (d *OperatorDescriptor) Parameter(id string) (ParameterDescriptor, bool) {
	for _, p := range d.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return ParameterDescriptor{}, false
}

// DescriptionText returns the description, or "" when absent.
func (p ParameterDescriptor) DescriptionText() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

// ToDict converts the descriptor to the canonical dict shape. Optional keys
// are emitted only when present. Parameters are emitted as []any unless the
// descriptor was read from a dict holding a []map[string]any.
func (d *OperatorDescriptor) ToDict() map[string]any {
	var params any
	if d.typedParams {
		typed := make([]map[string]any, 0, len(d.Parameters))
		for _, p := range d.Parameters {
			typed = append(typed, p.toDict())
		}
		params = typed
	} else {
		items := make([]any, 0, len(d.Parameters))
		for _, p := range d.Parameters {
			items = append(items, p.toDict())
		}
		params = items
	}

	props := map[string]any{KeyParameters: params}
	if d.Module != nil {
		props[KeyModule] = *d.Module
	}

	return map[string]any{
		KeyType:       d.Type,
		KeyProperties: props,
	}
}

func (p ParameterDescriptor) toDict() map[string]any {
	m := map[string]any{
		KeyID:       p.ID,
		KeyType:     p.Type,
		KeyRequired: p.Required,
	}
	if p.HasDefault {
		m[KeyDefault] = cloneValue(p.Default)
	}
	if p.Description != nil {
		m[KeyDescription] = *p.Description
	}
	if p.InheritedFrom != "" {
		m[KeyInheritedFrom] = p.InheritedFrom
	}
	return m
}

// FromDict builds a descriptor from a validator-accepted dict. It fails with
// ErrSchemaViolation only when the dict is structurally unusable; callers are
// expected to validate first.
func FromDict(data map[string]any) (*OperatorDescriptor, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrSchemaViolation)
	}
	typ, ok := data[KeyType].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a string", ErrSchemaViolation, KeyType)
	}
	props, ok := data[KeyProperties].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be an object", ErrSchemaViolation, KeyProperties)
	}

	d := &OperatorDescriptor{Type: typ}
	if raw, present := props[KeyModule]; present {
		module, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be a string", ErrSchemaViolation, KeyModule)
		}
		d.Module = &module
	}

	items, err := parameterItems(props[KeyParameters])
	if err != nil {
		return nil, err
	}
	_, d.typedParams = props[KeyParameters].([]map[string]any)
	d.Parameters = make([]ParameterDescriptor, 0, len(items))
	for i, item := range items {
		p, err := parameterFromDict(item)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		d.Parameters = append(d.Parameters, p)
	}
	return d, nil
}

// parameterItems accepts both the JSON-decoded []any and a Go-built
// []map[string]any.
func parameterItems(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: parameter %d must be an object", ErrSchemaViolation, i)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be an array", ErrSchemaViolation, KeyParameters)
	}
}

func parameterFromDict(m map[string]any) (ParameterDescriptor, error) {
	var p ParameterDescriptor
	var ok bool

	if p.ID, ok = m[KeyID].(string); !ok {
		return p, fmt.Errorf("%w: %q must be a string", ErrSchemaViolation, KeyID)
	}
	if p.Type, ok = m[KeyType].(string); !ok {
		return p, fmt.Errorf("%w: %q must be a string", ErrSchemaViolation, KeyType)
	}
	if p.Required, ok = m[KeyRequired].(bool); !ok {
		return p, fmt.Errorf("%w: %q must be a boolean", ErrSchemaViolation, KeyRequired)
	}
	if def, present := m[KeyDefault]; present {
		p.HasDefault = true
		p.Default = cloneValue(def)
	}
	if raw, present := m[KeyDescription]; present {
		desc, ok := raw.(string)
		if !ok {
			return p, fmt.Errorf("%w: %q must be a string", ErrSchemaViolation, KeyDescription)
		}
		p.Description = &desc
	}
	if raw, present := m[KeyInheritedFrom]; present {
		if p.InheritedFrom, ok = raw.(string); !ok {
			return p, fmt.Errorf("%w: %q must be a string", ErrSchemaViolation, KeyInheritedFrom)
		}
	}
	return p, nil
}

// Equal reports whether two descriptors serialize to deeply equal dicts.
func Equal(a, b *OperatorDescriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	// The parameters container kind is a wire detail, not content.
	ac, bc := *a, *b
	ac.typedParams, bc.typedParams = false, false
	return reflect.DeepEqual(ac.ToDict(), bc.ToDict())
}

// MarshalJSON encodes the descriptor as its dict.
func (d *OperatorDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToDict())
}

// UnmarshalJSON decodes a descriptor dict without validating it.
func (d *OperatorDescriptor) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := FromDict(m)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// cloneValue deep-copies JSON-like containers so descriptors never alias the
// dicts they were built from.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
