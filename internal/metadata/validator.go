package metadata

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrSchemaViolation is returned when a produced or supplied dict does not
// conform to the descriptor shape.
var ErrSchemaViolation = errors.New("descriptor schema violation")

//go:embed descriptor.schema.json
var descriptorSchema []byte

// DescriptorSchema returns the JSON Schema document descriptors are validated against.
func DescriptorSchema() []byte {
	out := make([]byte, len(descriptorSchema))
	copy(out, descriptorSchema)
	return out
}

// Validator accepts or rejects descriptor dicts.
type Validator interface {
	Validate(data map[string]any) error
}

// SchemaValidator validates dicts against the embedded JSON Schema and then
// checks the invariants a schema cannot express (unique parameter ids).
type SchemaValidator struct {
	resolved *jsonschema.Resolved
}

var (
	defaultValidator     *SchemaValidator
	defaultValidatorErr  error
	defaultValidatorOnce sync.Once
)

// DefaultValidator returns the shared validator for the embedded schema.
func DefaultValidator() (*SchemaValidator, error) {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = NewSchemaValidator(descriptorSchema)
	})
	return defaultValidator, defaultValidatorErr
}

// NewSchemaValidator compiles a JSON Schema document.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve descriptor schema: %w", err)
	}
	return &SchemaValidator{resolved: resolved}, nil
}

// Validate reports ErrSchemaViolation when data does not conform.
func (v *SchemaValidator) Validate(data map[string]any) error {
	if data == nil {
		return fmt.Errorf("%w: nil descriptor", ErrSchemaViolation)
	}

	// Validate the JSON view of the dict so Go-typed values (ints,
	// []map[string]any, typed maps) are judged like their wire form.
	instance, err := toJSONValue(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	var errs []error
	if err := v.resolved.Validate(instance); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrSchemaViolation, err))
	}
	errs = append(errs, checkUniqueIDs(instance)...)
	return errors.Join(errs...)
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkUniqueIDs reports one violation per repeated parameter id.
func checkUniqueIDs(instance any) []error {
	root, _ := instance.(map[string]any)
	props, _ := root[KeyProperties].(map[string]any)
	params, _ := props[KeyParameters].([]any)

	var errs []error
	seen := make(map[string]int, len(params))
	for _, item := range params {
		p, _ := item.(map[string]any)
		id, ok := p[KeyID].(string)
		if !ok {
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			errs = append(errs, fmt.Errorf("%w: duplicate parameter id %q", ErrSchemaViolation, id))
		}
	}
	return errs
}
