package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDict() map[string]any {
	return map[string]any{
		"type": "BashOperator",
		"properties": map[string]any{
			"module": "airflow.operators.bash_operator",
			"parameters": []any{
				map[string]any{"id": "bash_command", "type": "str", "required": true, "description": "The command to run"},
				map[string]any{"id": "xcom_push", "type": "str", "default": false, "required": false, "description": ""},
				map[string]any{"id": "task_id", "type": "str", "required": true, "inheritedFrom": "airflow.models.BaseOperator"},
			},
		},
	}
}

func TestValidatorAccepts(t *testing.T) {
	v, err := DefaultValidator()
	require.NoError(t, err)

	t.Run("full descriptor", func(t *testing.T) {
		assert.NoError(t, v.Validate(validDict()))
	})

	t.Run("minimal descriptor", func(t *testing.T) {
		d := map[string]any{
			"type": "Dummy",
			"properties": map[string]any{
				"parameters": []any{
					map[string]any{"id": "flag", "type": "bool", "default": "true", "required": false},
				},
			},
		}
		assert.NoError(t, v.Validate(d))
	})

	t.Run("go typed values", func(t *testing.T) {
		d := map[string]any{
			"type": "X",
			"properties": map[string]any{
				"parameters": []map[string]any{
					{"id": "n", "type": "int", "default": int64(3), "required": false},
					{"id": "tags", "type": "list", "default": []string{"a"}, "required": false},
				},
			},
		}
		assert.NoError(t, v.Validate(d))
	})
}

func TestValidatorRejects(t *testing.T) {
	v, err := DefaultValidator()
	require.NoError(t, err)

	mutate := func(f func(d map[string]any)) map[string]any {
		d := validDict()
		f(d)
		return d
	}
	param := func(d map[string]any, i int) map[string]any {
		return d["properties"].(map[string]any)["parameters"].([]any)[i].(map[string]any)
	}

	tests := []struct {
		name string
		dict map[string]any
	}{
		{"nil", nil},
		{"missing type", mutate(func(d map[string]any) { delete(d, "type") })},
		{"empty type", mutate(func(d map[string]any) { d["type"] = "" })},
		{"extra top-level key", mutate(func(d map[string]any) { d["extra"] = 1 })},
		{"missing parameters", mutate(func(d map[string]any) { delete(d["properties"].(map[string]any), "parameters") })},
		{"extra properties key", mutate(func(d map[string]any) { d["properties"].(map[string]any)["other"] = true })},
		{"module not a string", mutate(func(d map[string]any) { d["properties"].(map[string]any)["module"] = 1 })},
		{"invalid id", mutate(func(d map[string]any) { param(d, 0)["id"] = "1bad" })},
		{"id with dash", mutate(func(d map[string]any) { param(d, 0)["id"] = "bad-id" })},
		{"missing required flag", mutate(func(d map[string]any) { delete(param(d, 0), "required") })},
		{"required not bool", mutate(func(d map[string]any) { param(d, 0)["required"] = "yes" })},
		{"empty type tag", mutate(func(d map[string]any) { param(d, 0)["type"] = "" })},
		{"empty inheritedFrom", mutate(func(d map[string]any) { param(d, 2)["inheritedFrom"] = "" })},
		{"unknown parameter key", mutate(func(d map[string]any) { param(d, 1)["hint"] = "x" })},
		{"duplicate ids", mutate(func(d map[string]any) { param(d, 1)["id"] = "bash_command" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.dict)
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestDescriptorSchemaIsJSON(t *testing.T) {
	raw := DescriptorSchema()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "OperatorDescriptor", doc["title"])

	// Returned bytes are a copy.
	raw[0] = 'x'
	assert.Equal(t, byte('{'), DescriptorSchema()[0])
}

func TestNewSchemaValidatorRejectsGarbage(t *testing.T) {
	_, err := NewSchemaValidator([]byte("not json"))
	assert.Error(t, err)
}

func TestValidatorReportsEveryViolation(t *testing.T) {
	v, err := DefaultValidator()
	require.NoError(t, err)

	causes := func(err error) []error {
		joined, ok := err.(interface{ Unwrap() []error })
		require.True(t, ok, "violations are joined")
		return joined.Unwrap()
	}

	t.Run("every duplicate id", func(t *testing.T) {
		d := map[string]any{
			"type": "X",
			"properties": map[string]any{
				"parameters": []any{
					map[string]any{"id": "a", "type": "str", "required": true},
					map[string]any{"id": "a", "type": "str", "required": true},
					map[string]any{"id": "b", "type": "str", "required": true},
					map[string]any{"id": "b", "type": "str", "required": true},
					map[string]any{"id": "b", "type": "str", "required": true},
				},
			},
		}
		errs := causes(v.Validate(d))
		require.Len(t, errs, 2)
		for _, e := range errs {
			assert.ErrorIs(t, e, ErrSchemaViolation)
		}
		assert.Contains(t, errs[0].Error(), `"a"`)
		assert.Contains(t, errs[1].Error(), `"b"`)
	})

	t.Run("schema failure and duplicate together", func(t *testing.T) {
		d := validDict()
		params := d["properties"].(map[string]any)["parameters"].([]any)
		params[1].(map[string]any)["id"] = "bash_command"
		params[2].(map[string]any)["required"] = "yes"

		err := v.Validate(d)
		assert.ErrorIs(t, err, ErrSchemaViolation)
		assert.Len(t, causes(err), 2)
	})
}
