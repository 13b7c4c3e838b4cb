package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/operator"
)

func bashOperator() *operator.StaticClass {
	base := &operator.StaticClass{
		TypeName:      "BaseOperator",
		ModulePath:    "airflow.models",
		Documentation: ":param task_id: a unique, meaningful id for the task\n",
		Params:        []operator.Parameter{operator.Required("task_id")},
	}
	return &operator.StaticClass{
		TypeName:   "BashOperator",
		ModulePath: "airflow.operators.bash_operator",
		Documentation: `Execute a Bash script, command or set of commands.

    :param bash_command: The command, set of commands or reference to a
        bash script (must be '.sh') to be executed.
`,
		Params: []operator.Parameter{
			{Name: "self", Kind: operator.Receiver},
			operator.Required("bash_command"),
			operator.Optional("xcom_push", false),
			operator.Optional("env", nil),
			operator.Optional("output_encoding", "utf-8"),
		},
		Parent: base,
	}
}

func TestFromOperator(t *testing.T) {
	h, err := FromOperator(bashOperator())
	require.NoError(t, err)
	assert.Equal(t, "BashOperator", h.Type())
	assert.NotNil(t, h.Class())

	dict, err := h.Dump()
	require.NoError(t, err)

	assert.Equal(t, "BashOperator", dict["type"])
	props := dict["properties"].(map[string]any)
	assert.Equal(t, "airflow.operators.bash_operator", props["module"])

	params := props["parameters"].([]any)
	require.Len(t, params, 5)

	first := params[0].(map[string]any)
	assert.Equal(t, "bash_command", first["id"])
	assert.Equal(t, true, first["required"])
	assert.NotContains(t, first, "default")
	assert.NotContains(t, first, "inheritedFrom")

	last := params[4].(map[string]any)
	assert.Equal(t, "task_id", last["id"])
	assert.Equal(t, "airflow.models.BaseOperator", last["inheritedFrom"])

	t.Run("round trip", func(t *testing.T) {
		back, err := FromMarsh(dict)
		require.NoError(t, err)
		assert.Nil(t, back.Class())

		again, err := back.Dump()
		require.NoError(t, err)
		assert.Equal(t, dict, again)
	})

	t.Run("descriptor is a copy", func(t *testing.T) {
		d := h.Descriptor()
		d.Parameters[0].ID = "changed"
		assert.Equal(t, "bash_command", h.Descriptor().Parameters[0].ID)
	})
}

func TestFromOperatorFailures(t *testing.T) {
	_, err := FromOperator(nil)
	assert.ErrorIs(t, err, operator.ErrIntrospection)

	broken := &operator.StaticClass{TypeName: "Broken", Err: operator.ErrIntrospection}
	_, err = FromOperator(broken)
	assert.ErrorIs(t, err, operator.ErrIntrospection)
}

func TestFromMarshOriginalFixture(t *testing.T) {
	dict := map[string]any{
		"type": "DummyOperator",
		"properties": map[string]any{
			"parameters": []any{
				map[string]any{"id": "task_id", "type": "str", "default": "true", "required": false},
			},
		},
	}

	h, err := FromMarsh(dict)
	require.NoError(t, err)

	out, err := h.Dump()
	require.NoError(t, err)
	assert.Equal(t, dict, out)

	props := out["properties"].(map[string]any)
	assert.NotContains(t, props, "module")
	param := props["parameters"].([]any)[0].(map[string]any)
	assert.Equal(t, "true", param["default"])
	assert.NotContains(t, param, "description")
}

func TestFromMarshStructuralError(t *testing.T) {
	_, err := FromMarsh(map[string]any{"type": "X"})
	assert.ErrorIs(t, err, metadata.ErrSchemaViolation)
}

func TestFromMarshTypedParameterSlice(t *testing.T) {
	dict := map[string]any{
		"type": "X",
		"properties": map[string]any{
			"parameters": []map[string]any{{"id": "a", "type": "str", "required": true}},
		},
	}
	h, err := FromMarsh(dict)
	require.NoError(t, err)
	dumped, err := h.Dump()
	require.NoError(t, err)
	assert.Equal(t, dict, dumped)
}

func TestDumpRejectsInvalidDescriptor(t *testing.T) {
	h, err := FromMarsh(map[string]any{
		"type": "X",
		"properties": map[string]any{
			"parameters": []any{map[string]any{"id": "not-valid", "type": "str", "required": true}},
		},
	})
	require.NoError(t, err)

	_, err = h.Dump()
	assert.ErrorIs(t, err, metadata.ErrSchemaViolation)
}

type rejectAll struct{}

func (rejectAll) Validate(map[string]any) error { return metadata.ErrSchemaViolation }

func TestBuilderOptions(t *testing.T) {
	b, err := NewBuilder(Options{
		Merger:    metadata.NewMerger(nil, metadata.WithRoot("airflow.models.BaseOperator")),
		Validator: rejectAll{},
	})
	require.NoError(t, err)

	h, err := b.FromOperator(bashOperator())
	require.NoError(t, err)
	assert.Len(t, h.Descriptor().Parameters, 4)

	_, err = h.Dump()
	assert.ErrorIs(t, err, metadata.ErrSchemaViolation)
}

// descriptorDict draws a validator-accepted dict in JSON-decoded form.
func descriptorDict() *rapid.Generator[map[string]any] {
	ident := rapid.StringMatching(`[a-zA-Z_][a-zA-Z0-9_]{0,12}`)
	value := rapid.OneOf(
		rapid.Just[any](nil),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Map(rapid.Float64Range(-1e6, 1e6), func(f float64) any { return f }),
		rapid.Map(rapid.String(), func(s string) any { return s }),
		rapid.Map(rapid.SliceOfN(rapid.String(), 0, 3), func(ss []string) any {
			out := make([]any, len(ss))
			for i, s := range ss {
				out[i] = s
			}
			return out
		}),
	)

	return rapid.Custom(func(t *rapid.T) map[string]any {
		ids := rapid.SliceOfNDistinct(ident, 0, 6, rapid.ID[string]).Draw(t, "ids")
		params := make([]any, 0, len(ids))
		for _, id := range ids {
			p := map[string]any{
				"id":       id,
				"type":     rapid.SampledFrom([]string{"str", "int", "bool", "dict", "list[str]"}).Draw(t, "type"),
				"required": rapid.Bool().Draw(t, "required"),
			}
			if rapid.Bool().Draw(t, "hasDefault") {
				p["default"] = value.Draw(t, "default")
			}
			if rapid.Bool().Draw(t, "hasDescription") {
				p["description"] = rapid.String().Draw(t, "description")
			}
			if rapid.Bool().Draw(t, "inherited") {
				p["inheritedFrom"] = "airflow.models." + ident.Draw(t, "ancestor")
			}
			params = append(params, p)
		}

		props := map[string]any{"parameters": params}
		if rapid.Bool().Draw(t, "hasModule") {
			props["module"] = rapid.String().Draw(t, "module")
		}
		return map[string]any{
			"type":       ident.Draw(t, "typeName"),
			"properties": props,
		}
	})
}

func TestRoundTripProperty(t *testing.T) {
	v, err := metadata.DefaultValidator()
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		dict := descriptorDict().Draw(t, "dict")
		if err := v.Validate(dict); err != nil {
			t.Fatalf("generator produced invalid dict: %v", err)
		}

		h, err := FromMarsh(dict)
		if err != nil {
			t.Fatalf("FromMarsh: %v", err)
		}
		out, err := h.Dump()
		if err != nil {
			t.Fatalf("Dump: %v", err)
		}
		if !assert.ObjectsAreEqual(dict, out) {
			a, _ := json.Marshal(dict)
			b, _ := json.Marshal(out)
			t.Fatalf("round trip changed dict:\n%s\n%s", a, b)
		}
	})
}
