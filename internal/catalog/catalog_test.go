package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/operator"
)

func TestRegister(t *testing.T) {
	reg := operator.NewRegistry()
	cat, err := Register(reg)
	require.NoError(t, err)

	assert.Equal(t, "airflow.models.BaseOperator", cat.Root().QualifiedName())
	assert.Equal(t, len(builtins)+1, reg.Count())

	classes, err := cat.Classes()
	require.NoError(t, err)
	assert.Equal(t, cat.Root().QualifiedName(), classes[0].QualifiedName())
	assert.Len(t, classes, len(builtins)+2)

	t.Run("registration is repeatable", func(t *testing.T) {
		_, err := Register(reg)
		assert.NoError(t, err)
	})

	t.Run("every class descends from the root", func(t *testing.T) {
		for _, cls := range classes[1:] {
			assert.True(t, operator.IsSubclass(cls, cat.Root()), cls.QualifiedName())
		}
	})
}

func TestBashOperatorParameters(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	bash := find(t, cat, "BashOperator")
	assert.Equal(t, ModuleBash, bash.Module())

	params, err := metadata.NewExtractor().Extract(bash)
	require.NoError(t, err)
	require.Len(t, params, 4)

	assert.Equal(t, "bash_command", params[0].ID)
	assert.True(t, params[0].Required)
	assert.Equal(t, "str", params[0].Type)
	assert.Greater(t, len(params[0].DescriptionText()), 10)

	assert.Equal(t, "xcom_push", params[1].ID)
	assert.False(t, params[1].Required)
	assert.Equal(t, false, params[1].Default)

	assert.Equal(t, "env", params[2].ID)
	assert.False(t, params[2].Required)
	assert.True(t, params[2].HasDefault)
	assert.Nil(t, params[2].Default)

	assert.Equal(t, "output_encoding", params[3].ID)
	assert.False(t, params[3].Required)
	assert.Equal(t, "utf-8", params[3].Default)
}

func TestRedeclaredParameterWins(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	venv := find(t, cat, "PythonVirtualenvOperator")
	params, err := metadata.NewMerger(nil).Merge(venv)
	require.NoError(t, err)

	var opArgs []metadata.ParameterDescriptor
	for _, p := range params {
		if p.ID == "op_args" {
			opArgs = append(opArgs, p)
		}
	}
	require.Len(t, opArgs, 1)
	assert.Equal(t, []any{}, opArgs[0].Default)
	assert.Empty(t, opArgs[0].InheritedFrom)

	callable, ok := (&metadata.OperatorDescriptor{Parameters: params}).Parameter("python_callable")
	require.True(t, ok)
	assert.Equal(t, "airflow.operators.python_operator.PythonOperator", callable.InheritedFrom)
	assert.Equal(t, "python callable", callable.Type)
}

func TestStaticOperator(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	http := find(t, cat, "SimpleHttpOperator")
	params, err := metadata.NewExtractor().Extract(http)
	require.NoError(t, err)

	ids := make([]string, 0, len(params))
	for _, p := range params {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"endpoint", "method", "data", "headers", "http_conn_id", "log_response"}, ids)
}

func find(t *testing.T, cat *Catalog, name string) operator.Class {
	t.Helper()
	classes, err := cat.Classes()
	require.NoError(t, err)
	for _, cls := range classes {
		if cls.Name() == name {
			return cls
		}
	}
	t.Fatalf("operator %s not in catalog", name)
	return nil
}
