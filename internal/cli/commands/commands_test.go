package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windmill-io/windmill/internal/catalog"
	"github.com/windmill-io/windmill/internal/index"
	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/operator"
	"github.com/windmill-io/windmill/internal/web/auth"
)

// writeConfig writes a config file with a sqlite snapshot database in a
// temp dir and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "")
	content := "log:\n  level: error\ndatabase:\n  driver: sqlite3\n  dsn: " +
		filepath.Join(dir, "snapshots.db") + "\n" + extra
	path := filepath.Join(dir, "windmill.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	return runWith(t, &options{}, cfgPath, args...)
}

func runWith(t *testing.T, opts *options, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(opts)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--no-color", "--config", cfgPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "windmill", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"version", "operators", "dump", "validate", "docstring", "serve", "export", "snapshots", "token"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	cfg := writeConfig(t, "")

	out, _, err := run(t, cfg, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0.0-test")
	assert.Contains(t, out, "abc123")
}

func TestOperatorsList(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := run(t, cfg, "operators", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "BashOperator")

	t.Run("json", func(t *testing.T) {
		out, _, err := run(t, cfg, "operators", "list", "--json")
		require.NoError(t, err)
		var list []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &list))
		assert.NotEmpty(t, list)
	})

	t.Run("module filter", func(t *testing.T) {
		out, _, err := run(t, cfg, "operators", "list", "--json", "--module", "airflow.operators.bash_operator")
		require.NoError(t, err)
		var list []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &list))
		require.Len(t, list, 1)
		assert.Equal(t, "BashOperator", list[0]["type"])
	})
}

func TestOperatorsDescribe(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := run(t, cfg, "operators", "describe", "BashOperator")
	require.NoError(t, err)
	assert.Contains(t, out, "bash_command")
	assert.Contains(t, out, "airflow.operators.bash_operator")

	_, stderr, err := run(t, cfg, "operators", "describe", "BashOperatr")
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "Cannot find operator 'BashOperatr'")
	assert.Contains(t, stderr, "BashOperator")
}

func TestOperatorsSearch(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := run(t, cfg, "operators", "search", "bash", "command", "-n", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 2, "header, rule and results")
	assert.Contains(t, lines[2], "BashOperator")

	_, _, err = run(t, cfg, "operators", "search", "bash", "-n", "0")
	assert.Error(t, err)
}

func TestDumpAndValidate(t *testing.T) {
	cfg := writeConfig(t, "")
	dir := t.TempDir()

	out, _, err := run(t, cfg, "dump")
	require.NoError(t, err)
	list, err := metadata.Deserialize([]byte(out))
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	for _, gz := range []bool{false, true} {
		path := filepath.Join(dir, "operators.json")
		args := []string{"dump", "-o", path}
		if gz {
			path += ".gz"
			args = []string{"dump", "-o", path, "--gzip"}
		}
		_, _, err := run(t, cfg, args...)
		require.NoError(t, err)

		out, _, err := run(t, cfg, "validate", path)
		require.NoError(t, err, "gzip=%v", gz)
		assert.Contains(t, out, "are valid")
	}

	t.Run("gzip needs output", func(t *testing.T) {
		_, _, err := run(t, cfg, "dump", "--gzip")
		assert.Error(t, err)
	})
}

func TestValidateReportsProblems(t *testing.T) {
	cfg := writeConfig(t, "")
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"X","properties":{"parameters":[{"id":"1bad","type":"str","required":true}]}}`), 0o644))

	_, stderr, err := run(t, cfg, "validate", path)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "entry 0 (X)")

	require.NoError(t, os.WriteFile(path, []byte(`"nope"`), 0o644))
	_, stderr, err = run(t, cfg, "validate", path)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "expected a descriptor object")
}

func TestDocstringNormalize(t *testing.T) {
	cfg := writeConfig(t, "")
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(":param x: desc\n"), 0o644))

	out, _, err := run(t, cfg, "docstring", "normalize", path)
	require.NoError(t, err)
	assert.Equal(t, ":param x: desc\n:type x: str\n", out)

	_, _, err = run(t, cfg, "docstring", "normalize", "--check", path)
	require.ErrorIs(t, err, errReported)

	_, _, err = run(t, cfg, "docstring", "normalize", "--write", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":param x: desc\n:type x: str\n", string(data))

	_, _, err = run(t, cfg, "docstring", "normalize", "--check", path)
	assert.NoError(t, err)
}

func TestExportAndSnapshots(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := run(t, cfg, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved snapshot")

	out, _, err = run(t, cfg, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged")

	out, _, err = run(t, cfg, "snapshots", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, "header, rule and one snapshot")
	id := strings.Fields(lines[2])[0]

	out, _, err = run(t, cfg, "snapshots", "show", "--type", "BashOperator")
	require.NoError(t, err)
	var dict map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &dict))
	assert.Equal(t, "BashOperator", dict["type"])

	out, _, err = run(t, cfg, "snapshots", "show", id)
	require.NoError(t, err)
	list, err := metadata.Deserialize([]byte(out))
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, _, err = run(t, cfg, "snapshots", "delete", id)
	require.NoError(t, err)
	_, _, err = run(t, cfg, "snapshots", "delete", id)
	assert.Error(t, err)
	_, _, err = run(t, cfg, "snapshots", "show")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	_, _, err := run(t, writeConfig(t, ""), "token")
	assert.Error(t, err, "no secret configured")

	cfg := writeConfig(t, "server:\n  auth:\n    secret: s3cret\n    ttl: 1h\n")
	out, _, err := run(t, cfg, "token", "--subject", "ci", "--scope", auth.ScopeRead+","+auth.ScopeValidate)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("s3cret", time.Hour)
	require.NoError(t, err)
	claims, err := tokens.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
	assert.True(t, claims.HasScope(auth.ScopeValidate))

	_, _, err = run(t, cfg, "token", "--scope", "admin")
	assert.Error(t, err)
}

type brokenCatalog struct{ index.Catalog }

func (c brokenCatalog) Classes() ([]operator.Class, error) {
	classes, err := c.Catalog.Classes()
	if err != nil {
		return nil, err
	}
	return append(classes, &operator.StaticClass{
		TypeName:   "BrokenOperator",
		ModulePath: "airflow.contrib",
		Parent:     c.Root(),
		Err:        errors.New("signature unavailable"),
	}), nil
}

func brokenOptions() *options {
	return &options{catalog: func() (index.Catalog, error) {
		cat, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		return brokenCatalog{cat}, nil
	}}
}

func TestPartialCatalog(t *testing.T) {
	cfg := writeConfig(t, "")
	out := filepath.Join(t.TempDir(), "operators.json")

	t.Run("dump fails by default", func(t *testing.T) {
		_, _, err := runWith(t, brokenOptions(), cfg, "dump", "-o", out)
		var ie *index.IntrospectionError
		require.ErrorAs(t, err, &ie)
		assert.Contains(t, err.Error(), "--allow-partial")
		assert.NoFileExists(t, out)
	})

	t.Run("dump writes healthy operators when allowed", func(t *testing.T) {
		_, _, err := runWith(t, brokenOptions(), cfg, "dump", "-o", out, "--allow-partial")
		require.NoError(t, err)
		list, err := metadata.ReadFile(out)
		require.NoError(t, err)
		assert.NotEmpty(t, list)
		for _, d := range list {
			assert.NotEqual(t, "BrokenOperator", d["type"])
		}
	})

	t.Run("export stores nothing by default", func(t *testing.T) {
		_, _, err := runWith(t, brokenOptions(), cfg, "export")
		require.Error(t, err)

		a, err := (&options{configPath: cfg}).load()
		require.NoError(t, err)
		st, err := a.openStore(context.Background())
		require.NoError(t, err)
		defer st.Close()
		snaps, err := st.List(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, snaps)

		_, _, err = runWith(t, brokenOptions(), cfg, "export", "--allow-partial")
		require.NoError(t, err)
		snap, err := st.Latest(context.Background())
		require.NoError(t, err)
		for _, d := range snap.Operators {
			assert.NotEqual(t, "BrokenOperator", d["type"])
		}
	})

	t.Run("inspection commands still list healthy operators", func(t *testing.T) {
		out, _, err := runWith(t, brokenOptions(), cfg, "operators", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "BashOperator")
		assert.NotContains(t, out, "BrokenOperator")
	})
}
