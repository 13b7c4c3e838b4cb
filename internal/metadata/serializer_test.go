package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize(t *testing.T) {
	list := []map[string]any{validDict()}

	t.Run("deterministic", func(t *testing.T) {
		a, err := Serialize(list)
		require.NoError(t, err)
		b, err := Serialize(list)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Contains(t, string(a), "\n  ")
	})

	t.Run("nil rejected", func(t *testing.T) {
		_, err := Serialize(nil)
		assert.Error(t, err)
	})

	t.Run("round trip", func(t *testing.T) {
		data, err := Serialize(list)
		require.NoError(t, err)
		back, err := Deserialize(data)
		require.NoError(t, err)
		assert.Equal(t, list, back)
	})

	t.Run("deserialize garbage", func(t *testing.T) {
		_, err := Deserialize([]byte("{"))
		assert.Error(t, err)
	})
}

func TestCompress(t *testing.T) {
	data, err := Serialize([]map[string]any{validDict(), validDict(), validDict()})
	require.NoError(t, err)

	compressed, err := Compress(data)
	require.NoError(t, err)
	assert.True(t, IsGzip(compressed))
	assert.Less(t, len(compressed), len(data))

	plain, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, plain)

	t.Run("empty input", func(t *testing.T) {
		out, err := Compress([]byte{})
		require.NoError(t, err)
		assert.Empty(t, out)
		out, err = Decompress([]byte{})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("nil input", func(t *testing.T) {
		_, err := Compress(nil)
		assert.Error(t, err)
		_, err = Decompress(nil)
		assert.Error(t, err)
	})

	t.Run("not gzip", func(t *testing.T) {
		_, err := Decompress([]byte("plain"))
		assert.Error(t, err)
		assert.False(t, IsGzip([]byte("plain")))
	})
}

func TestWriteToFile(t *testing.T) {
	dir := t.TempDir()
	list := []map[string]any{validDict()}

	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "nested", "operators.json")
		if compress {
			path += ".gz"
		}
		require.NoError(t, WriteToFile(list, path, compress))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, compress, IsGzip(raw))

		back, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, list, back)
	}

	t.Run("invalid arguments", func(t *testing.T) {
		assert.Error(t, WriteToFile(nil, filepath.Join(dir, "x.json"), false))
		assert.Error(t, WriteToFile(list, "", false))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadFile(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)
	})
}
