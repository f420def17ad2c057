package atomicio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/internal/atomicio"
)

type document struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSON_ThenReadJSON_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	require.NoError(t, atomicio.WriteJSON(path, document{Name: "a", Count: 3}))

	var got document
	require.NoError(t, atomicio.ReadJSON(path, &got))

	assert.Equal(t, document{Name: "a", Count: 3}, got)
}

func TestWriteJSON_OverwritesExistingContentCompletely(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	require.NoError(t, atomicio.WriteJSON(path, document{Name: "first", Count: 100}))
	require.NoError(t, atomicio.WriteJSON(path, document{Name: "second", Count: 1}))

	var got document
	require.NoError(t, atomicio.ReadJSON(path, &got))

	assert.Equal(t, document{Name: "second", Count: 1}, got)
}

func TestReadJSON_MissingFileReturnsNotExist(t *testing.T) {
	err := atomicio.ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &document{})

	assert.True(t, os.IsNotExist(err))
}

func TestReadJSON_MalformedContentIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	err := atomicio.ReadJSON(path, &document{})

	assert.Error(t, err)
}
