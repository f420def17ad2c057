package pathguard_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/pathguard"
)

func TestValidate_WithinRoot(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "src", "main.go")

	assert.NoError(t, pathguard.Validate(path, root))
}

func TestValidate_EscapesRoot(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "..", "outside.txt")

	err := pathguard.Validate(path, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, pathguard.ErrEscapesRoot)
}

func TestValidate_SensitivePrefix(t *testing.T) {
	err := pathguard.Validate("/etc/passwd", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pathguard.ErrSensitivePrefix)
}

func TestValidate_SensitivePrefixWinsEvenInsideRoot(t *testing.T) {
	err := pathguard.Validate("/etc/passwd", "/etc")
	require.Error(t, err)
	assert.ErrorIs(t, err, pathguard.ErrSensitivePrefix)
}

func TestValidate_NoRootMeansNoContainmentCheck(t *testing.T) {
	assert.NoError(t, pathguard.Validate("/tmp/anything/goes", ""))
}

func TestRelativize(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a", "b.txt")

	rel, err := pathguard.Relativize(root, path)
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", rel)
}
