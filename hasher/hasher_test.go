package hasher_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/hasher"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestHashFile_MatchesHashBytes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello world")

	size, sum, err := hasher.HashFile(path)
	require.NoError(t, err)
	assert.EqualValues(t, len("hello world"), size)
	assert.Equal(t, hasher.HashBytes([]byte("hello world")), sum)
}

func TestHashFile_DifferentContentDifferentHash(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")
	b := writeFile(t, dir, "b.txt", "world")

	_, sumA, err := hasher.HashFile(a)
	require.NoError(t, err)

	_, sumB, err := hasher.HashFile(b)
	require.NoError(t, err)

	assert.NotEqual(t, sumA, sumB)
}

func TestHashFile_MissingFile(t *testing.T) {
	_, _, err := hasher.HashFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "1234567")

	size, mtimeMs, err := hasher.Fingerprint(path)
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)
	assert.Positive(t, mtimeMs)
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "one\ntwo\nthree\n")

	n, err := hasher.CountLines(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountLines_NoTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "one\ntwo")

	n, err := hasher.CountLines(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
