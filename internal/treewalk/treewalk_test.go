package treewalk_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/internal/treewalk"
)

func buildTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	files := map[string]string{
		"a.txt":                 "a",
		"src/main.go":           "package main",
		"src/util.log":          "noise",
		".git/HEAD":             "ref: refs/heads/main",
		"node_modules/pkg/x.js": "module.exports = {}",
		"dist/bundle.js":        "built",
	}

	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	return root
}

func TestWalk_SkipsDefaultExcludes(t *testing.T) {
	root := buildTree(t)

	var visited []string

	err := treewalk.Walk(root, treewalk.DefaultExcludes(), func(relPath string, info fs.FileInfo) error {
		visited = append(visited, relPath)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(visited)
	assert.Equal(t, []string{"a.txt", "src/main.go"}, visited)
}

func TestWalk_NoExcludesVisitsEverything(t *testing.T) {
	root := buildTree(t)

	var visited []string

	err := treewalk.Walk(root, treewalk.Excludes{}, func(relPath string, info fs.FileInfo) error {
		visited = append(visited, relPath)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, visited, 6)
}

func TestExcludes_Match(t *testing.T) {
	ex := treewalk.NewExcludes([]string{".git"}, []string{"*.pyc"})

	assert.True(t, ex.Match(".git"))
	assert.True(t, ex.Match("foo.pyc"))
	assert.False(t, ex.Match("foo.py"))
}

func TestWalk_MissingRootIsNotAnError(t *testing.T) {
	err := treewalk.Walk(filepath.Join(t.TempDir(), "nope"), treewalk.Excludes{}, func(string, fs.FileInfo) error {
		return nil
	})
	assert.NoError(t, err)
}
