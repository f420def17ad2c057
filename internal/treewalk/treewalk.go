// Package treewalk implements the recursive, exclude-aware directory walk
// shared by the change detector's stat layer, its recency fallback, and the
// copier's in-process fallback. It carries the spirit of google/fswalker
// (recursive tree walk producing per-file metadata) without fswalker's wire
// report format, plus the exclude-and-continue loop restic's archiver uses
// when scanning a source tree (other_examples archiver.go).
package treewalk

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/pathguard"
)

// Excludes configures which entries treewalk.Walk skips.
type Excludes struct {
	// Names matches a path segment's exact basename (".git", "node_modules", …).
	Names map[string]struct{}
	// Globs matches a path's basename against shell-style glob patterns ("*.pyc", …).
	Globs []glob.Glob
}

// NewExcludes compiles a set of exact names and glob patterns. Invalid
// glob patterns are skipped rather than failing the whole set, since an
// exclude list is advisory, not load-bearing for correctness.
func NewExcludes(names []string, globPatterns []string) Excludes {
	ex := Excludes{Names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		ex.Names[n] = struct{}{}
	}

	for _, p := range globPatterns {
		if g, err := glob.Compile(p); err == nil {
			ex.Globs = append(ex.Globs, g)
		}
	}

	return ex
}

// Match reports whether basename should be excluded.
func (ex Excludes) Match(basename string) bool {
	if _, ok := ex.Names[basename]; ok {
		return true
	}

	for _, g := range ex.Globs {
		if g.Match(basename) {
			return true
		}
	}

	return false
}

// DefaultExcludes matches spec §4.3's exclude set for the stat-comparison layer.
func DefaultExcludes() Excludes {
	return NewExcludes(
		[]string{".git", "node_modules", ".CodeRecoder", "__pycache__", ".DS_Store", "dist", "build", ".vscode", ".idea"},
		[]string{"*.pyc", "*.log"},
	)
}

// VisitFunc is called once per regular file discovered under root, with the
// file's path relative to root (forward-slash separated) and its info.
type VisitFunc func(relPath string, info fs.FileInfo) error

// Walk recursively visits every regular file under root that is not excluded,
// skipping directories and symlinks entirely. Entries that vanish during the
// walk, and files whose info cannot be read, are skipped silently and the
// walk continues. Any other error reported while walking (for example an
// unreadable directory) stops the walk and is returned wrapped; a missing
// root is not an error.
func Walk(root string, excludes Excludes, visit VisitFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return errors.Wrapf(err, "walking %q", path)
		}

		base := d.Name()
		if excludes.Match(base) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return nil
			}

			return nil
		}

		rel, relErr := pathguard.Relativize(root, path)
		if relErr != nil {
			return errors.Wrapf(relErr, "relativizing %q", path)
		}

		return visit(rel, info)
	})
}
