// Package copier implements recursive tree replication and single-file
// copy for CodeRecoder's snapshot stores (spec §4.4). When no excludes are
// given it tries a native tree-copy utility first and falls back to an
// in-process walk whenever that utility is unavailable or exits non-zero;
// with any exclude set it uses the exclude-aware in-process walk only. The
// in-process walk is always available, so correctness never depends on the
// native utility.
package copier

import (
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
	"github.com/snow-wind-001/CodeRecoder/internal/treewalk"
)

var log = diagnostics.Module("coderecoder/copier")

// CopyTree recursively mirrors src into dst, skipping entries excluded by
// excludes, creating dst and any missing parent directories as needed. It
// never deletes anything already present under dst — CodeRecoder forbids
// destructive "mirror with delete" sync (spec §5, §4.6).
func CopyTree(src, dst string, excludes treewalk.Excludes) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrapf(err, "creating destination root %q", dst)
	}

	// cp -a has no notion of excludes, so the native fast path only applies
	// when there is nothing to filter out; any real exclude list forces the
	// exclude-aware in-process walk.
	if len(excludes.Names) == 0 && len(excludes.Globs) == 0 {
		if err := nativeCopyTree(src, dst); err != nil {
			log.Debugw("native tree copy unavailable or failed, falling back to in-process copy", "error", err)
		} else {
			return nil
		}
	}

	return treewalk.Walk(src, excludes, func(relPath string, info fs.FileInfo) error {
		return CopyFile(filepath.Join(src, filepath.FromSlash(relPath)), filepath.Join(dst, filepath.FromSlash(relPath)))
	})
}

// nativeCopyTree delegates to the platform's tree-copy utility. It is best
// effort: any failure (binary missing, non-zero exit, permission denial)
// returns an error and the caller falls back to the in-process walk.
func nativeCopyTree(src, dst string) error {
	if runtime.GOOS == "windows" {
		return errors.New("no native tree copy on windows; using fallback")
	}

	if _, err := exec.LookPath("cp"); err != nil {
		return errors.Wrap(err, "cp not available")
	}

	// Trailing "/." copies src's contents into dst rather than creating a
	// src-named subdirectory inside it.
	cmd := exec.Command("cp", "-a", filepath.Clean(src)+"/.", dst)

	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "cp -a failed")
	}

	return nil
}

// CopyFile ensures dst's parent directory exists and copies src's bytes to
// dst, preserving nothing beyond what's needed to make dst readable (spec
// §4.4). The copy happens via a temp file in dst's directory followed by a
// rename, so a reader never observes a partially-written destination —
// grounded on the corpus's temp-file-then-rename idiom (ttrei beads
// snapshot_manager.go's CaptureLeft/UpdateBase).
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %q", dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening source %q", src)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".crcopy-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %q", dst)
	}

	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return errors.Wrapf(err, "copying %q to %q", src, dst)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing temp file for %q", dst)
	}

	if info, statErr := os.Stat(src); statErr == nil {
		_ = os.Chmod(tmpPath, info.Mode())
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming into place %q", dst)
	}

	return nil
}
