// Package changedetect implements the prioritised fallback chain of spec
// §4.3: VCS status, then hash comparison against a baseline, then stat
// comparison, then a recently-modified fallback. The first layer to yield a
// non-empty result wins. It is invoked by the project snapshot store at the
// start of create_project_snapshot and never directly by a client.
package changedetect

import (
	"bytes"
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/hasher"
	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
	"github.com/snow-wind-001/CodeRecoder/internal/treewalk"
)

var log = diagnostics.Module("coderecoder/changedetect")

// BaselineEntry is the detector's view of one FileBaseline record — see
// spec §3. The projectstore package owns the authoritative type; this
// mirror avoids an import cycle between changedetect and projectstore.
type BaselineEntry struct {
	RelativePath string
	Size         int64
	MtimeMs      int64
	ContentHash  string
	LineCount    int
}

// Baseline is the subset of the project snapshot store's baseline map the
// detector needs: read access to look up and iterate existing entries, and
// a way to record updates/insertions it discovers along the way. Detection
// always mutates the baseline it's given — spec §4.3 requires each layer
// to "add to result and update the baseline entry in place".
type Baseline interface {
	Get(relativePath string) (BaselineEntry, bool)
	Set(entry BaselineEntry)
	Len() int
	ForEach(func(BaselineEntry))
}

// Options configures a single Detect call.
type Options struct {
	// RecentWindow is T_recent for the recency fallback; defaults to 1 hour.
	RecentWindow time.Duration
	// Excludes configures the stat-comparison and recency walks.
	Excludes treewalk.Excludes
	// GitBinary overrides the VCS binary name, for tests. Empty uses "git".
	GitBinary string
	// LineCounter computes FileBaseline.line_count; nil disables it (the
	// field is never consumed, so skipping it is a valid performance choice).
	LineCounter func(path string) (int, error)
}

func (o Options) recentWindow() time.Duration {
	if o.RecentWindow <= 0 {
		return time.Hour
	}

	return o.RecentWindow
}

func (o Options) gitBinary() string {
	if o.GitBinary == "" {
		return "git"
	}

	return o.GitBinary
}

func (o Options) lineCount(path string) int {
	if o.LineCounter == nil {
		return 0
	}

	n, err := o.LineCounter(path)
	if err != nil {
		return 0
	}

	return n
}

// Result is the outcome of a Detect call.
type Result struct {
	// ChangedPaths are relative-to-root paths whose content may differ from
	// the baseline, deduplicated across whichever layer(s) contributed them.
	ChangedPaths []string
	// Layer names which of the four layers produced the result, for diagnostics.
	Layer string
}

// Detect returns the set of files under root whose content may differ from
// baseline, per spec §4.3's four-layer fallback. On a completely empty
// baseline it returns ok=false with an empty Result and seeds baseline from
// a walk, signalling the caller to skip detection and snapshot everything
// (spec §4.3, "first-ever snapshot").
func Detect(ctx context.Context, root string, baseline Baseline, opts Options) (Result, bool, error) {
	if baseline.Len() == 0 {
		if err := seedBaseline(root, baseline, opts); err != nil {
			return Result{}, false, errors.Wrap(err, "seeding baseline")
		}

		return Result{}, false, nil
	}

	if changed := vcsStatus(ctx, root, opts.gitBinary()); len(changed) > 0 {
		return Result{ChangedPaths: dedupe(changed), Layer: "vcs"}, true, nil
	}

	changed, err := hashComparison(root, baseline)
	if err != nil {
		log.Warnw("hash comparison layer failed, falling through", "error", err)
	} else if len(changed) > 0 {
		return Result{ChangedPaths: dedupe(changed), Layer: "hash"}, true, nil
	}

	changed, err = statComparison(root, baseline, opts)
	if err != nil {
		log.Warnw("stat comparison layer failed, falling through", "error", err)
	} else if len(changed) > 0 {
		return Result{ChangedPaths: dedupe(changed), Layer: "stat"}, true, nil
	}

	changed, err = recentlyModified(root, opts.Excludes, opts.recentWindow())
	if err != nil {
		return Result{}, true, errors.Wrap(err, "recency fallback")
	}

	return Result{ChangedPaths: dedupe(changed), Layer: "recency"}, true, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))

	for _, p := range paths {
		p = filepath.ToSlash(p)
		if _, ok := seen[p]; ok {
			continue
		}

		seen[p] = struct{}{}

		out = append(out, p)
	}

	return out
}

// seedBaseline walks root once and records every regular file's fingerprint
// and hash, so the very next Detect call has something to compare against.
func seedBaseline(root string, baseline Baseline, opts Options) error {
	return treewalk.Walk(root, opts.Excludes, func(relPath string, info fs.FileInfo) error {
		full := filepath.Join(root, filepath.FromSlash(relPath))

		_, sum, err := hasher.HashFile(full)
		if err != nil {
			return nil
		}

		baseline.Set(BaselineEntry{
			RelativePath: relPath,
			Size:         info.Size(),
			MtimeMs:      info.ModTime().UnixMilli(),
			ContentHash:  sum,
			LineCount:    opts.lineCount(full),
		})

		return nil
	})
}

// vcsStatus shells out to `git status --porcelain`, stripping the two
// character status prefix and any .CodeRecoder-prefixed entries, matching
// spec §4.3 layer 1. It is grounded on shac's scm.go invocation of
// `git status --porcelain --untracked-files=no` (other_examples), relaxed
// here to include untracked files since CodeRecoder must snapshot new files.
func vcsStatus(ctx context.Context, root, gitBinary string) []string {
	cmd := exec.CommandContext(ctx, gitBinary, "status", "--porcelain")
	cmd.Dir = root

	var out bytes.Buffer

	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil
	}

	var changed []string

	for _, line := range strings.Split(out.String(), "\n") {
		if len(line) < 4 {
			continue
		}

		rel := strings.TrimSpace(line[3:])
		if rel == "" || strings.HasPrefix(rel, ".CodeRecoder") {
			continue
		}

		// Renames are reported as "old -> new"; keep the new path.
		if idx := strings.Index(rel, " -> "); idx >= 0 {
			rel = rel[idx+4:]
		}

		changed = append(changed, filepath.ToSlash(rel))
	}

	return changed
}

// hashComparison re-hashes every path already present in baseline and
// reports those whose SHA-256 no longer matches, updating the baseline
// entry in place on mismatch (spec §4.3 layer 2).
func hashComparison(root string, baseline Baseline) ([]string, error) {
	var changed []string

	baseline.ForEach(func(entry BaselineEntry) {
		full := filepath.Join(root, filepath.FromSlash(entry.RelativePath))

		size, sum, err := hasher.HashFile(full)
		if err != nil {
			// Missing/unreadable file: a deleted file is not a "changed
			// content" case this layer is asked to report.
			return
		}

		if sum != entry.ContentHash {
			changed = append(changed, entry.RelativePath)
			entry.Size = size
			entry.ContentHash = sum
			baseline.Set(entry)
		}
	})

	return changed, nil
}

// statComparison walks root (honouring excludes) and reports files that are
// new to the baseline or whose size/mtime no longer match, creating or
// refreshing the baseline entry as it goes (spec §4.3 layer 3).
func statComparison(root string, baseline Baseline, opts Options) ([]string, error) {
	var changed []string

	err := treewalk.Walk(root, opts.Excludes, func(relPath string, info fs.FileInfo) error {
		size := info.Size()
		mtimeMs := info.ModTime().UnixMilli()

		existing, ok := baseline.Get(relPath)
		if ok && existing.Size == size && existing.MtimeMs == mtimeMs {
			return nil
		}

		full := filepath.Join(root, filepath.FromSlash(relPath))

		_, sum, hashErr := hasher.HashFile(full)
		if hashErr != nil {
			return nil
		}

		baseline.Set(BaselineEntry{
			RelativePath: relPath,
			Size:         size,
			MtimeMs:      mtimeMs,
			ContentHash:  sum,
			LineCount:    opts.lineCount(full),
		})
		changed = append(changed, relPath)

		return nil
	})

	return changed, err
}

// recentlyModified walks root and returns files modified within window of
// now, guaranteeing forward progress when baselines are stale and the prior
// layers missed something (spec §4.3 layer 4).
func recentlyModified(root string, excludes treewalk.Excludes, window time.Duration) ([]string, error) {
	var changed []string

	cutoff := time.Now().Add(-window)

	err := treewalk.Walk(root, excludes, func(relPath string, info fs.FileInfo) error {
		if !info.ModTime().Before(cutoff) {
			changed = append(changed, relPath)
		}

		return nil
	})

	return changed, err
}
