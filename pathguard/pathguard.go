// Package pathguard centralizes the path-confinement checks every
// file-writing operation in CodeRecoder must perform before it opens a
// destination: reject escapes from an allowed root and OS-sensitive
// prefixes, matching the write discipline kopia's filesystem storage
// enforces implicitly by always deriving paths from a validated root.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// sensitivePrefixes denies writes under these absolute directories regardless
// of allowedRoot, matching spec §4.1's denylist.
var sensitivePrefixes = []string{
	"/etc/", "/usr/", "/bin/", "/sbin/", "/boot/", "/root/", "/sys/", "/proc/",
}

// ErrEscapesRoot is returned when a path resolves outside its allowed root.
var ErrEscapesRoot = errors.New("path escapes allowed root")

// ErrSensitivePrefix is returned when a path touches an OS-reserved prefix.
var ErrSensitivePrefix = errors.New("path touches an OS-reserved prefix")

// Validate normalizes path and rejects it if it still contains an unresolved
// parent-directory component, if it touches a denylisted OS prefix, or (when
// allowedRoot is non-empty) if it does not lie within the canonicalised
// allowedRoot. It never touches the filesystem beyond filepath.Abs/EvalSymlinks
// semantics applied lexically; callers are expected to have already resolved
// symlinks in allowedRoot if that matters for their threat model.
func Validate(path string, allowedRoot string) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		abs, err := filepath.Abs(clean)
		if err != nil {
			return errors.Wrap(err, "resolving absolute path")
		}

		clean = abs
	}

	if containsUnresolvedParent(clean) {
		return errors.Wrapf(ErrEscapesRoot, "path %q", path)
	}

	normalized := filepath.ToSlash(clean)
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(normalized+"/", prefix) || normalized+"/" == prefix {
			return errors.Wrapf(ErrSensitivePrefix, "path %q", path)
		}
	}

	if allowedRoot == "" {
		return nil
	}

	root := filepath.Clean(allowedRoot)
	if !filepath.IsAbs(root) {
		abs, err := filepath.Abs(root)
		if err != nil {
			return errors.Wrap(err, "resolving allowed root")
		}

		root = abs
	}

	rel, err := filepath.Rel(root, clean)
	if err != nil {
		return errors.Wrapf(ErrEscapesRoot, "path %q not relative to root %q", path, allowedRoot)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Wrapf(ErrEscapesRoot, "path %q escapes root %q", path, allowedRoot)
	}

	return nil
}

// containsUnresolvedParent reports whether clean still has a ".." component
// after filepath.Clean, which can happen for paths cleaned relative to a
// symlinked or virtual root upstream of this call.
func containsUnresolvedParent(clean string) bool {
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return true
		}
	}

	return false
}

// Relativize returns path relative to root, using forward slashes, for
// storage in baselines/change-sets. It does not validate; call Validate first.
func Relativize(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", errors.Wrap(err, "relativizing path")
	}

	return filepath.ToSlash(rel), nil
}
