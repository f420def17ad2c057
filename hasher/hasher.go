// Package hasher computes content hashes and cheap stat fingerprints for
// files, streaming rather than loading whole files into memory — the same
// discipline kopia's object manager and block formatter apply when hashing
// pack content (cas/object_manager.go, block/block_formatter.go).
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// HashFile streams path through SHA-256 and returns its size in bytes and
// the lowercase hex digest. It is the "strong hash" referenced by spec §4.2
// (change-detection priority 2, baseline updates, integrity checks).
func HashFile(path string) (size int64, sha256hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", errors.Wrapf(err, "opening %q for hashing", path)
	}
	defer f.Close()

	h := sha256.New()

	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", errors.Wrapf(err, "hashing %q", path)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of b, used when content
// is already in memory (e.g. comparing a freshly-copied snapshot file).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a file's size and millisecond-resolution modification
// time without reading its content — the "cheap fingerprint" referenced by
// spec §4.2 (change-detection priority 3).
func Fingerprint(path string) (size int64, mtimeMs int64, err error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "stat %q", path)
	}

	return st.Size(), st.ModTime().UnixMilli(), nil
}

// CountLines performs a best-effort newline count of path's content. It
// powers FileBaseline.line_count, which the specification preserves for
// forward compatibility but no operation consumes (spec §9 Open Questions).
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %q for line count", path)
	}
	defer f.Close()

	var (
		count int
		buf   [32 * 1024]byte
	)

	for {
		n, readErr := f.Read(buf[:])
		for _, b := range buf[:n] {
			if b == '\n' {
				count++
			}
		}

		if readErr == io.EOF {
			return count, nil
		}

		if readErr != nil {
			return count, errors.Wrapf(readErr, "counting lines in %q", path)
		}
	}
}
