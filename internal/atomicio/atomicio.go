// Package atomicio provides crash-safe writes for CodeRecoder's JSON
// documents (index.json, metadata.json, snapshot_metadata.json). It is the
// realization of the corpus's temp-file-then-rename idiom (seen in the
// ttrei beads snapshot manager's CaptureLeft/UpdateBase and shac's scm
// helpers) using kopia's own declared dependency on natefinch/atomic rather
// than hand-rolling the rename dance.
package atomicio

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// WriteJSON marshals v as indented JSON and writes it to path atomically:
// the new content is never visible at path until it is fully flushed,
// guaranteeing a reader never observes a torn index document.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %q", path)
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshaling %q", path)
	}

	if err := natomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return errors.Wrapf(err, "atomically writing %q", path)
	}

	return nil
}

// ReadJSON reads path and unmarshals it into v. It returns os.ErrNotExist
// (wrapped) unchanged so callers can distinguish "never written" from a
// genuine decode failure.
func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err //nolint:wrapcheck // callers check os.IsNotExist(err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "decoding %q", path)
	}

	return nil
}
