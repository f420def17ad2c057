package filestore

import (
	"os"
	"path/filepath"

	"github.com/kylelemons/godebug/diff"
	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/hasher"
	"github.com/snow-wind-001/CodeRecoder/internal/atomicio"
)

// fileMetadataDocument is the shape of metadata.json described in spec §6.
type fileMetadataDocument struct {
	OriginalPath     string         `json:"originalPath"`
	SnapshotPath     string         `json:"snapshotPath"`
	Timestamp        string         `json:"timestamp"`
	FileSize         int64          `json:"fileSize"`
	FileHash         string         `json:"fileHash"`
	Prompt           string         `json:"prompt"`
	AISummary        string         `json:"aiSummary,omitempty"`
	ChangeAnalysis   map[string]any `json:"changeAnalysis,omitempty"`
	SessionID        string         `json:"sessionId"`
	ParentSnapshotID string         `json:"parentSnapshotId,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func writeFileMetadata(snapshotDir string, fs *FileSnapshot) error {
	doc := fileMetadataDocument{
		OriginalPath:     fs.OriginalPath,
		SnapshotPath:     fs.SnapshotPath,
		Timestamp:        fs.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
		FileSize:         fs.FileSize,
		FileHash:         fs.ContentHash,
		Prompt:           fs.Prompt,
		AISummary:        fs.AISummary,
		ChangeAnalysis:   fs.ChangeAnalysis,
		SessionID:        fs.SessionID,
		ParentSnapshotID: fs.ParentID,
		Metadata:         fs.Metadata,
	}

	return atomicio.WriteJSON(filepath.Join(snapshotDir, "metadata.json"), doc)
}

// renderDiff produces an optional diff.txt comparing a snapshot's content
// against its parent's, using kylelemons/godebug/diff's line-oriented Myers
// diff. It is best-effort and additive: a missing or unreadable parent is
// not an error, it simply means no diff is produced (spec's diff.txt? field
// is optional).
func renderDiff(snapshotDir string, idx *sessionIndex, fs *FileSnapshot, newContentPath string) (string, error) {
	if fs.ParentID == "" {
		return "", nil
	}

	parent, ok := idx.Snapshots[fs.ParentID]
	if !ok {
		return "", nil
	}

	oldBytes, err := os.ReadFile(parent.SnapshotPath)
	if err != nil {
		return "", nil
	}

	newBytes, err := os.ReadFile(newContentPath)
	if err != nil {
		return "", errors.Wrap(err, "reading new snapshot content for diff")
	}

	// Both contents are already in memory; a hash comparison skips the line
	// diff entirely when nothing actually changed.
	if hasher.HashBytes(oldBytes) == hasher.HashBytes(newBytes) {
		return "", nil
	}

	text := diff.Diff(string(oldBytes), string(newBytes))
	if text == "" {
		return "", nil
	}

	diffPath := filepath.Join(snapshotDir, "diff.txt")
	if err := os.WriteFile(diffPath, []byte(text), 0o644); err != nil {
		return "", errors.Wrap(err, "writing diff.txt")
	}

	return diffPath, nil
}
