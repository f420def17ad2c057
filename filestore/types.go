// Package filestore implements the file-level snapshot store (spec §4.5):
// one content copy per snapshot under snapshots/files/<session_id>/<id>/,
// grouped into sessions. It is grounded on kopia's object/manifest
// bookkeeping shape (cas/object_manager.go, cli/command_snapshot_create.go's
// "upload, then persist the manifest" flow) adapted to whole-file copies
// instead of chunked, deduplicated objects.
package filestore

import "time"

// FileSnapshot is one captured copy of a single file, per spec §3.
type FileSnapshot struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	OriginalPath   string         `json:"originalPath"`
	SnapshotPath   string         `json:"snapshotPath"`
	FileSize       int64          `json:"fileSize"`
	ContentHash    string         `json:"fileHash"`
	Prompt         string         `json:"prompt"`
	SessionID      string         `json:"sessionId"`
	ParentID       string         `json:"parentSnapshotId,omitempty"`
	AISummary      string         `json:"aiSummary,omitempty"`
	ChangeAnalysis map[string]any `json:"changeAnalysis,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	DiffPath       string         `json:"diffPath,omitempty"`
}

// SnapshotSession groups related file snapshots, per spec §3.
type SnapshotSession struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
	SnapshotIDs  []string  `json:"snapshotIds"`
	CurrentID    string    `json:"currentId,omitempty"`
}

// sessionIndex is the single persisted document backing a Store: every
// session and every snapshot record it owns. Unlike the project store's
// index (which separates baselines from history), the file store has no
// baseline concept — it persists its full working set in one document,
// matching spec §6's "metadata.json" per-snapshot plus an implicit session
// ledger.
type sessionIndex struct {
	Sessions       map[string]*SnapshotSession `json:"sessions"`
	Snapshots      map[string]*FileSnapshot    `json:"snapshots"`
	CurrentSession string                      `json:"currentSession,omitempty"`
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{
		Sessions:  make(map[string]*SnapshotSession),
		Snapshots: make(map[string]*FileSnapshot),
	}
}
