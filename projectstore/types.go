// Package projectstore implements the project-level snapshot store (spec
// §4.6): a chain of full and incremental snapshots under
// snapshots/projects/<id>/, an index, and a baseline map, plus the restore
// planner (spec §4.7) that resolves a target into the chain needed to
// reconstruct it. It is grounded on kopia's own index-mutate-then-persist
// discipline (block/block_manager.go keeps in-memory index state and
// flushes it under lock) generalized from content-addressed blocks to
// whole-tree save points.
package projectstore

import "time"

// Kind discriminates a ProjectSnapshot's materialization strategy.
type Kind string

// The two kinds of project snapshot (spec §3).
const (
	Full        Kind = "full"
	Incremental Kind = "incremental"
)

// ForcedMarker is the changed_files sentinel for a snapshot that found no
// detected changes but was created anyway (spec §4.6 step 2, §9 Open
// Questions). Per the spec's explicit normalization, a forced snapshot is
// materialized as Full for both create and restore.
const ForcedMarker = "*"

// ProjectSnapshot is one save point, per spec §3.
type ProjectSnapshot struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	SaveNumber      int            `json:"saveNumber"`
	Kind            Kind           `json:"kind"`
	ChangedFiles    []string       `json:"changedFiles"`
	Prompt          string         `json:"prompt"`
	Name            string         `json:"name,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Analysis        map[string]any `json:"analysis,omitempty"`
	ProjectRoot     string         `json:"projectRoot"`
	ActualFileCount int            `json:"actualFileCount"`
	Branch          string         `json:"branch,omitempty"`
	Commit          string         `json:"commit,omitempty"`
}

// IsForced reports whether s used the "snapshot everything, nothing
// detected" sentinel, which the specification treats as equivalent to full.
func (s ProjectSnapshot) IsForced() bool {
	return len(s.ChangedFiles) == 1 && s.ChangedFiles[0] == ForcedMarker
}

// EffectiveKind returns Full for both real full snapshots and forced ones.
func (s ProjectSnapshot) EffectiveKind() Kind {
	if s.Kind == Full || s.IsForced() {
		return Full
	}

	return Incremental
}

// FileBaseline is the store's belief about one file's content, per spec §3.
type FileBaseline struct {
	RelativePath string `json:"relativePath"`
	MtimeMs      int64  `json:"mtime"`
	Size         int64  `json:"size"`
	ContentHash  string `json:"contentHash"`
	LineCount    int    `json:"lineCount,omitempty"`
}

// indexDocument is the index document persisted as snapshots/projects/index.json.
type indexDocument struct {
	ProjectRoot        string                   `json:"projectRoot"`
	CurrentSaveNumber  int                      `json:"currentSaveNumber"`
	LastFullSaveNumber int                      `json:"lastFullSaveNumber"`
	FullSaveInterval   int                      `json:"fullSaveInterval"`
	Snapshots          []ProjectSnapshot        `json:"snapshots"`
	FileBaselines      map[string]FileBaseline  `json:"fileBaselines"`
	LastScanTime       time.Time                `json:"lastScanTime"`
	Settings           Settings                 `json:"settings"`
}

// Settings configures store-wide policy, persisted alongside the index.
type Settings struct {
	RetentionCap int  `json:"retentionCap,omitempty"`
	AutoCleanup  bool `json:"autoCleanup"`
}

func newIndexDocument(projectRoot string) *indexDocument {
	return &indexDocument{
		ProjectRoot:      projectRoot,
		FullSaveInterval: defaultFullSaveInterval,
		FileBaselines:    make(map[string]FileBaseline),
		Settings:         Settings{RetentionCap: defaultRetentionCap, AutoCleanup: true},
	}
}

const (
	defaultFullSaveInterval = 10
	defaultRetentionCap     = 200
)
