package projectstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/snow-wind-001/CodeRecoder/internal/atomicio"
)

// snapshotMetadataFilename is the sidecar written alongside a snapshot's
// payload. It lives inside the same snapshot directory as the mirrored
// project files, so anything that walks that directory to restore or
// re-derive a baseline must exclude it by name.
const snapshotMetadataFilename = "snapshot_metadata.json"

// snapshotMetadataDocument is the shape of snapshot_metadata.json, the
// per-save-point sidecar written alongside a project snapshot's payload
// (spec §6). FileSizes records every regular file physically written under
// the snapshot directory at the relative path it has on disk, keyed the
// same way as ChangedFiles for an incremental snapshot — it is what lets a
// later read detect truncation without re-hashing the whole payload.
type snapshotMetadataDocument struct {
	ID              string           `json:"id"`
	Timestamp       string           `json:"timestamp"`
	SaveNumber      int              `json:"saveNumber"`
	Kind            Kind             `json:"kind"`
	ChangedFiles    []string         `json:"changedFiles"`
	Prompt          string           `json:"prompt"`
	Name            string           `json:"name,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	Analysis        map[string]any   `json:"analysis,omitempty"`
	ProjectRoot     string           `json:"projectRoot"`
	ActualFileCount int              `json:"actualFileCount"`
	FileSizes       map[string]int64 `json:"fileSizes"`
}

func writeSnapshotMetadata(dir string, snapshot ProjectSnapshot, fileSizes map[string]int64) error {
	doc := snapshotMetadataDocument{
		ID:              snapshot.ID,
		Timestamp:       snapshot.Timestamp.Format(time.RFC3339Nano),
		SaveNumber:      snapshot.SaveNumber,
		Kind:            snapshot.Kind,
		ChangedFiles:    snapshot.ChangedFiles,
		Prompt:          snapshot.Prompt,
		Name:            snapshot.Name,
		Tags:            snapshot.Tags,
		Analysis:        snapshot.Analysis,
		ProjectRoot:     snapshot.ProjectRoot,
		ActualFileCount: snapshot.ActualFileCount,
		FileSizes:       fileSizes,
	}

	return atomicio.WriteJSON(filepath.Join(dir, snapshotMetadataFilename), doc)
}

// snapshotIntact reports whether every file snapshot_metadata.json recorded
// for dir is still present at its recorded size. A missing metadata file
// (pre-upgrade snapshot, or the directory never having been written) counts
// as not intact, matching the planner's "treat as unusable" contract.
func snapshotIntact(dir string) bool {
	var doc snapshotMetadataDocument

	if err := atomicio.ReadJSON(filepath.Join(dir, snapshotMetadataFilename), &doc); err != nil {
		return false
	}

	if len(doc.FileSizes) == 0 {
		return doc.ActualFileCount == 0
	}

	for rel, size := range doc.FileSizes {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil || info.Size() != size {
			return false
		}
	}

	return true
}
