package projectstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/apierr"
	"github.com/snow-wind-001/CodeRecoder/changedetect"
	"github.com/snow-wind-001/CodeRecoder/copier"
	"github.com/snow-wind-001/CodeRecoder/hasher"
	"github.com/snow-wind-001/CodeRecoder/internal/atomicio"
	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
	"github.com/snow-wind-001/CodeRecoder/internal/lockmgr"
	"github.com/snow-wind-001/CodeRecoder/internal/metrics"
	"github.com/snow-wind-001/CodeRecoder/internal/treewalk"
	"github.com/snow-wind-001/CodeRecoder/pathguard"
)

var log = diagnostics.Module("coderecoder/projectstore")

const storeName = "projectstore"

type state int

const (
	stateUninitialised state = iota
	stateBound
	stateReady
)

const lockKeySaveData = "save_data"

// Store is the project-level snapshot store.
type Store struct {
	mu          sync.RWMutex
	state       state
	cacheDir    string
	projectRoot string
	locks       *lockmgr.Manager
	idx         *indexDocument
	activation  *flock.Flock
	excludes    treewalk.Excludes
	metrics     *metrics.Collector
}

// New returns an unbound Store with the default exclude set.
func New() *Store {
	return &Store{locks: lockmgr.New(), excludes: treewalk.DefaultExcludes()}
}

// SetMetrics installs the best-effort operation collector. Safe to call
// before or after Activate; nil disables metrics entirely.
func (s *Store) SetMetrics(m *metrics.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = m
}

// observe best-effort reports one completed operation. Safe to call with a
// nil collector.
func (s *Store) observe(operation string, started time.Time, err error) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()

	kind := ""
	if err != nil {
		kind = string(apierr.KindOf(err))
	}

	m.Observe(storeName, operation, started, kind)
}

// Activate binds the store to cacheDir/snapshots/projects and projectRoot,
// loading any existing index and acquiring a cross-process advisory lock on
// the cache directory so two processes never both believe they own it
// (spec §4.9's Bound state, plus the additive cross-process guard from
// SPEC_FULL.md §4.8).
func (s *Store) Activate(cacheDir, projectRoot string) error {
	if err := pathguard.Validate(projectRoot, ""); err != nil {
		return apierr.Wrap(apierr.InvalidPath, err, "invalid project root")
	}

	if err := pathguard.Validate(cacheDir, ""); err != nil {
		return apierr.Wrap(apierr.InvalidPath, err, "invalid cache directory")
	}

	info, err := os.Stat(projectRoot)
	if err != nil || !info.IsDir() {
		return apierr.New(apierr.InvalidPath, "project root must be an existing directory")
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return apierr.Wrap(apierr.IoError, err, "creating cache directory")
	}

	lockFile := flock.New(filepath.Join(cacheDir, "lock"))

	locked, err := lockFile.TryLock()
	if err != nil {
		return apierr.Wrap(apierr.IoError, err, "acquiring activation lock")
	}

	if !locked {
		return apierr.New(apierr.NotActivated, "another process already has this project activated")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheDir = cacheDir
	s.projectRoot = projectRoot
	s.activation = lockFile
	s.state = stateBound

	idx, loadErr := loadIndexDocument(s.indexPath(), projectRoot)
	if loadErr != nil {
		lockFile.Unlock()
		return apierr.Wrap(apierr.IoError, loadErr, "loading project snapshot index")
	}

	s.idx = idx
	s.state = stateReady

	return nil
}

// Deactivate releases the cross-process activation lock. It does not erase
// any on-disk state.
func (s *Store) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activation != nil {
		if err := s.activation.Unlock(); err != nil {
			return apierr.Wrap(apierr.IoError, err, "releasing activation lock")
		}
	}

	s.state = stateUninitialised

	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.cacheDir, "snapshots", "projects", "index.json")
}

func (s *Store) snapshotDir(id string) string {
	return filepath.Join(s.cacheDir, "snapshots", "projects", id)
}

func (s *Store) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateReady {
		return apierr.New(apierr.NotActivated, "project snapshot store is not activated")
	}

	return nil
}

func loadIndexDocument(path, projectRoot string) (*indexDocument, error) {
	idx := newIndexDocument(projectRoot)

	var onDisk indexDocument

	if err := atomicio.ReadJSON(path, &onDisk); err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}

		return nil, errors.Wrapf(err, "reading %q", path)
	}

	// Backward compatibility: missing fileBaselines/lastScanTime default to
	// empty/zero rather than failing to load (spec §6).
	if onDisk.FileBaselines == nil {
		onDisk.FileBaselines = make(map[string]FileBaseline)
	}

	if onDisk.FullSaveInterval == 0 {
		onDisk.FullSaveInterval = defaultFullSaveInterval
	}

	if onDisk.Settings.RetentionCap == 0 {
		onDisk.Settings.RetentionCap = defaultRetentionCap
	}

	onDisk.ProjectRoot = projectRoot

	return &onDisk, nil
}

func (s *Store) persistLocked() error {
	if err := atomicio.WriteJSON(s.indexPath(), s.idx); err != nil {
		return apierr.Wrap(apierr.IoError, err, "persisting project snapshot index")
	}

	return nil
}

// CreateProjectSnapshotRequest carries the inputs to CreateProjectSnapshot.
type CreateProjectSnapshotRequest struct {
	Prompt string
	Name   string
	Tags   []string
}

// CreateProjectSnapshotResult is returned by CreateProjectSnapshot.
type CreateProjectSnapshotResult struct {
	ID           string
	SaveNumber   int
	Kind         Kind
	ChangedFiles []string
	Analysis     map[string]any
}

// CreateProjectSnapshot runs change detection, decides full vs incremental,
// materializes the snapshot on disk, and persists the index (spec §4.6).
func (s *Store) CreateProjectSnapshot(ctx context.Context, req CreateProjectSnapshotRequest) (result CreateProjectSnapshotResult, err error) {
	started := time.Now()
	defer func() { s.observe("CreateProjectSnapshot", started, err) }()

	if err := s.ready(); err != nil {
		return CreateProjectSnapshotResult{}, err
	}

	err = s.locks.WithLock(lockKeySaveData, func() error {
		saveNumber := s.idx.CurrentSaveNumber + 1

		baseline := &baselineAdapter{m: s.idx.FileBaselines}

		detectResult, hadBaseline, detectErr := changedetect.Detect(ctx, s.projectRoot, baseline, changedetect.Options{
			Excludes:    s.excludes,
			LineCounter: hasher.CountLines,
		})
		s.idx.LastScanTime = time.Now().UTC()

		if detectErr != nil {
			return apierr.Wrap(apierr.ChangeDetectorFailed, detectErr, "change detection failed")
		}

		changedFiles := detectResult.ChangedPaths
		forced := false

		if !hadBaseline {
			// Empty baseline: spec says skip detection and snapshot
			// everything; the baseline was just seeded by Detect.
			changedFiles = nil
		} else if len(changedFiles) == 0 {
			// Nothing detected but the caller explicitly asked for a
			// snapshot: materialize a forced snapshot (spec §4.6 step 2).
			forced = true
			changedFiles = []string{ForcedMarker}
		}

		isFirst := len(s.idx.Snapshots) == 0
		kind := Incremental

		if isFirst || !hadBaseline || saveNumber-s.idx.LastFullSaveNumber >= s.idx.FullSaveInterval {
			kind = Full
		}

		if forced {
			kind = Full
		}

		if kind == Full {
			changedFiles = []string{ForcedMarker}
		}

		id := uuid.NewString()
		dir := s.snapshotDir(id)

		fileSizes, materializeErr := s.materialize(dir, kind, changedFiles)
		if materializeErr != nil {
			return apierr.Wrap(apierr.IoError, materializeErr, "materializing project snapshot")
		}

		snapshot := ProjectSnapshot{
			ID:              id,
			Timestamp:       time.Now().UTC(),
			SaveNumber:      saveNumber,
			Kind:            kind,
			ChangedFiles:    changedFiles,
			Prompt:          req.Prompt,
			Name:            req.Name,
			Tags:            req.Tags,
			ProjectRoot:     s.projectRoot,
			ActualFileCount: len(fileSizes),
		}

		if err := writeSnapshotMetadata(dir, snapshot, fileSizes); err != nil {
			os.RemoveAll(dir)
			return apierr.Wrap(apierr.IoError, err, "writing snapshot metadata")
		}

		s.idx.CurrentSaveNumber = saveNumber
		if kind == Full {
			s.idx.LastFullSaveNumber = saveNumber
		}

		s.idx.Snapshots = append(s.idx.Snapshots, snapshot)

		if err := s.persistLocked(); err != nil {
			os.RemoveAll(dir)
			return err
		}

		s.applyRetentionLocked()

		result = CreateProjectSnapshotResult{
			ID:           id,
			SaveNumber:   saveNumber,
			Kind:         kind,
			ChangedFiles: changedFiles,
			Analysis:     snapshot.Analysis,
		}

		return nil
	})
	if err != nil {
		return CreateProjectSnapshotResult{}, err
	}

	log.Infow("created project snapshot", "id", result.ID, "saveNumber", result.SaveNumber, "kind", result.Kind)

	return result, nil
}

// materialize writes a snapshot's payload to dir and returns every regular
// file it physically wrote, keyed by its path relative to dir, with its
// size — this both drives ProjectSnapshot.ActualFileCount (spec §3
// invariant 7) and is persisted so a later read can detect truncation
// without re-hashing the whole payload.
func (s *Store) materialize(dir string, kind Kind, changedFiles []string) (map[string]int64, error) {
	if kind == Full {
		if err := copier.CopyTree(s.projectRoot, dir, s.excludes); err != nil {
			return nil, err
		}

		return sizesOf(dir)
	}

	sizes := make(map[string]int64, len(changedFiles))

	for _, rel := range changedFiles {
		src := filepath.Join(s.projectRoot, filepath.FromSlash(rel))

		info, err := os.Stat(src)
		if err != nil {
			log.Warnw("change-detected file missing at snapshot time, skipping", "path", rel)
			continue
		}

		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := copier.CopyFile(src, dst); err != nil {
			return sizes, err
		}

		sizes[rel] = info.Size()
	}

	return sizes, nil
}

func sizesOf(dir string) (map[string]int64, error) {
	sizes := make(map[string]int64)

	err := treewalk.Walk(dir, treewalk.Excludes{}, func(relPath string, info fs.FileInfo) error {
		sizes[relPath] = info.Size()
		return nil
	})

	return sizes, err
}

// ListProjectSnapshotSummary is one row of ListProjectSnapshots' output.
type ListProjectSnapshotSummary struct {
	Snapshot       ProjectSnapshot
	TimeSince      time.Duration
	Restorability  string
	Dependencies   []int
	EstimatedBytes int64
}

// ListProjectSnapshots returns snapshots sorted by save number descending,
// annotated per spec §4.6.
func (s *Store) ListProjectSnapshots() ([]ListProjectSnapshotSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snapshots := append([]ProjectSnapshot(nil), s.idx.Snapshots...)
	cacheDir := s.cacheDir
	s.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].SaveNumber > snapshots[j].SaveNumber })

	out := make([]ListProjectSnapshotSummary, 0, len(snapshots))
	now := time.Now()

	for _, snap := range snapshots {
		restorability := "directly restorable"
		var deps []int

		if snap.EffectiveKind() == Incremental {
			restorability = "chained restore required"

			chain, err := Plan(s.idx.Snapshots, snap.SaveNumber, func(p ProjectSnapshot) bool {
				return snapshotIntact(filepath.Join(cacheDir, "snapshots", "projects", p.ID))
			})
			if err == nil {
				for _, c := range chain {
					if c.SaveNumber != snap.SaveNumber {
						deps = append(deps, c.SaveNumber)
					}
				}
			}
		}

		out = append(out, ListProjectSnapshotSummary{
			Snapshot:       snap,
			TimeSince:      now.Sub(snap.Timestamp),
			Restorability:  restorability,
			Dependencies:   deps,
			EstimatedBytes: estimateSize(filepath.Join(cacheDir, "snapshots", "projects", snap.ID)),
		})
	}

	return out, nil
}

func estimateSize(dir string) int64 {
	var total int64

	_ = treewalk.Walk(dir, treewalk.Excludes{}, func(relPath string, info fs.FileInfo) error {
		total += info.Size()
		return nil
	})

	return total
}

// RestoreProjectSnapshotResult is returned by RestoreProjectSnapshot.
type RestoreProjectSnapshotResult struct {
	SaveNumber int
	Kind       Kind
}

// RestoreProjectSnapshot resolves id's chain via the planner and replays it
// in order into the project root, never deleting files outside the
// snapshot payload (spec §4.6, §5, §9).
func (s *Store) RestoreProjectSnapshot(id string) (result RestoreProjectSnapshotResult, err error) {
	started := time.Now()
	defer func() { s.observe("RestoreProjectSnapshot", started, err) }()

	if err := s.ready(); err != nil {
		return RestoreProjectSnapshotResult{}, err
	}

	err = s.locks.WithLock(lockKeySaveData, func() error {
		target, ok := findByID(s.idx.Snapshots, id)
		if !ok {
			return apierr.New(apierr.NotFound, "project snapshot not found")
		}

		chain, err := Plan(s.idx.Snapshots, target.SaveNumber, func(p ProjectSnapshot) bool {
			return snapshotIntact(s.snapshotDir(p.ID))
		})
		if err != nil {
			return err
		}

		for _, step := range chain {
			if err := s.applyChainStep(step); err != nil {
				return err
			}
		}

		result = RestoreProjectSnapshotResult{SaveNumber: target.SaveNumber, Kind: target.Kind}

		return nil
	})
	if err != nil {
		return RestoreProjectSnapshotResult{}, err
	}

	log.Infow("restored project snapshot", "saveNumber", result.SaveNumber, "kind", result.Kind)

	return result, nil
}

func (s *Store) applyChainStep(step ProjectSnapshot) error {
	dir := s.snapshotDir(step.ID)

	if step.EffectiveKind() == Full {
		// The snapshot directory holds both the mirrored project files and
		// this save point's own snapshot_metadata.json sidecar; the sidecar
		// must never land in the project root.
		selfExclude := treewalk.NewExcludes([]string{".CodeRecoder", snapshotMetadataFilename}, nil)

		return copier.CopyTree(dir, s.projectRoot, selfExclude)
	}

	for _, rel := range step.ChangedFiles {
		src := filepath.Join(dir, filepath.FromSlash(rel))

		if _, err := os.Stat(src); err != nil {
			log.Warnw("incremental snapshot missing an entry, skipping", "saveNumber", step.SaveNumber, "path", rel)
			continue
		}

		dst := filepath.Join(s.projectRoot, filepath.FromSlash(rel))
		if err := copier.CopyFile(src, dst); err != nil {
			return apierr.Wrap(apierr.IoError, err, "restoring incremental entry")
		}
	}

	return nil
}

func findByID(snapshots []ProjectSnapshot, id string) (ProjectSnapshot, bool) {
	for _, s := range snapshots {
		if s.ID == id {
			return s, true
		}
	}

	return ProjectSnapshot{}, false
}

// applyRetentionLocked trims the oldest snapshots by timestamp once the
// store exceeds its retention cap, if auto-cleanup is enabled (spec §4.6
// step 8). Must be called while holding save_data.
func (s *Store) applyRetentionLocked() {
	if !s.idx.Settings.AutoCleanup || s.idx.Settings.RetentionCap <= 0 {
		return
	}

	if len(s.idx.Snapshots) <= s.idx.Settings.RetentionCap {
		return
	}

	sorted := append([]ProjectSnapshot(nil), s.idx.Snapshots...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].SaveNumber < sorted[j].SaveNumber
		}

		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	excess := len(sorted) - s.idx.Settings.RetentionCap
	toRemove := make(map[string]struct{}, excess)

	for _, victim := range sorted[:excess] {
		toRemove[victim.ID] = struct{}{}

		if err := os.RemoveAll(s.snapshotDir(victim.ID)); err != nil {
			log.Warnw("retention cleanup failed to remove snapshot directory, continuing", "id", victim.ID, "error", err)
		}
	}

	kept := s.idx.Snapshots[:0]

	for _, snap := range s.idx.Snapshots {
		if _, removed := toRemove[snap.ID]; removed {
			continue
		}

		kept = append(kept, snap)
	}

	s.idx.Snapshots = kept

	if err := s.persistLocked(); err != nil {
		log.Warnw("failed to persist index after retention cleanup", "error", err)
	}
}
