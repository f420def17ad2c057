package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/apierr"
	"github.com/snow-wind-001/CodeRecoder/copier"
	"github.com/snow-wind-001/CodeRecoder/hasher"
	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
	"github.com/snow-wind-001/CodeRecoder/internal/lockmgr"
	"github.com/snow-wind-001/CodeRecoder/internal/metrics"
	"github.com/snow-wind-001/CodeRecoder/pathguard"
)

const storeName = "filestore"

var log = diagnostics.Module("coderecoder/filestore")

// state mirrors the Uninitialised -> Bound -> Ready lifecycle of spec §4.9.
type state int

const (
	stateUninitialised state = iota
	stateBound
	stateReady
)

const lockKeySaveData = "save_data"

// Store is the file-level snapshot store. One Store instance owns exactly
// one cache directory and one project root; create it with New and bind it
// with Activate before calling any other method.
type Store struct {
	mu          sync.RWMutex
	state       state
	cacheDir    string
	projectRoot string
	locks       *lockmgr.Manager
	idx         *sessionIndex
	enrich      Enricher
	metrics     *metrics.Collector
}

// Enricher is the best-effort AI analysis seam (spec §4.5 step 7, §9
// "async background enrichment"). CodeRecoder's core never depends on it
// for correctness; a nil Enricher simply means no snapshot is ever enriched.
type Enricher interface {
	// Enrich is invoked asynchronously after a snapshot is committed. It
	// must not be assumed to run, or to finish, before the store is closed.
	Enrich(snapshot FileSnapshot) (summary string, stats map[string]any, err error)
}

// New returns an unbound Store. Call Activate before any other method.
func New() *Store {
	return &Store{locks: lockmgr.New(), idx: newSessionIndex()}
}

// SetEnricher installs the async enrichment collaborator. Safe to call
// before or after Activate; nil disables enrichment.
func (s *Store) SetEnricher(e Enricher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enrich = e
}

// SetMetrics installs the best-effort operation collector. Safe to call
// before or after Activate; nil disables metrics entirely.
func (s *Store) SetMetrics(m *metrics.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = m
}

// Activate binds the store to cacheDir (typically <projectRoot>/.CodeRecoder)
// and projectRoot, loading any existing index. Both must pass the path guard.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheDir = cacheDir
	s.projectRoot = projectRoot
	s.state = stateBound

	idx, loadErr := loadIndex(s.indexPath())
	if loadErr != nil {
		return apierr.Wrap(apierr.IoError, loadErr, "loading file snapshot index")
	}

	s.idx = idx
	s.state = stateReady

	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.cacheDir, "snapshots", "files", "index.json")
}

func (s *Store) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateReady {
		return apierr.New(apierr.NotActivated, "file snapshot store is not activated")
	}

	return nil
}

func loadIndex(path string) (*sessionIndex, error) {
	idx := newSessionIndex()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}

		return nil, errors.Wrapf(err, "reading %q", path)
	}

	if err := decodeIndex(b, idx); err != nil {
		return nil, err
	}

	return idx, nil
}

// CreateSnapshotRequest carries the inputs to CreateSnapshot (spec §4.5, §6).
type CreateSnapshotRequest struct {
	FilePath  string
	Prompt    string
	SessionID string
	ParentID  string
	Metadata  map[string]any
}

// CreateSnapshotResult is returned by CreateSnapshot.
type CreateSnapshotResult struct {
	SnapshotID string
	FileSize   int64
	SizeBytes  int64
}

// CreateSnapshot captures the current content of req.FilePath (spec §4.5).
func (s *Store) CreateSnapshot(req CreateSnapshotRequest) (result CreateSnapshotResult, err error) {
	started := time.Now()
	defer func() { s.observe("CreateSnapshot", started, err) }()

	if err := s.ready(); err != nil {
		return CreateSnapshotResult{}, err
	}

	if err := pathguard.Validate(req.FilePath, s.projectRoot); err != nil {
		return CreateSnapshotResult{}, apierr.Wrap(apierr.InvalidPath, err, "invalid snapshot source path")
	}

	if _, statErr := os.Stat(req.FilePath); statErr != nil {
		if os.IsNotExist(statErr) {
			return CreateSnapshotResult{}, apierr.New(apierr.NotFound, "source file does not exist")
		}

		return CreateSnapshotResult{}, apierr.Wrap(apierr.IoError, statErr, "stat source file")
	}

	size, sum, hashErr := hasher.HashFile(req.FilePath)
	if hashErr != nil {
		return CreateSnapshotResult{}, apierr.Wrap(apierr.IoError, hashErr, "hashing source file")
	}

	err = s.locks.WithLock(lockKeySaveData, func() error {
		sessionID, sessErr := s.resolveOrCreateSessionLocked(req.SessionID)
		if sessErr != nil {
			return sessErr
		}

		id := uuid.NewString()
		snapshotDir := filepath.Join(s.cacheDir, "snapshots", "files", sessionID, id)
		dst := filepath.Join(snapshotDir, filepath.Base(req.FilePath))

		if err := copier.CopyFile(req.FilePath, dst); err != nil {
			return apierr.Wrap(apierr.IoError, err, "copying snapshot content")
		}

		fs := &FileSnapshot{
			ID:           id,
			Timestamp:    time.Now().UTC(),
			OriginalPath: req.FilePath,
			SnapshotPath: dst,
			FileSize:     size,
			ContentHash:  sum,
			Prompt:       req.Prompt,
			SessionID:    sessionID,
			ParentID:     req.ParentID,
			Metadata:     req.Metadata,
		}

		if diffPath, diffErr := renderDiff(snapshotDir, s.idx, fs, dst); diffErr == nil && diffPath != "" {
			fs.DiffPath = diffPath
		}

		if err := writeFileMetadata(snapshotDir, fs); err != nil {
			os.RemoveAll(snapshotDir)
			return apierr.Wrap(apierr.IoError, err, "writing snapshot metadata")
		}

		session := s.idx.Sessions[sessionID]
		session.SnapshotIDs = append(session.SnapshotIDs, id)
		session.CurrentID = id
		session.LastModified = fs.Timestamp

		s.idx.Snapshots[id] = fs

		if err := s.persistLocked(); err != nil {
			os.RemoveAll(snapshotDir)
			return err
		}

		result = CreateSnapshotResult{SnapshotID: id, FileSize: size, SizeBytes: size}

		s.scheduleEnrichment(*fs)

		return nil
	})
	if err != nil {
		return CreateSnapshotResult{}, err
	}

	log.Infow("created file snapshot", "id", result.SnapshotID, "path", req.FilePath)

	return result, nil
}

// resolveOrCreateSessionLocked must be called while holding the save_data lock.
func (s *Store) resolveOrCreateSessionLocked(requested string) (string, error) {
	if requested != "" {
		if _, ok := s.idx.Sessions[requested]; ok {
			return requested, nil
		}

		now := time.Now().UTC()
		s.idx.Sessions[requested] = &SnapshotSession{ID: requested, Name: requested, Created: now, LastModified: now}

		return requested, nil
	}

	if s.idx.CurrentSession != "" {
		if _, ok := s.idx.Sessions[s.idx.CurrentSession]; ok {
			return s.idx.CurrentSession, nil
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	s.idx.Sessions[id] = &SnapshotSession{ID: id, Name: petname.Generate(2, "-"), Created: now, LastModified: now}
	s.idx.CurrentSession = id

	return id, nil
}

func (s *Store) persistLocked() error {
	if err := writeIndex(s.indexPath(), s.idx); err != nil {
		return apierr.Wrap(apierr.IoError, err, "persisting file snapshot index")
	}

	return nil
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

func (s *Store) scheduleEnrichment(fs FileSnapshot) {
	s.mu.RLock()
	enricher := s.enrich
	s.mu.RUnlock()

	if enricher == nil {
		return
	}

	go func() {
		summary, stats, err := enricher.Enrich(fs)
		if err != nil {
			log.Warnw("enrichment failed, dropping", "snapshot", fs.ID, "error", err)
			return
		}

		if err := s.UpdateEnrichment(fs.ID, summary, stats); err != nil {
			log.Warnw("failed to persist enrichment", "snapshot", fs.ID, "error", err)
		}
	}()
}

// UpdateEnrichment sets a snapshot's best-effort enrichment fields. It may
// only touch enrichment fields and is serialized through the same write
// lock as every other mutation (spec §4.5's enrichment writer contract).
func (s *Store) UpdateEnrichment(snapshotID, summary string, stats map[string]any) error {
	if err := s.ready(); err != nil {
		return err
	}

	return s.locks.WithLock(lockKeySaveData, func() error {
		fs, ok := s.idx.Snapshots[snapshotID]
		if !ok {
			return apierr.New(apierr.NotFound, "snapshot not found")
		}

		fs.AISummary = summary
		fs.ChangeAnalysis = stats

		snapshotDir := filepath.Dir(fs.SnapshotPath)
		if err := writeFileMetadata(snapshotDir, fs); err != nil {
			return apierr.Wrap(apierr.IoError, err, "rewriting snapshot metadata")
		}

		return s.persistLocked()
	})
}

// RestoreSnapshotResult is returned by RestoreSnapshot.
type RestoreSnapshotResult struct {
	RestoredPath string
	BackupPath   string
}

// RestoreSnapshot writes a snapshot's content back to its original path,
// backing up any existing destination content first (spec §4.5).
func (s *Store) RestoreSnapshot(snapshotID string) (result RestoreSnapshotResult, err error) {
	started := time.Now()
	defer func() { s.observe("RestoreSnapshot", started, err) }()

	if err := s.ready(); err != nil {
		return RestoreSnapshotResult{}, err
	}

	err = s.locks.WithLock(lockKeySaveData, func() error {
		fs, ok := s.idx.Snapshots[snapshotID]
		if !ok {
			return apierr.New(apierr.NotFound, "snapshot not found")
		}

		info, statErr := os.Stat(fs.SnapshotPath)
		if statErr != nil {
			return apierr.Wrap(apierr.Corrupt, statErr, "stored snapshot copy missing")
		}

		if info.Size() != fs.FileSize {
			return apierr.New(apierr.Corrupt, "stored snapshot size does not match recorded file size")
		}

		if err := pathguard.Validate(fs.OriginalPath, s.projectRoot); err != nil {
			return apierr.Wrap(apierr.InvalidPath, err, "invalid restore destination")
		}

		var backupPath string

		if _, err := os.Stat(fs.OriginalPath); err == nil {
			backupPath = fmt.Sprintf("%s.backup.%d", fs.OriginalPath, time.Now().UnixMilli())
			if err := copier.CopyFile(fs.OriginalPath, backupPath); err != nil {
				return apierr.Wrap(apierr.IoError, err, "backing up existing destination")
			}
		}

		if err := copier.CopyFile(fs.SnapshotPath, fs.OriginalPath); err != nil {
			return apierr.Wrap(apierr.IoError, err, "restoring snapshot content")
		}

		if session, ok := s.idx.Sessions[fs.SessionID]; ok {
			session.CurrentID = fs.ID
			session.LastModified = time.Now().UTC()
		}

		if err := s.persistLocked(); err != nil {
			return err
		}

		result = RestoreSnapshotResult{RestoredPath: fs.OriginalPath, BackupPath: backupPath}

		return nil
	})
	if err != nil {
		return RestoreSnapshotResult{}, err
	}

	log.Infow("restored file snapshot", "id", snapshotID, "path", result.RestoredPath)

	return result, nil
}

// ListOptions filters ListSnapshots.
type ListOptions struct {
	SessionID string
	FilePath  string
	Limit     int
}

// ListSnapshots returns snapshots newest-first, optionally filtered by
// session and/or original path (spec §4.5).
func (s *Store) ListSnapshots(opts ListOptions) ([]FileSnapshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FileSnapshot, 0, len(s.idx.Snapshots))

	for _, fs := range s.idx.Snapshots {
		if opts.SessionID != "" && fs.SessionID != opts.SessionID {
			continue
		}

		if opts.FilePath != "" && fs.OriginalPath != opts.FilePath {
			continue
		}

		out = append(out, *fs)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	return out, nil
}

// DeleteSnapshot removes a snapshot's on-disk directory and index entry,
// repointing its session's current pointer if needed (spec §4.5).
func (s *Store) DeleteSnapshot(snapshotID string) (err error) {
	started := time.Now()
	defer func() { s.observe("DeleteSnapshot", started, err) }()

	if err := s.ready(); err != nil {
		return err
	}

	err = s.locks.WithLock(lockKeySaveData, func() error {
		fs, ok := s.idx.Snapshots[snapshotID]
		if !ok {
			return apierr.New(apierr.NotFound, "snapshot not found")
		}

		snapshotDir := filepath.Dir(fs.SnapshotPath)
		if err := os.RemoveAll(snapshotDir); err != nil {
			return apierr.Wrap(apierr.IoError, err, "removing snapshot directory")
		}

		delete(s.idx.Snapshots, snapshotID)

		if session, ok := s.idx.Sessions[fs.SessionID]; ok {
			session.SnapshotIDs = removeID(session.SnapshotIDs, snapshotID)

			if session.CurrentID == snapshotID {
				session.CurrentID = newestOf(s.idx, session.SnapshotIDs)
			}
		}

		return s.persistLocked()
	})

	return err
}

func removeID(ids []string, target string) []string {
	out := ids[:0]

	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}

	return out
}

func newestOf(idx *sessionIndex, ids []string) string {
	var newest *FileSnapshot

	for _, id := range ids {
		fs, ok := idx.Snapshots[id]
		if !ok {
			continue
		}

		if newest == nil || fs.Timestamp.After(newest.Timestamp) {
			newest = fs
		}
	}

	if newest == nil {
		return ""
	}

	return newest.ID
}
