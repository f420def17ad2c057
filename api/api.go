// Package api realizes the RPC surface described in spec.md §6 as ordinary
// Go functions over a Result[T] discriminated return value. It is the seam
// an out-of-process transport (not part of this module) would call into:
// api itself opens no sockets and parses no wire format, matching the
// channel-separation rule that diagnostics never leak into a Result.
package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/snow-wind-001/CodeRecoder/apierr"
	"github.com/snow-wind-001/CodeRecoder/filestore"
	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
	"github.com/snow-wind-001/CodeRecoder/internal/metrics"
	"github.com/snow-wind-001/CodeRecoder/projectstore"
)

var log = diagnostics.Module("coderecoder/api")

// Result is the discriminated value every API operation returns. Exactly
// one of Data or {Kind, Message} is meaningful, selected by OK.
type Result[T any] struct {
	OK      bool        `json:"ok"`
	Data    T           `json:"data,omitempty"`
	Kind    apierr.Kind `json:"errorKind,omitempty"`
	Message string      `json:"message,omitempty"`
}

func ok[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

func fail[T any](err error) Result[T] {
	kind := apierr.KindOf(err)
	if kind == "" {
		kind = apierr.IoError
	}

	return Result[T]{Kind: kind, Message: err.Error()}
}

// Service binds a file store and a project store to a single project
// activation, exposing the full spec.md §6 operation table.
type Service struct {
	files    *filestore.Store
	projects *projectstore.Store
}

// NewService wires a fresh, unactivated Service, registering its operation
// metrics with the default Prometheus registry.
func NewService() *Service {
	return NewServiceWithRegistry(prometheus.DefaultRegisterer)
}

// NewServiceWithRegistry wires a fresh, unactivated Service whose metrics
// register with reg instead of the default registry — callers embedding
// CodeRecoder alongside other instrumented components use this to avoid
// colliding with their own default-registry metrics. reg may be nil to
// disable metrics export entirely.
func NewServiceWithRegistry(reg prometheus.Registerer) *Service {
	collector := metrics.NewCollector(reg)

	files := filestore.New()
	files.SetMetrics(collector)

	projects := projectstore.New()
	projects.SetMetrics(collector)

	return &Service{files: files, projects: projects}
}

// SetEnricher installs the async file-snapshot enrichment backend (spec
// §4.5's "async, best-effort" AI analysis seam).
func (s *Service) SetEnricher(e filestore.Enricher) {
	s.files.SetEnricher(e)
}

// ActivateProjectRequest is activate_project's input (spec §6).
type ActivateProjectRequest struct {
	ProjectPath string
	Name        string
	Language    string
}

// ActivateProjectResponse is activate_project's output.
type ActivateProjectResponse struct {
	CacheDirectory string `json:"cacheDirectory"`
}

// ActivateProject binds both stores to req.ProjectPath's cache directory
// (<project_path>/.CodeRecoder), per spec §4.9's Unbound→Bound transition.
func (s *Service) ActivateProject(req ActivateProjectRequest) Result[ActivateProjectResponse] {
	cacheDir := req.ProjectPath + "/.CodeRecoder"

	if err := s.files.Activate(cacheDir, req.ProjectPath); err != nil {
		return fail[ActivateProjectResponse](err)
	}

	if err := s.projects.Activate(cacheDir, req.ProjectPath); err != nil {
		return fail[ActivateProjectResponse](err)
	}

	log.Infow("activated project", "projectPath", req.ProjectPath, "name", req.Name, "language", req.Language)

	return ok(ActivateProjectResponse{CacheDirectory: cacheDir})
}

// DeactivateProjectRequest is deactivate_project's input.
type DeactivateProjectRequest struct {
	SaveHistory bool
}

// DeactivateProject releases the cross-process activation guard. SaveHistory
// is accepted for interface parity with spec.md §6 but has no effect: the
// index is always persisted synchronously by every mutating call, so there
// is nothing left to flush on deactivation.
func (s *Service) DeactivateProject(_ DeactivateProjectRequest) Result[struct{}] {
	if err := s.projects.Deactivate(); err != nil {
		return fail[struct{}](err)
	}

	log.Infow("deactivated project")

	return ok(struct{}{})
}

// CreateFileSnapshotRequest is create_file_snapshot's input.
type CreateFileSnapshotRequest struct {
	FilePath  string
	Prompt    string
	SessionID string
	Metadata  map[string]any
}

// CreateFileSnapshotResponse is create_file_snapshot's output.
type CreateFileSnapshotResponse struct {
	SnapshotID string `json:"snapshotId"`
	FileSize   int64  `json:"fileSize"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// CreateFileSnapshot captures one file's content (spec §4.5).
func (s *Service) CreateFileSnapshot(req CreateFileSnapshotRequest) Result[CreateFileSnapshotResponse] {
	res, err := s.files.CreateSnapshot(filestore.CreateSnapshotRequest{
		FilePath:  req.FilePath,
		Prompt:    req.Prompt,
		SessionID: req.SessionID,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return fail[CreateFileSnapshotResponse](err)
	}

	return ok(CreateFileSnapshotResponse{SnapshotID: res.SnapshotID, FileSize: res.FileSize, SizeBytes: res.SizeBytes})
}

// RestoreFileSnapshotResponse is restore_file_snapshot's output.
type RestoreFileSnapshotResponse struct {
	RestoredPath string `json:"restoredPath"`
	BackupPath   string `json:"backupPath,omitempty"`
}

// RestoreFileSnapshot writes a captured file's content back to its original
// path, backing up whatever is there first (spec §4.5).
func (s *Service) RestoreFileSnapshot(snapshotID string) Result[RestoreFileSnapshotResponse] {
	res, err := s.files.RestoreSnapshot(snapshotID)
	if err != nil {
		return fail[RestoreFileSnapshotResponse](err)
	}

	return ok(RestoreFileSnapshotResponse{RestoredPath: res.RestoredPath, BackupPath: res.BackupPath})
}

// ListFileSnapshotsRequest is list_file_snapshots's input.
type ListFileSnapshotsRequest struct {
	SessionID string
	FilePath  string
	Limit     int
}

// ListFileSnapshots returns file snapshots newest-first, optionally
// filtered by session or original path (spec §4.5).
func (s *Service) ListFileSnapshots(req ListFileSnapshotsRequest) Result[[]filestore.FileSnapshot] {
	snaps, err := s.files.ListSnapshots(filestore.ListOptions{
		SessionID: req.SessionID,
		FilePath:  req.FilePath,
		Limit:     req.Limit,
	})
	if err != nil {
		return fail[[]filestore.FileSnapshot](err)
	}

	return ok(snaps)
}

// DeleteFileSnapshot removes a captured file snapshot and its on-disk payload.
func (s *Service) DeleteFileSnapshot(snapshotID string) Result[struct{}] {
	if err := s.files.DeleteSnapshot(snapshotID); err != nil {
		return fail[struct{}](err)
	}

	return ok(struct{}{})
}

// CreateProjectSnapshotRequest is create_project_snapshot's input.
type CreateProjectSnapshotRequest struct {
	Prompt string
	Name   string
	Tags   []string
}

// CreateProjectSnapshotResponse is create_project_snapshot's output.
type CreateProjectSnapshotResponse struct {
	SnapshotID   string            `json:"snapshotId"`
	SaveNumber   int               `json:"saveNumber"`
	Kind         projectstore.Kind `json:"kind"`
	ChangedFiles []string          `json:"changedFiles"`
	Analysis     map[string]any    `json:"analysis,omitempty"`
}

// CreateProjectSnapshot captures the whole project tree's current state,
// deciding full vs incremental per spec §4.6.
func (s *Service) CreateProjectSnapshot(ctx context.Context, req CreateProjectSnapshotRequest) Result[CreateProjectSnapshotResponse] {
	res, err := s.projects.CreateProjectSnapshot(ctx, projectstore.CreateProjectSnapshotRequest{
		Prompt: req.Prompt,
		Name:   req.Name,
		Tags:   req.Tags,
	})
	if err != nil {
		return fail[CreateProjectSnapshotResponse](err)
	}

	return ok(CreateProjectSnapshotResponse{
		SnapshotID:   res.ID,
		SaveNumber:   res.SaveNumber,
		Kind:         res.Kind,
		ChangedFiles: res.ChangedFiles,
		Analysis:     res.Analysis,
	})
}

// ListProjectSnapshots returns every project snapshot sorted by save number
// descending, each annotated per spec §4.6.
func (s *Service) ListProjectSnapshots() Result[[]projectstore.ListProjectSnapshotSummary] {
	summaries, err := s.projects.ListProjectSnapshots()
	if err != nil {
		return fail[[]projectstore.ListProjectSnapshotSummary](err)
	}

	return ok(summaries)
}

// RestoreProjectSnapshotResponse is restore_project_snapshot's output.
type RestoreProjectSnapshotResponse struct {
	SaveNumber int               `json:"saveNumber"`
	Kind       projectstore.Kind `json:"kind"`
}

// RestoreProjectSnapshot replays a snapshot's resolved chain into the
// project root (spec §4.6, §4.7).
func (s *Service) RestoreProjectSnapshot(snapshotID string) Result[RestoreProjectSnapshotResponse] {
	res, err := s.projects.RestoreProjectSnapshot(snapshotID)
	if err != nil {
		return fail[RestoreProjectSnapshotResponse](err)
	}

	return ok(RestoreProjectSnapshotResponse{SaveNumber: res.SaveNumber, Kind: res.Kind})
}
