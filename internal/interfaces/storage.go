package interfaces

import (
	"context"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// DatasetStorage persists draft and golden dataset entries.
// Draft and golden filenames are each unique; Promote moves an entry atomically.
type DatasetStorage interface {
	// AllocateFilename returns a filename that has never been handed out before.
	AllocateFilename(ctx context.Context, sourceFile string) (string, error)

	SaveDraft(ctx context.Context, entry *models.DatasetEntry) error
	UpdateDraft(ctx context.Context, entry *models.DatasetEntry) error
	GetDraft(ctx context.Context, filename string) (*models.DatasetEntry, error)
	ListDrafts(ctx context.Context) ([]*models.DatasetEntry, error)
	DeleteDraft(ctx context.Context, filename string) error

	GetGolden(ctx context.Context, filename string) (*models.DatasetEntry, error)
	ListGolden(ctx context.Context) ([]*models.DatasetEntry, error)

	// Promote inserts entry into the golden store and removes the draft in one transaction.
	// Returns InvalidStateTransition if the filename is already golden.
	Promote(ctx context.Context, entry *models.DatasetEntry) error
}

// JobStorage persists job records.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, kind models.JobKind, owner string) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// JobLogStorage persists job log lines.
type JobLogStorage interface {
	AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) error
	AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error
	// GetLogs returns the last limit entries in chronological order (limit <= 0 returns all).
	GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
	DeleteLogs(ctx context.Context, jobID string) error
}

// ProjectStorage persists training projects.
type ProjectStorage interface {
	SaveProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, name string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	DeleteProject(ctx context.Context, name string) error
}

// RepositoryStorage persists the retrieval repository registry.
type RepositoryStorage interface {
	SaveRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, name string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	DeleteRepository(ctx context.Context, name string) error
	// GetActive returns the active repository or NotFound.
	GetActive(ctx context.Context) (*models.Repository, error)
	// SetActive marks name active and every other repository inactive in one transaction.
	SetActive(ctx context.Context, name string) error
}

// IndexStorage persists retrieval index documents per repository.
type IndexStorage interface {
	ReplaceIndex(ctx context.Context, repository string, docs []models.IndexDocument) error
	ListDocuments(ctx context.Context, repository string) ([]models.IndexDocument, error)
	DeleteIndex(ctx context.Context, repository string) error
}

// StorageManager groups all stores over one database.
type StorageManager interface {
	DatasetStorage() DatasetStorage
	JobStorage() JobStorage
	JobLogStorage() JobLogStorage
	ProjectStorage() ProjectStorage
	RepositoryStorage() RepositoryStorage
	IndexStorage() IndexStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
