package handlers

import (
	"context"
	"io"

	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/projects"
	"github.com/neto007/HRM-pipeline/internal/services/repositories"
	"github.com/neto007/HRM-pipeline/internal/services/scheduler"
)

// PlanService serves cached migration plans.
type PlanService interface {
	GetPlan(ctx context.Context, repository string) (*models.MigrationPlan, error)
	Refresh(ctx context.Context, repository string) (*models.MigrationPlan, error)
}

// GenerationService starts batch generation and runs single transcriptions.
type GenerationService interface {
	Start(ctx context.Context, req models.GenerationRequest) (*models.Job, error)
	Transcribe(ctx context.Context, code string, req models.GenerationRequest) (*models.TranscribeResult, error)
}

// CheckpointLister lists guidance checkpoints.
type CheckpointLister interface {
	List(ctx context.Context) ([]models.Checkpoint, error)
}

// DatasetService curates generated entries.
type DatasetService interface {
	List(ctx context.Context, status models.EntryStatus) ([]models.DatasetSummary, error)
	Get(ctx context.Context, filename string) (*models.DatasetEntry, error)
	Open(ctx context.Context, filename string) (*models.DatasetEntry, error)
	Approve(ctx context.Context, filename string, editedCode string) (*models.DatasetEntry, error)
	Reject(ctx context.Context, filename string) error
	GenerateTest(ctx context.Context, filename string, model string) (*models.GeneratedTest, error)
	Stats(ctx context.Context) (*models.DatasetStats, error)
	Export(ctx context.Context, w io.Writer) (int, error)
}

// JobService exposes job status and control.
type JobService interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, kind models.JobKind, owner string) ([]*models.Job, error)
	Pause(ctx context.Context, id string) (*models.Job, error)
	Resume(ctx context.Context, id string) (*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
}

// JobLogService tails job logs.
type JobLogService interface {
	Tail(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
}

// ProjectService manages training projects.
type ProjectService interface {
	Create(ctx context.Context, req projects.CreateRequest) (*models.Project, error)
	Retrain(ctx context.Context, name string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Get(ctx context.Context, name string) (*models.Project, error)
	Pause(ctx context.Context, name string) (*models.Project, error)
	Resume(ctx context.Context, name string) (*models.Project, error)
	Cancel(ctx context.Context, name string) (*models.Project, error)
	Delete(ctx context.Context, name string) error
	Logs(ctx context.Context, name string, lines int) ([]string, error)
}

// RepositoryService manages the retrieval registry.
type RepositoryService interface {
	Add(ctx context.Context, req repositories.AddRequest) (*models.Repository, error)
	List(ctx context.Context) ([]*models.Repository, error)
	Get(ctx context.Context, name string) (*models.Repository, error)
	Index(ctx context.Context, name string) (*models.Job, error)
	Activate(ctx context.Context, name string) (*models.Repository, error)
	Delete(ctx context.Context, name string) error
}

// TaskScheduler reports and triggers scheduled tasks.
type TaskScheduler interface {
	Statuses() []*scheduler.TaskStatus
	Trigger(name string) error
}
