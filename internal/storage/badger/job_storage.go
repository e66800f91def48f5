package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.NewNotFound("job %s not found", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs filtered by kind and owner (empty values match all), newest first.
func (s *JobStorage) ListJobs(ctx context.Context, kind models.JobKind, owner string) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")
	if kind != "" {
		query = query.And("Kind").Eq(kind)
	}
	if owner != "" {
		query = query.And("Owner").Eq(owner)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		result = append(result, &jobs[i])
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Job{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.NewNotFound("job %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
