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

// ProjectStorage implements the ProjectStorage interface for Badger
type ProjectStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProjectStorage creates a new ProjectStorage instance
func NewProjectStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProjectStorage {
	return &ProjectStorage{db: db, logger: logger}
}

func (s *ProjectStorage) SaveProject(ctx context.Context, project *models.Project) error {
	if project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if err := s.db.Store().Upsert(project.Name, project); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *ProjectStorage) GetProject(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Store().Get(name, &project); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.NewNotFound("project %s not found", name)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (s *ProjectStorage) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var projects []models.Project
	if err := s.db.Store().Find(&projects, nil); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	result := make([]*models.Project, 0, len(projects))
	for i := range projects {
		result = append(result, &projects[i])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *ProjectStorage) DeleteProject(ctx context.Context, name string) error {
	err := s.db.Store().Delete(name, &models.Project{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.NewNotFound("project %s not found", name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}
