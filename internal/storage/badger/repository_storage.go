package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// RepositoryStorage implements the RepositoryStorage interface for Badger
type RepositoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRepositoryStorage creates a new RepositoryStorage instance
func NewRepositoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RepositoryStorage {
	return &RepositoryStorage{db: db, logger: logger}
}

func (s *RepositoryStorage) SaveRepository(ctx context.Context, repo *models.Repository) error {
	if repo.Name == "" {
		return fmt.Errorf("repository name is required")
	}
	if err := s.db.Store().Upsert(repo.Name, repo); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	return nil
}

func (s *RepositoryStorage) GetRepository(ctx context.Context, name string) (*models.Repository, error) {
	var repo models.Repository
	if err := s.db.Store().Get(name, &repo); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.NewNotFound("repository %s not found", name)
		}
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return &repo, nil
}

func (s *RepositoryStorage) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	var repos []models.Repository
	if err := s.db.Store().Find(&repos, nil); err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	result := make([]*models.Repository, 0, len(repos))
	for i := range repos {
		result = append(result, &repos[i])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *RepositoryStorage) DeleteRepository(ctx context.Context, name string) error {
	err := s.db.Store().Delete(name, &models.Repository{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.NewNotFound("repository %s not found", name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	return nil
}

func (s *RepositoryStorage) GetActive(ctx context.Context) (*models.Repository, error) {
	var repos []models.Repository
	if err := s.db.Store().Find(&repos, badgerhold.Where("Active").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to find active repository: %w", err)
	}
	if len(repos) == 0 {
		return nil, interfaces.NewNotFound("no active repository")
	}
	return &repos[0], nil
}

// SetActive flips the active flag for every repository inside one transaction so
// at most one repository is ever active. An empty name deactivates all.
func (s *RepositoryStorage) SetActive(ctx context.Context, name string) error {
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var repos []models.Repository
		if err := s.db.Store().TxFind(tx, &repos, nil); err != nil {
			return err
		}

		found := name == ""
		for i := range repos {
			want := repos[i].Name == name
			if want {
				found = true
			}
			if repos[i].Active == want {
				continue
			}
			repos[i].Active = want
			if err := s.db.Store().TxUpdate(tx, repos[i].Name, &repos[i]); err != nil {
				return err
			}
		}
		if !found {
			return interfaces.NewNotFound("repository %s not found", name)
		}
		return nil
	})
	if err != nil {
		var typed *interfaces.Error
		if errors.As(err, &typed) {
			return err
		}
		return fmt.Errorf("failed to set active repository: %w", err)
	}
	return nil
}
