// -----------------------------------------------------------------------
// Repositories - retrieval registry with indexing and activation
// -----------------------------------------------------------------------

package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/jobs"
)

var repositoryName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Indexer builds and drops the retrieval index of a repository.
type Indexer interface {
	Index(ctx context.Context, repo *models.Repository) (models.RepositoryStats, error)
	Drop(ctx context.Context, repository string) error
}

// PlanCache is invalidated when the active repository changes.
type PlanCache interface {
	Invalidate(repository string)
}

// IndexingJobs is the part of the job manager the registry uses.
type IndexingJobs interface {
	StartIndexing(ctx context.Context, repository string, config map[string]interface{}, task jobs.Task) (*models.Job, error)
	LockRepository(ctx context.Context, repository string) (func(), error)
	EnsureIdle(owner string, kinds ...models.JobKind) error
}

// AddRequest registers a repository. LocalPath defaults to URL when URL is a
// local directory, otherwise to <repos_dir>/<name>.
type AddRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	URL       string `json:"url" validate:"required"`
	LocalPath string `json:"local_path"`
}

// Service manages the repository registry.
type Service struct {
	storage  interfaces.RepositoryStorage
	index    Indexer
	plans    PlanCache
	jobs     IndexingJobs
	events   interfaces.EventService
	reposDir string
	logger   arbor.ILogger
}

// NewService creates the repository registry service
func NewService(
	storage interfaces.RepositoryStorage,
	index Indexer,
	plans PlanCache,
	jobs IndexingJobs,
	events interfaces.EventService,
	reposDir string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		storage:  storage,
		index:    index,
		plans:    plans,
		jobs:     jobs,
		events:   events,
		reposDir: reposDir,
		logger:   logger,
	}
}

// Add registers a repository. The first repository becomes active.
func (s *Service) Add(ctx context.Context, req AddRequest) (*models.Repository, error) {
	if !repositoryName.MatchString(req.Name) {
		return nil, interfaces.NewConfigurationError("invalid repository name %q", req.Name)
	}
	if _, err := s.storage.GetRepository(ctx, req.Name); err == nil {
		return nil, interfaces.NewResourceConflict("repository %s already exists", req.Name)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	existing, err := s.storage.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	repo := &models.Repository{
		Name:      req.Name,
		URL:       req.URL,
		LocalPath: s.localPath(req),
		CreatedAt: time.Now(),
	}
	if err := s.storage.SaveRepository(ctx, repo); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("repository", repo.Name).
		Str("local_path", repo.LocalPath).
		Msg("Repository added")

	if len(existing) == 0 {
		return s.Activate(ctx, repo.Name)
	}
	return repo, nil
}

func (s *Service) localPath(req AddRequest) string {
	if req.LocalPath != "" {
		return req.LocalPath
	}
	path := strings.TrimPrefix(req.URL, "file://")
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Join(s.reposDir, req.Name)
}

// List returns every repository ordered by name.
func (s *Service) List(ctx context.Context) ([]*models.Repository, error) {
	repos, err := s.storage.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	return repos, nil
}

// Get returns one repository.
func (s *Service) Get(ctx context.Context, name string) (*models.Repository, error) {
	return s.storage.GetRepository(ctx, name)
}

// Index queues an indexing job. Indexing holds the repository lock, so it is
// serialized with activation and other indexing of the same repository.
func (s *Service) Index(ctx context.Context, name string) (*models.Job, error) {
	repo, err := s.storage.GetRepository(ctx, name)
	if err != nil {
		return nil, err
	}

	config := map[string]interface{}{
		"repository": repo.Name,
		"local_path": repo.LocalPath,
	}
	return s.jobs.StartIndexing(ctx, repo.Name, config, func(ctx context.Context, run *jobs.Run) error {
		// the repository lock is held from here; it may have been deleted while queued
		repo, err := s.storage.GetRepository(ctx, name)
		if err != nil {
			return err
		}
		run.Logger.Info().Str("repository", name).Str("local_path", repo.LocalPath).Msg("Indexing started")

		stats, err := s.index.Index(ctx, repo)
		if err != nil {
			return err
		}

		// Re-read so a concurrent activation flag is not overwritten.
		current, err := s.storage.GetRepository(ctx, name)
		if err != nil {
			return err
		}
		now := time.Now()
		current.Stats = stats
		current.Indexed = true
		current.IndexedAt = &now
		if err := s.storage.SaveRepository(ctx, current); err != nil {
			return err
		}

		if current.Active {
			s.plans.Invalidate(name)
		}

		run.Logger.Info().
			Str("repository", name).
			Int("files", stats.Files).
			Int("classes", stats.Classes).
			Msg("Indexing complete")

		s.publish(ctx, interfaces.EventRepositoryIndexed, map[string]interface{}{
			"repository": name,
			"files":      stats.Files,
			"lines":      stats.Lines,
			"classes":    stats.Classes,
			"job_id":     run.ID(),
		})
		return nil
	})
}

// Activate makes name the repository used for retrieval and planning.
func (s *Service) Activate(ctx context.Context, name string) (*models.Repository, error) {
	unlock, err := s.jobs.LockRepository(ctx, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	previous, _ := s.storage.GetActive(ctx)
	if err := s.storage.SetActive(ctx, name); err != nil {
		return nil, err
	}
	if previous != nil {
		s.plans.Invalidate(previous.Name)
	}
	s.plans.Invalidate(name)

	repo, err := s.storage.GetRepository(ctx, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("repository", name).Msg("Repository activated")
	s.publish(ctx, interfaces.EventRepositoryActivated, map[string]interface{}{
		"repository": name,
	})
	return repo, nil
}

// Delete removes an idle repository and its index. Deleting the active
// repository activates the next one by name, if any.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.jobs.EnsureIdle(name, models.JobKindIndexing); err != nil {
		return err
	}
	wasActive, err := s.remove(ctx, name)
	if err != nil || !wasActive {
		return err
	}

	rest, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return nil
	}
	_, err = s.Activate(ctx, rest[0].Name)
	return err
}

// remove deletes the repository record, then its index, under the repository
// lock. An indexing job queued meanwhile finds the repository gone.
func (s *Service) remove(ctx context.Context, name string) (bool, error) {
	unlock, err := s.jobs.LockRepository(ctx, name)
	if err != nil {
		return false, err
	}
	defer unlock()

	repo, err := s.storage.GetRepository(ctx, name)
	if err != nil {
		return false, err
	}
	// indexing queued behind the lock counts as active
	if err := s.jobs.EnsureIdle(name, models.JobKindIndexing); err != nil {
		return false, err
	}

	if err := s.storage.DeleteRepository(ctx, name); err != nil {
		return false, err
	}
	s.plans.Invalidate(name)
	if err := s.index.Drop(ctx, name); err != nil {
		s.logger.Warn().Err(err).Str("repository", name).Msg("Repository deleted but its index was not dropped")
		return repo.Active, fmt.Errorf("failed to drop index of %s: %w", name, err)
	}

	s.logger.Info().Str("repository", name).Msg("Repository deleted")
	return repo.Active, nil
}

func (s *Service) publish(ctx context.Context, t interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: t, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(t)).Msg("Failed to publish event")
	}
}
