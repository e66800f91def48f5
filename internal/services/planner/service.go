package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// Snapshot is an analyzed repository together with its plan.
type Snapshot struct {
	Graph *models.DependencyGraph
	Plan  *models.MigrationPlan
}

// Service caches one plan per repository and re-analyzes on demand.
type Service struct {
	planner    *Planner
	analyzer   interfaces.Analyzer
	repos      interfaces.RepositoryStorage
	events     interfaces.EventService
	extensions []string
	logger     arbor.ILogger

	mu          sync.RWMutex
	cache       map[string]*Snapshot
	generations map[string]uint64 // bumped by Invalidate; stale analyses are not cached
	group       singleflight.Group
}

// NewService creates the plan cache service
func NewService(
	planner *Planner,
	analyzer interfaces.Analyzer,
	repos interfaces.RepositoryStorage,
	events interfaces.EventService,
	extensions []string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		planner:     planner,
		analyzer:    analyzer,
		repos:       repos,
		events:      events,
		extensions:  extensions,
		logger:      logger,
		cache:       make(map[string]*Snapshot),
		generations: make(map[string]uint64),
	}
}

// GetPlan returns the plan for repository, or for the active repository when
// the name is empty. Cached plans are reused until Refresh or Invalidate.
func (s *Service) GetPlan(ctx context.Context, repository string) (*models.MigrationPlan, error) {
	snap, err := s.Snapshot(ctx, repository)
	if err != nil {
		return nil, err
	}
	return snap.Plan, nil
}

// Snapshot returns the cached graph and plan, analyzing on a cache miss.
func (s *Service) Snapshot(ctx context.Context, repository string) (*Snapshot, error) {
	repo, err := s.resolve(ctx, repository)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	snap, ok := s.cache[repo.Name]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	return s.analyze(ctx, repo)
}

// Refresh re-analyzes the repository and replaces its cached plan.
func (s *Service) Refresh(ctx context.Context, repository string) (*models.MigrationPlan, error) {
	repo, err := s.resolve(ctx, repository)
	if err != nil {
		return nil, err
	}
	s.Invalidate(repo.Name)

	snap, err := s.analyze(ctx, repo)
	if err != nil {
		return nil, err
	}
	return snap.Plan, nil
}

// Invalidate drops the cached plan of a repository. An analysis already in
// flight still answers its callers but is not cached.
func (s *Service) Invalidate(repository string) {
	s.mu.Lock()
	delete(s.cache, repository)
	s.generations[repository]++
	s.mu.Unlock()
}

func (s *Service) resolve(ctx context.Context, repository string) (*models.Repository, error) {
	if repository == "" {
		repo, err := s.repos.GetActive(ctx)
		if err != nil {
			return nil, interfaces.NewNotFound("no active repository to plan")
		}
		return repo, nil
	}
	return s.repos.GetRepository(ctx, repository)
}

func (s *Service) analyze(ctx context.Context, repo *models.Repository) (*Snapshot, error) {
	if repo.LocalPath == "" {
		return nil, interfaces.NewConfigurationError("repository %s has no local checkout", repo.Name)
	}

	s.mu.RLock()
	generation := s.generations[repo.Name]
	s.mu.RUnlock()

	// callers share one analysis per generation; it outlives any single caller
	key := fmt.Sprintf("%s@%d", repo.Name, generation)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		graph, err := s.analyzer.Analyze(ctx, repo.LocalPath, s.extensions)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze repository %s: %w", repo.Name, err)
		}

		plan := s.planner.Plan(graph)
		plan.Repository = repo.Name
		snap := &Snapshot{Graph: graph, Plan: plan}

		s.mu.Lock()
		current := s.generations[repo.Name] == generation
		if current {
			s.cache[repo.Name] = snap
		}
		s.mu.Unlock()
		if !current {
			s.logger.Debug().Str("repository", repo.Name).Msg("Plan invalidated during analysis, not cached")
			return snap, nil
		}

		s.logger.Info().
			Str("repository", repo.Name).
			Int("nodes", plan.Nodes).
			Int("edges", plan.Edges).
			Bool("cyclic", plan.Cyclic).
			Msg("Migration plan computed")

		if s.events != nil {
			_ = s.events.Publish(ctx, interfaces.Event{
				Type: interfaces.EventPlanUpdated,
				Payload: map[string]interface{}{
					"repository": repo.Name,
					"nodes":      plan.Nodes,
					"edges":      plan.Edges,
					"cyclic":     plan.Cyclic,
				},
			})
		}
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
