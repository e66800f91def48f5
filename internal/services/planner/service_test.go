package planner

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

type fakeAnalyzer struct {
	calls   int32
	graph   *models.DependencyGraph
	started chan struct{} // when set, receives once per call
	release chan struct{} // when set, every call waits for it
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, repoPath string, exts []string) (*models.DependencyGraph, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.graph, nil
}

func (f *fakeAnalyzer) ParseSource(ctx context.Context, path string, code []byte) (*models.SourceUnit, error) {
	return nil, nil
}

type fakeRepos struct {
	interfaces.RepositoryStorage
	repos map[string]*models.Repository
}

func (f *fakeRepos) GetRepository(ctx context.Context, name string) (*models.Repository, error) {
	if r, ok := f.repos[name]; ok {
		return r, nil
	}
	return nil, interfaces.NewNotFound("repository %s not found", name)
}

func (f *fakeRepos) GetActive(ctx context.Context) (*models.Repository, error) {
	for _, r := range f.repos {
		if r.Active {
			return r, nil
		}
	}
	return nil, interfaces.NewNotFound("no active repository")
}

func newTestService(repos map[string]*models.Repository) (*Service, *fakeAnalyzer) {
	graph := models.NewGraphFromEdges([]string{"A", "B", "C"}, []models.Edge{{From: "A", To: "B"}, {From: "B", To: "C"}})
	an := &fakeAnalyzer{graph: graph}
	svc := NewService(NewPlanner(5, nil), an, &fakeRepos{repos: repos}, nil, []string{".java"}, arbor.NewLogger())
	return svc, an
}

func TestService_GetPlanUsesActiveRepositoryAndCaches(t *testing.T) {
	svc, an := newTestService(map[string]*models.Repository{
		"legacy": {Name: "legacy", LocalPath: "/src/legacy", Active: true},
	})

	plan, err := svc.GetPlan(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, plan.MigrationOrder)
	assert.Equal(t, "legacy", plan.Repository)

	_, err = svc.GetPlan(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&an.calls))

	_, err = svc.Refresh(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&an.calls))
}

func TestService_Errors(t *testing.T) {
	svc, _ := newTestService(map[string]*models.Repository{
		"bare": {Name: "bare"},
	})

	_, err := svc.GetPlan(context.Background(), "")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = svc.GetPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = svc.GetPlan(context.Background(), "bare")
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestService_CallerCancellationDoesNotFailSharedAnalysis(t *testing.T) {
	svc, an := newTestService(map[string]*models.Repository{
		"legacy": {Name: "legacy", LocalPath: "/src/legacy", Active: true},
	})
	an.started = make(chan struct{}, 1)
	an.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetPlan(ctx, "legacy")
		firstErr <- err
	}()
	<-an.started

	secondErr := make(chan error, 1)
	var plan *models.MigrationPlan
	go func() {
		var err error
		plan, err = svc.GetPlan(context.Background(), "legacy")
		secondErr <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(an.release)
	require.NoError(t, <-secondErr)
	assert.Equal(t, []string{"C", "B", "A"}, plan.MigrationOrder)

	// the shared analysis was cached
	_, err := svc.GetPlan(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&an.calls))
}

func TestService_InvalidateDuringAnalysisIsNotOverwritten(t *testing.T) {
	svc, an := newTestService(map[string]*models.Repository{
		"legacy": {Name: "legacy", LocalPath: "/src/legacy", Active: true},
	})
	an.started = make(chan struct{}, 2)
	an.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetPlan(context.Background(), "legacy")
		done <- err
	}()
	<-an.started

	svc.Invalidate("legacy")
	close(an.release)
	require.NoError(t, <-done)

	svc.mu.RLock()
	_, cached := svc.cache["legacy"]
	svc.mu.RUnlock()
	assert.False(t, cached, "stale analysis must not be cached")

	_, err := svc.GetPlan(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&an.calls))
}
