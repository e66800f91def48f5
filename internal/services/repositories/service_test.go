package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"go.uber.org/goleak"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/jobs"
	"github.com/neto007/HRM-pipeline/internal/services/retrieval"
	"github.com/neto007/HRM-pipeline/internal/storage/badger"
)

type recorder struct {
	interfaces.EventService
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recorder) Publish(_ context.Context, e interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t interfaces.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type plans struct {
	mu          sync.Mutex
	invalidated []string
}

func (p *plans) Invalidate(repository string) {
	p.mu.Lock()
	p.invalidated = append(p.invalidated, repository)
	p.mu.Unlock()
}

type fixture struct {
	svc     *Service
	jobs    *jobs.Manager
	storage interfaces.RepositoryStorage
	plans   *plans
	events  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewLogger()
	store, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	events := &recorder{}
	p := &plans{}
	manager := jobs.NewManager(store.JobStorage(), events, nil, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	index := retrieval.NewKeywordIndex(store.IndexStorage(), []string{".java"}, 2000, logger)
	svc := NewService(store.RepositoryStorage(), index, p, manager, events, t.TempDir(), logger)
	return &fixture{svc: svc, jobs: manager, storage: store.RepositoryStorage(), plans: p, events: events}
}

func writeJava(t *testing.T, dir, rel, code string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
}

func TestAdd_FirstRepositoryActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Add(ctx, AddRequest{Name: "shop", URL: "https://example.com/shop.git"})
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.Equal(t, "shop", filepath.Base(first.LocalPath))

	second, err := f.svc.Add(ctx, AddRequest{Name: "billing", URL: "https://example.com/billing.git"})
	require.NoError(t, err)
	assert.False(t, second.Active)

	active, err := f.storage.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop", active.Name)
	assert.Equal(t, 1, f.events.count(interfaces.EventRepositoryActivated))

	_, err = f.svc.Add(ctx, AddRequest{Name: "shop", URL: "x"})
	assert.ErrorIs(t, err, interfaces.ErrResourceConflict)

	_, err = f.svc.Add(ctx, AddRequest{Name: "bad name", URL: "x"})
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestAdd_LocalDirectoryURL(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	repo, err := f.svc.Add(context.Background(), AddRequest{Name: "local", URL: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, repo.LocalPath)
}

func TestIndex_UpdatesStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeJava(t, dir, "src/com/shop/Item.java", "package com.shop;\n\npublic class Item {\n  int price;\n}\n")
	writeJava(t, dir, "src/com/shop/Cart.java", "package com.shop;\n\npublic class Cart {\n  Item item;\n}\n")

	_, err := f.svc.Add(ctx, AddRequest{Name: "shop", URL: "https://example.com/shop.git", LocalPath: dir})
	require.NoError(t, err)

	job, err := f.svc.Index(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, models.JobKindIndexing, job.Kind)

	done, err := f.jobs.Wait(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStateCompleted, done.State, done.Error)

	repo, err := f.svc.Get(ctx, "shop")
	require.NoError(t, err)
	assert.True(t, repo.Indexed)
	assert.NotNil(t, repo.IndexedAt)
	assert.True(t, repo.Active)
	assert.Equal(t, 2, repo.Stats.Files)
	assert.Equal(t, 2, repo.Stats.Classes)
	assert.Equal(t, 10, repo.Stats.Lines)
	assert.Equal(t, 1, f.events.count(interfaces.EventRepositoryIndexed))
}

func TestIndex_MissingCheckoutFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, AddRequest{Name: "shop", URL: "x", LocalPath: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)

	job, err := f.svc.Index(ctx, "shop")
	require.NoError(t, err)
	done, err := f.jobs.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, done.State)

	repo, err := f.svc.Get(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, repo.Indexed)
}

func TestActivate_SwitchesAndInvalidatesPlans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, AddRequest{Name: "shop", URL: "x"})
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, AddRequest{Name: "billing", URL: "y"})
	require.NoError(t, err)

	repo, err := f.svc.Activate(ctx, "billing")
	require.NoError(t, err)
	assert.True(t, repo.Active)

	shop, err := f.svc.Get(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, shop.Active)

	f.plans.mu.Lock()
	assert.Contains(t, f.plans.invalidated, "shop")
	assert.Contains(t, f.plans.invalidated, "billing")
	f.plans.mu.Unlock()

	_, err = f.svc.Activate(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestDelete_ActivatesNextByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"shop", "zeta", "billing"} {
		_, err := f.svc.Add(ctx, AddRequest{Name: name, URL: name})
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Delete(ctx, "shop"))

	active, err := f.storage.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "billing", active.Name)

	require.NoError(t, f.svc.Delete(ctx, "zeta"))
	active, err = f.storage.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "billing", active.Name)

	require.NoError(t, f.svc.Delete(ctx, "billing"))
	_, err = f.storage.GetActive(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, "billing"), interfaces.ErrNotFound)
}

func TestDelete_RejectedWhileIndexing(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	_, err := f.svc.Add(ctx, AddRequest{Name: "shop", URL: "x"})
	require.NoError(t, err)

	release := make(chan struct{})
	job, err := f.jobs.StartIndexing(ctx, "shop", nil, func(ctx context.Context, _ *jobs.Run) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := f.jobs.Get(ctx, job.ID)
		return err == nil && j.State == models.JobStateRunning
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, f.svc.Delete(ctx, "shop"), interfaces.ErrResourceConflict)

	close(release)
	_, err = f.jobs.Wait(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, "shop"))
}

func TestDelete_WaitsForRepositoryLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, AddRequest{Name: "shop", URL: "x"})
	require.NoError(t, err)

	unlock, err := f.jobs.LockRepository(ctx, "shop")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.svc.Delete(ctx, "shop") }()

	select {
	case err := <-done:
		t.Fatalf("delete returned while the repository was locked: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	_, err = f.storage.GetRepository(ctx, "shop")
	require.NoError(t, err)

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("delete did not finish after the lock was released")
	}
	_, err = f.storage.GetRepository(ctx, "shop")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

type failingDrop struct {
	mu      sync.Mutex
	dropped []string
}

func (d *failingDrop) Index(context.Context, *models.Repository) (models.RepositoryStats, error) {
	return models.RepositoryStats{}, nil
}

func (d *failingDrop) Drop(_ context.Context, repository string) error {
	d.mu.Lock()
	d.dropped = append(d.dropped, repository)
	d.mu.Unlock()
	return errors.New("index store unavailable")
}

func TestDelete_DropsIndexAfterRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index := &failingDrop{}
	svc := NewService(f.storage, index, f.plans, f.jobs, f.events, t.TempDir(), arbor.NewLogger())

	_, err := svc.Add(ctx, AddRequest{Name: "shop", URL: "x"})
	require.NoError(t, err)

	err = svc.Delete(ctx, "shop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index store unavailable")

	_, err = f.storage.GetRepository(ctx, "shop")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Equal(t, []string{"shop"}, index.dropped)
	assert.Contains(t, f.plans.invalidated, "shop")

	unlock, err := f.jobs.LockRepository(ctx, "shop")
	require.NoError(t, err)
	unlock()
}
