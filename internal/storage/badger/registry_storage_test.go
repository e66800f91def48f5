package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

func TestRepositoryStorage_SetActiveKeepsSingleActive(t *testing.T) {
	storage := NewRepositoryStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, storage.SaveRepository(ctx, &models.Repository{Name: name, CreatedAt: time.Now()}))
	}

	_, err := storage.GetActive(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, storage.SetActive(ctx, "beta"))
	require.NoError(t, storage.SetActive(ctx, "gamma"))

	active, err := storage.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gamma", active.Name)

	repos, err := storage.ListRepositories(ctx)
	require.NoError(t, err)
	count := 0
	for _, r := range repos {
		if r.Active {
			count++
		}
	}
	assert.Equal(t, 1, count)

	err = storage.SetActive(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	active, err = storage.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gamma", active.Name, "failed activation leaves state unchanged")
}

func TestJobLogStorage_TailIsChronological(t *testing.T) {
	storage := NewJobLogStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three", "four"} {
		require.NoError(t, storage.AppendLog(ctx, "job-1", models.JobLogEntry{Level: "INF", Message: msg}))
	}
	require.NoError(t, storage.AppendLog(ctx, "job-2", models.JobLogEntry{Level: "INF", Message: "other"}))

	logs, err := storage.GetLogs(ctx, "job-1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "three", logs[0].Message)
	assert.Equal(t, "four", logs[1].Message)

	require.NoError(t, storage.DeleteLogs(ctx, "job-1"))
	logs, err = storage.GetLogs(ctx, "job-1", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestJobStorage_ListFiltersByKindAndOwner(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, models.NewJob(models.JobKindTraining, "proj-a", nil)))
	require.NoError(t, storage.SaveJob(ctx, models.NewJob(models.JobKindIndexing, "repo-a", nil)))
	require.NoError(t, storage.SaveJob(ctx, models.NewJob(models.JobKindTraining, "proj-b", nil)))

	jobs, err := storage.ListJobs(ctx, models.JobKindTraining, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = storage.ListJobs(ctx, "", "repo-a")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobKindIndexing, jobs[0].Kind)

	_, err = storage.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestIndexStorage_ReplaceIndex(t *testing.T) {
	storage := NewIndexStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.ReplaceIndex(ctx, "alpha", []models.IndexDocument{
		{Path: "B.java", Tokens: []string{"B"}},
		{Path: "A.java", Tokens: []string{"A"}},
	}))
	require.NoError(t, storage.ReplaceIndex(ctx, "beta", []models.IndexDocument{{Path: "C.java"}}))
	require.NoError(t, storage.ReplaceIndex(ctx, "alpha", []models.IndexDocument{{Path: "D.java"}}))

	docs, err := storage.ListDocuments(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alpha/D.java", docs[0].ID)

	docs, err = storage.ListDocuments(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
