package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/storage/badger"
)

type refresher struct {
	calls atomic.Int32
	err   error
}

func (r *refresher) Refresh(_ context.Context, repository string) (*models.MigrationPlan, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &models.MigrationPlan{Repository: "shop", Nodes: 3}, nil
}

func newKV(t *testing.T) interfaces.KeyValueStorage {
	t.Helper()
	store, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.KeyValueStorage()
}

func TestRegister_RejectsInvalidAndDuplicate(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())

	err := s.Register("bad", "every minute", "", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	require.NoError(t, s.Register("ok", "0 */5 * * * *", "", func(context.Context) error { return nil }))
	err = s.Register("ok", "0 */5 * * * *", "", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrResourceConflict)
}

func TestTrigger_RecordsOutcome(t *testing.T) {
	kv := newKV(t)
	s := NewService(kv, arbor.NewLogger())

	fail := true
	require.NoError(t, s.Register("flaky", "0 0 * * * *", "", func(context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}))

	assert.Error(t, s.Trigger("flaky"))
	status, err := s.Status("flaky")
	require.NoError(t, err)
	assert.Equal(t, "boom", status.LastError)
	require.NotNil(t, status.LastRun)

	fail = false
	require.NoError(t, s.Trigger("flaky"))
	status, err = s.Status("flaky")
	require.NoError(t, err)
	assert.Empty(t, status.LastError)

	// A new scheduler over the same store picks up the persisted last run.
	again := NewService(kv, arbor.NewLogger())
	require.NoError(t, again.Register("flaky", "0 0 * * * *", "", func(context.Context) error { return nil }))
	restored, err := again.Status("flaky")
	require.NoError(t, err)
	require.NotNil(t, restored.LastRun)
	assert.WithinDuration(t, *status.LastRun, *restored.LastRun, time.Millisecond)

	assert.ErrorIs(t, s.Trigger("missing"), interfaces.ErrNotFound)
}

func TestTrigger_RecoversPanic(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())
	require.NoError(t, s.Register("panics", "0 0 * * * *", "", func(context.Context) error { panic("bad state") }))

	err := s.Trigger("panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")
}

func TestReanalysis_NoActiveRepositoryIsNotAnError(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())
	r := &refresher{err: interfaces.NewNotFound("no active repository to plan")}
	require.NoError(t, s.RegisterReanalysis("0 0 */6 * * *", r))

	require.NoError(t, s.Trigger(ReanalyzeTask))
	assert.Equal(t, int32(1), r.calls.Load())

	r.err = interfaces.NewConfigurationError("repository shop has no local checkout")
	assert.ErrorIs(t, s.Trigger(ReanalyzeTask), interfaces.ErrConfiguration)
}

func TestSchedule_FiresAndReportsNextRun(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())
	r := &refresher{}
	require.NoError(t, s.RegisterReanalysis("* * * * * *", r))

	s.Start()
	defer s.Stop()
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	statuses := s.Statuses()
	require.Len(t, statuses, 1)
	assert.NotNil(t, statuses[0].NextRun)

	require.NoError(t, s.SetEnabled(ReanalyzeTask, false))
	status, err := s.Status(ReanalyzeTask)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Nil(t, status.NextRun)
}
