package jobs

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"go.uber.org/goleak"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.Job)}
}

func (s *memJobStore) SaveJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.Clone(), nil
	}
	return nil, interfaces.NewNotFound("job %s not found", id)
}

func (s *memJobStore) ListJobs(_ context.Context, kind models.JobKind, owner string) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if (kind == "" || j.Kind == kind) && (owner == "" || j.Owner == owner) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *memJobStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

type fakeHandle struct {
	pid  int
	done chan struct{}
	once sync.Once
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Wait() error {
	<-h.done
	return nil
}

func (h *fakeHandle) exit() { h.once.Do(func() { close(h.done) }) }

type fakeSupervisor struct {
	mu      sync.Mutex
	handles []*fakeHandle
	paused  int
	resumed int
	killed  int
}

func (s *fakeSupervisor) Spawn(_ context.Context, _ interfaces.ProcessSpec) (interfaces.ProcessHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{pid: 1000 + len(s.handles), done: make(chan struct{})}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSupervisor) Pause(interfaces.ProcessHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused++
	return nil
}

func (s *fakeSupervisor) Resume(interfaces.ProcessHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed++
	return nil
}

func (s *fakeSupervisor) Kill(h interfaces.ProcessHandle) error {
	s.mu.Lock()
	s.killed++
	s.mu.Unlock()
	h.(*fakeHandle).exit()
	return nil
}

func (s *fakeSupervisor) counts() (paused, resumed, killed, spawned int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.resumed, s.killed, len(s.handles)
}

func newTestManager(sup interfaces.ProcessSupervisor) (*Manager, *memJobStore) {
	store := newMemJobStore()
	return NewManager(store, nil, sup, arbor.NewLogger()), store
}

func shutdown(t *testing.T, m *Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}

// blockingTask runs until cancelled, passing the gate on every tick.
func blockingTask(started chan<- struct{}) Task {
	return func(ctx context.Context, run *Run) error {
		if started != nil {
			close(started)
		}
		for {
			if err := run.Gate(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

func waitState(t *testing.T, m *Manager, id string, state models.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := m.Get(context.Background(), id)
		return err == nil && job.State == state
	}, 3*time.Second, 5*time.Millisecond, "job %s never reached %s", id, state)
}

func TestApply(t *testing.T) {
	cases := []struct {
		action Action
		from   models.JobState
		to     models.JobState
		ok     bool
	}{
		{ActionPause, models.JobStateRunning, models.JobStatePaused, true},
		{ActionPause, models.JobStatePaused, models.JobStatePaused, false},
		{ActionPause, models.JobStateQueued, models.JobStateQueued, false},
		{ActionPause, models.JobStateCompleted, models.JobStateCompleted, false},
		{ActionResume, models.JobStatePaused, models.JobStateRunning, true},
		{ActionResume, models.JobStateRunning, models.JobStateRunning, false},
		{ActionResume, models.JobStateCancelled, models.JobStateCancelled, false},
		{ActionCancel, models.JobStateRunning, models.JobStateCancelled, true},
		{ActionCancel, models.JobStatePaused, models.JobStateCancelled, true},
		{ActionCancel, models.JobStateQueued, models.JobStateQueued, false},
		{ActionCancel, models.JobStateFailed, models.JobStateFailed, false},
		{ActionCancel, models.JobStateCompleted, models.JobStateCompleted, false},
	}
	for _, tc := range cases {
		to, err := Apply(tc.action, tc.from)
		assert.Equal(t, tc.to, to, "%s from %s", tc.action, tc.from)
		if tc.ok {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, interfaces.ErrInvalidStateTransition, "%s from %s", tc.action, tc.from)
		}
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.JobStateQueued, models.JobStateRunning))
	assert.True(t, CanTransition(models.JobStatePaused, models.JobStateRunning))
	assert.False(t, CanTransition(models.JobStateCompleted, models.JobStateRunning))
	assert.False(t, CanTransition(models.JobStatePaused, models.JobStateCompleted))
	assert.False(t, CanTransition(models.JobStatePaused, models.JobStateFailed))
	for _, terminal := range []models.JobState{models.JobStateCompleted, models.JobStateFailed, models.JobStateCancelled} {
		assert.Empty(t, transitions[terminal])
	}
}

func TestManager_SecondGenerationConflicts(t *testing.T) {
	m, _ := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	first, err := m.StartGeneration(ctx, "shop", nil, blockingTask(nil))
	require.NoError(t, err)

	_, err = m.StartGeneration(ctx, "shop", nil, blockingTask(nil))
	assert.ErrorIs(t, err, interfaces.ErrResourceConflict)

	waitState(t, m, first.ID, models.JobStateRunning)
	cancelled, err := m.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, cancelled.State)

	second, err := m.StartGeneration(ctx, "shop", nil, func(ctx context.Context, run *Run) error { return nil })
	require.NoError(t, err)
	done, err := m.Wait(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, done.State)
}

func TestManager_PauseResumeCancel(t *testing.T) {
	m, store := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	started := make(chan struct{})
	job, err := m.StartGeneration(ctx, "shop", nil, blockingTask(started))
	require.NoError(t, err)
	<-started
	waitState(t, m, job.ID, models.JobStateRunning)

	_, err = m.Resume(ctx, job.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidStateTransition)

	paused, err := m.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePaused, paused.State)

	_, err = m.Pause(ctx, job.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidStateTransition)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePaused, stored.State)

	resumed, err := m.Resume(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateRunning, resumed.State)

	_, err = m.Pause(ctx, job.ID)
	require.NoError(t, err)

	// cancel from paused waits for the task to exit
	cancelled, err := m.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, cancelled.State)
	assert.NotNil(t, cancelled.FinishedAt)
	assert.Nil(t, m.ActiveJob(models.JobKindGeneration, ""))

	for _, action := range []func(context.Context, string) (*models.Job, error){m.Pause, m.Resume, m.Cancel} {
		_, err := action(ctx, job.ID)
		assert.ErrorIs(t, err, interfaces.ErrInvalidStateTransition)
	}

	_, err = m.Pause(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestManager_TaskEndingWhilePausedStaysPaused(t *testing.T) {
	m, store := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	repos := 0
	start := func(result error) (*models.Job, chan struct{}) {
		repos++
		running := make(chan struct{})
		finish := make(chan struct{})
		job, err := m.StartIndexing(ctx, "shop-"+strconv.Itoa(repos), nil, func(ctx context.Context, run *Run) error {
			close(running)
			<-finish
			return result
		})
		require.NoError(t, err)
		<-running
		waitState(t, m, job.ID, models.JobStateRunning)
		_, err = m.Pause(ctx, job.ID)
		require.NoError(t, err)
		return job, finish
	}

	// resumed after the work ended: completes
	job, finish := start(nil)
	close(finish)
	time.Sleep(50 * time.Millisecond)
	current, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePaused, current.State)
	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePaused, stored.State)

	_, err = m.Resume(ctx, job.ID)
	require.NoError(t, err)
	done, err := m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, done.State)

	// a failure while paused is reported only after resume
	job, finish = start(errors.New("disk full"))
	close(finish)
	time.Sleep(20 * time.Millisecond)
	waitState(t, m, job.ID, models.JobStatePaused)
	_, err = m.Resume(ctx, job.ID)
	require.NoError(t, err)
	done, err = m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, done.State)

	// cancelled after the work ended: cancelled
	job, finish = start(nil)
	close(finish)
	time.Sleep(20 * time.Millisecond)
	cancelled, err := m.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, cancelled.State)
}

func TestManager_OneTrainingJobPerProject(t *testing.T) {
	sup := &fakeSupervisor{}
	m, _ := newTestManager(sup)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	spec := interfaces.ProcessSpec{Name: "train", Command: "python"}
	first, err := m.StartTraining(ctx, "alpha", nil, m.ProcessTask(spec))
	require.NoError(t, err)
	waitState(t, m, first.ID, models.JobStateRunning)

	_, err = m.StartTraining(ctx, "alpha", nil, m.ProcessTask(spec))
	assert.ErrorIs(t, err, interfaces.ErrResourceConflict)

	// queued jobs count as active too
	other, err := m.StartTraining(ctx, "beta", nil, m.ProcessTask(spec))
	require.NoError(t, err)
	_, err = m.StartTraining(ctx, "beta", nil, m.ProcessTask(spec))
	assert.ErrorIs(t, err, interfaces.ErrResourceConflict)

	// concurrent starts for one project: exactly one wins
	var wg sync.WaitGroup
	var mu sync.Mutex
	var started []*models.Job
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := m.StartTraining(ctx, "gamma", nil, m.ProcessTask(spec))
			if err == nil {
				mu.Lock()
				started = append(started, job)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, started, 1)

	_, err = m.Cancel(ctx, first.ID)
	require.NoError(t, err)
	waitState(t, m, other.ID, models.JobStateRunning)

	again, err := m.StartTraining(ctx, "alpha", nil, m.ProcessTask(spec))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)
}

func TestManager_TaskErrorFailsJob(t *testing.T) {
	m, _ := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	job, err := m.StartIndexing(ctx, "shop", nil, func(ctx context.Context, run *Run) error {
		run.SetTotal(2)
		run.Progress(1, nil)
		return errors.New("disk full")
	})
	require.NoError(t, err)

	done, err := m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, done.State)
	assert.Equal(t, "disk full", done.Error)
	assert.Equal(t, 1, done.Processed)
	assert.Equal(t, 2, done.Total)
}

func TestManager_TaskPanicFailsJob(t *testing.T) {
	m, _ := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	job, err := m.StartIndexing(ctx, "shop", nil, func(ctx context.Context, run *Run) error {
		panic("boom")
	})
	require.NoError(t, err)

	done, err := m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, done.State)
	assert.Contains(t, done.Error, "boom")

	// the repository lock was released
	release, err := m.LockRepository(ctx, "shop")
	require.NoError(t, err)
	release()
}

func TestManager_TrainingQueuesOnAccelerator(t *testing.T) {
	sup := &fakeSupervisor{}
	m, _ := newTestManager(sup)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	spec := interfaces.ProcessSpec{Name: "train", Command: "python"}
	first, err := m.StartTraining(ctx, "alpha", nil, m.ProcessTask(spec))
	require.NoError(t, err)
	waitState(t, m, first.ID, models.JobStateRunning)

	second, err := m.StartTraining(ctx, "beta", nil, m.ProcessTask(spec))
	require.NoError(t, err)

	// the second job holds no accelerator and stays queued
	time.Sleep(50 * time.Millisecond)
	job, err := m.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateQueued, job.State)
	_, err = m.Cancel(ctx, second.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidStateTransition)

	require.Eventually(t, func() bool {
		running, err := m.Get(ctx, first.ID)
		return err == nil && running.PID == 1000
	}, 3*time.Second, 5*time.Millisecond)

	_, err = m.Pause(ctx, first.ID)
	require.NoError(t, err)
	_, err = m.Resume(ctx, first.ID)
	require.NoError(t, err)

	cancelled, err := m.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, cancelled.State)

	waitState(t, m, second.ID, models.JobStateRunning)
	paused, resumed, killed, spawned := sup.counts()
	assert.Equal(t, 1, paused)
	assert.Equal(t, 1, resumed)
	assert.Equal(t, 1, killed)
	assert.Equal(t, 2, spawned)

	// a process that exits on its own completes the job
	sup.mu.Lock()
	h := sup.handles[1]
	sup.mu.Unlock()
	h.exit()
	done, err := m.Wait(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, done.State)
}

func TestManager_IndexingSerializedPerRepository(t *testing.T) {
	m, _ := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	release := make(chan struct{})
	hold := func(ctx context.Context, run *Run) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a1, err := m.StartIndexing(ctx, "shop", nil, hold)
	require.NoError(t, err)
	waitState(t, m, a1.ID, models.JobStateRunning)

	a2, err := m.StartIndexing(ctx, "shop", nil, func(ctx context.Context, run *Run) error { return nil })
	require.NoError(t, err)
	other, err := m.StartIndexing(ctx, "bank", nil, func(ctx context.Context, run *Run) error { return nil })
	require.NoError(t, err)

	done, err := m.Wait(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, done.State)

	job, err := m.Get(ctx, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateQueued, job.State)

	close(release)
	done, err = m.Wait(ctx, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, done.State)
}

func TestManager_EnsureIdle(t *testing.T) {
	m, _ := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	assert.NoError(t, m.EnsureIdle("shop"))

	job, err := m.StartIndexing(ctx, "shop", nil, blockingTask(nil))
	require.NoError(t, err)
	waitState(t, m, job.ID, models.JobStateRunning)

	assert.ErrorIs(t, m.EnsureIdle("shop"), interfaces.ErrResourceConflict)
	assert.ErrorIs(t, m.EnsureIdle("shop", models.JobKindIndexing), interfaces.ErrResourceConflict)
	assert.NoError(t, m.EnsureIdle("shop", models.JobKindTraining))
	assert.NoError(t, m.EnsureIdle("bank"))

	_, err = m.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.NoError(t, m.EnsureIdle("shop"))
}

func TestManager_ProgressRecordsOutcomes(t *testing.T) {
	m, _ := newTestManager(nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer shutdown(t, m)
	ctx := context.Background()

	job, err := m.StartGeneration(ctx, "shop", nil, func(ctx context.Context, run *Run) error {
		run.SetTotal(2)
		run.Progress(1, &models.ItemOutcome{UnitID: "a", State: models.ItemPersisted})
		run.Progress(2, &models.ItemOutcome{UnitID: "b", State: models.ItemFailed})
		run.SetOutcomes([]models.ItemOutcome{{UnitID: "a"}, {UnitID: "b"}})
		return nil
	})
	require.NoError(t, err)

	done, err := m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, done.Processed)
	assert.Equal(t, 1.0, done.Progress())
	require.Len(t, done.Outcomes, 2)
	assert.Equal(t, "a", done.Outcomes[0].UnitID)
}

func TestManager_Recover(t *testing.T) {
	m, store := newTestManager(nil)
	ctx := context.Background()

	stale := models.NewJob(models.JobKindTraining, "alpha", nil)
	stale.State = models.JobStateRunning
	require.NoError(t, store.SaveJob(ctx, stale))
	finished := models.NewJob(models.JobKindIndexing, "shop", nil)
	finished.State = models.JobStateCompleted
	require.NoError(t, store.SaveJob(ctx, finished))

	n, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := store.GetJob(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, job.State)
	assert.NotEmpty(t, job.Error)
}
