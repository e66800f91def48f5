// -----------------------------------------------------------------------
// Job lifecycle manager - supervised background work with resource arbitration
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// Task is the body of a job. It must return once ctx is cancelled.
type Task func(ctx context.Context, run *Run) error

// acquireFunc blocks until the job's resource is held; the job stays queued meanwhile.
type acquireFunc func(ctx context.Context) (release func(), err error)

// exclusivity limits how many jobs of a kind may be active at once.
type exclusivity int

const (
	shared      exclusivity = iota // queue on the acquired resource only
	perOwner                       // one active job of the kind per owner
	perKind                        // one active job of the kind overall
)

type activeJob struct {
	job             *models.Job // guarded by Manager.mu
	process         interfaces.ProcessHandle
	cancelRequested bool

	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	gate    *gate
	done    chan struct{}
	once    sync.Once
}

// Manager runs jobs in the background and arbitrates the resources they need:
// one accelerator for training, one lock per repository for indexing, and a
// single active generation job.
type Manager struct {
	storage    interfaces.JobStorage
	events     interfaces.EventService
	supervisor interfaces.ProcessSupervisor
	logger     arbor.ILogger

	mu          sync.Mutex
	active      map[string]*activeJob
	accelerator chan struct{}

	repoMu    sync.Mutex
	repoLocks map[string]chan struct{}

	wg sync.WaitGroup
}

// NewManager creates a job manager. supervisor may be nil when no job spawns processes.
func NewManager(storage interfaces.JobStorage, events interfaces.EventService, supervisor interfaces.ProcessSupervisor, logger arbor.ILogger) *Manager {
	return &Manager{
		storage:     storage,
		events:      events,
		supervisor:  supervisor,
		logger:      logger,
		active:      make(map[string]*activeJob),
		accelerator: make(chan struct{}, 1),
		repoLocks:   make(map[string]chan struct{}),
	}
}

// StartTraining queues a training job; it runs once the accelerator is free.
// A project may have only one active training job; a second start returns
// ResourceConflict.
func (m *Manager) StartTraining(ctx context.Context, owner string, config map[string]interface{}, task Task) (*models.Job, error) {
	return m.start(ctx, models.JobKindTraining, owner, config, perOwner, m.acquireAccelerator, task)
}

// StartIndexing queues an indexing job serialized with every other operation on the repository.
func (m *Manager) StartIndexing(ctx context.Context, repository string, config map[string]interface{}, task Task) (*models.Job, error) {
	acquire := func(ctx context.Context) (func(), error) {
		return m.LockRepository(ctx, repository)
	}
	return m.start(ctx, models.JobKindIndexing, repository, config, shared, acquire, task)
}

// StartGeneration starts a generation job. Only one may be active at a time;
// a second start returns ResourceConflict.
func (m *Manager) StartGeneration(ctx context.Context, owner string, config map[string]interface{}, task Task) (*models.Job, error) {
	return m.start(ctx, models.JobKindGeneration, owner, config, perKind, nil, task)
}

func (m *Manager) start(
	ctx context.Context,
	kind models.JobKind,
	owner string,
	config map[string]interface{},
	exclusive exclusivity,
	acquire acquireFunc,
	task Task,
) (*models.Job, error) {
	job := models.NewJob(kind, owner, config)

	m.mu.Lock()
	for _, a := range m.active {
		if a.job.Kind != kind {
			continue
		}
		switch {
		case exclusive == perKind:
			m.mu.Unlock()
			return nil, interfaces.NewResourceConflict("a %s job is already active (%s)", kind, a.job.ID)
		case exclusive == perOwner && a.job.Owner == owner:
			m.mu.Unlock()
			return nil, interfaces.NewResourceConflict("%s already has an active %s job (%s, %s)",
				owner, kind, a.job.ID, a.job.State)
		}
	}
	runCtx, cancel := context.WithCancel(context.Background())
	a := &activeJob{
		job:    job,
		ctx:    runCtx,
		cancel: cancel,
		gate:   newGate(),
		done:   make(chan struct{}),
	}
	m.active[job.ID] = a
	snapshot := job.Clone()
	m.mu.Unlock()

	if err := m.storage.SaveJob(ctx, snapshot); err != nil {
		m.mu.Lock()
		delete(m.active, job.ID)
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	m.publishState(snapshot)

	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(kind)).
		Str("owner", owner).
		Msg("Job queued")

	m.wg.Add(1)
	common.SafeGo(m.logger, "job-"+job.ID, func() {
		defer m.wg.Done()
		m.run(runCtx, a, acquire, task)
	})

	return snapshot, nil
}

func (m *Manager) run(ctx context.Context, a *activeJob, acquire acquireFunc, task Task) {
	defer func() {
		if r := recover(); r != nil {
			m.finish(a, fmt.Errorf("job panicked: %v", r))
		}
	}()

	if acquire != nil {
		release, err := acquire(ctx)
		if err != nil {
			m.finish(a, err)
			return
		}
		a.release = release
	}

	now := time.Now()
	m.mu.Lock()
	a.job.State = models.JobStateRunning
	a.job.StartedAt = &now
	snapshot := m.persistLocked(a)
	m.mu.Unlock()
	m.publishState(snapshot)

	run := &Run{
		id:     snapshot.ID,
		m:      m,
		a:      a,
		Logger: m.logger.WithCorrelationId(snapshot.ID),
	}
	run.Logger.Info().Str("phase", "run").Str("kind", string(snapshot.Kind)).Msg("Job started")

	err := task(ctx, run)
	m.finish(a, err)
}

// finish moves the job to its terminal state, releases its resources and wakes
// waiters. A job paused when its task returns stays paused until it is resumed
// or cancelled.
func (m *Manager) finish(a *activeJob, err error) {
	a.once.Do(func() {
		m.lockUnpaused(a)

		now := time.Now()
		switch {
		case a.cancelRequested:
			a.job.State = models.JobStateCancelled
		case err != nil:
			a.job.State = models.JobStateFailed
			a.job.Error = err.Error()
		default:
			a.job.State = models.JobStateCompleted
		}
		a.job.FinishedAt = &now
		a.process = nil
		snapshot := m.persistLocked(a)
		delete(m.active, snapshot.ID)
		m.mu.Unlock()

		if a.release != nil {
			a.release()
		}
		m.publishState(snapshot)

		logger := m.logger.WithCorrelationId(snapshot.ID)
		event := logger.Info()
		if snapshot.State == models.JobStateFailed {
			event = logger.Error().Str("error", snapshot.Error)
		}
		event.Str("phase", "done").
			Str("state", string(snapshot.State)).
			Int("processed", snapshot.Processed).
			Int("total", snapshot.Total).
			Msg("Job finished")

		a.cancel()
		close(a.done)
	})
}

// lockUnpaused returns holding m.mu once the job is no longer paused or its
// cancellation was requested. A paused job may only be resumed or cancelled.
func (m *Manager) lockUnpaused(a *activeJob) {
	logged := false
	for {
		m.mu.Lock()
		if a.job.State != models.JobStatePaused || a.cancelRequested {
			return
		}
		m.mu.Unlock()

		if !logged {
			m.logger.WithCorrelationId(a.job.ID).Info().
				Str("phase", "pause").
				Msg("Job work ended while paused; holding until resumed or cancelled")
			logged = true
		}
		if err := a.gate.wait(a.ctx); err != nil {
			m.mu.Lock()
			a.cancelRequested = true
			return
		}
	}
}

// Pause suspends a running job.
func (m *Manager) Pause(ctx context.Context, id string) (*models.Job, error) {
	return m.control(ctx, id, ActionPause, func(a *activeJob) error {
		if a.process != nil {
			if err := m.supervisor.Pause(a.process); err != nil {
				return interfaces.NewExternalServiceError(err, "failed to pause process %d", a.process.PID())
			}
		}
		a.gate.pause()
		return nil
	})
}

// Resume continues a paused job.
func (m *Manager) Resume(ctx context.Context, id string) (*models.Job, error) {
	return m.control(ctx, id, ActionResume, func(a *activeJob) error {
		if a.process != nil {
			if err := m.supervisor.Resume(a.process); err != nil {
				return interfaces.NewExternalServiceError(err, "failed to resume process %d", a.process.PID())
			}
		}
		a.gate.resume()
		return nil
	})
}

// control applies a pause or resume under the manager lock.
func (m *Manager) control(ctx context.Context, id string, action Action, apply func(a *activeJob) error) (*models.Job, error) {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil, m.inactiveError(ctx, id, action)
	}
	to, err := Apply(action, a.job.State)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := apply(a); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	a.job.State = to
	snapshot := m.persistLocked(a)
	m.mu.Unlock()

	m.publishState(snapshot)
	m.logger.WithCorrelationId(id).Info().Str("phase", string(action)).Msg("Job " + string(to))
	return snapshot, nil
}

// Cancel stops a running or paused job and waits until it has exited and
// released its resources. Generation jobs finish the items already in flight.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil, m.inactiveError(ctx, id, ActionCancel)
	}
	if _, err := Apply(ActionCancel, a.job.State); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	a.cancelRequested = true
	m.mu.Unlock()

	m.logger.WithCorrelationId(id).Info().Str("phase", "cancel").Msg("Job cancellation requested")
	a.cancel()

	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.storage.GetJob(ctx, id)
}

// inactiveError reports NotFound for unknown jobs and InvalidStateTransition for finished ones.
func (m *Manager) inactiveError(ctx context.Context, id string, action Action) error {
	job, err := m.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}
	_, err = Apply(action, job.State)
	if err == nil {
		// stored as active but not supervised by this process
		return interfaces.NewInvalidStateTransition("job %s is not supervised by this instance", id)
	}
	return err
}

// Get returns the current view of a job.
func (m *Manager) Get(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	if a, ok := m.active[id]; ok {
		snapshot := a.job.Clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()
	return m.storage.GetJob(ctx, id)
}

// List returns jobs filtered by kind and owner, with live state for active ones.
func (m *Manager) List(ctx context.Context, kind models.JobKind, owner string) ([]*models.Job, error) {
	jobs, err := m.storage.ListJobs(ctx, kind, owner)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range jobs {
		if a, ok := m.active[j.ID]; ok {
			jobs[i] = a.job.Clone()
		}
	}
	return jobs, nil
}

// Wait blocks until the job reaches a terminal state.
func (m *Manager) Wait(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	a, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		select {
		case <-a.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.storage.GetJob(ctx, id)
}

// ActiveJob returns the active job of kind for owner (any owner when empty), or nil.
func (m *Manager) ActiveJob(kind models.JobKind, owner string) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.active {
		if a.job.Kind == kind && (owner == "" || a.job.Owner == owner) {
			return a.job.Clone()
		}
	}
	return nil
}

// EnsureIdle returns ResourceConflict when owner has an active job of one of
// kinds (any kind when none are given). Owners must be idle before they are deleted.
func (m *Manager) EnsureIdle(owner string, kinds ...models.JobKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.active {
		if a.job.Owner == owner && (len(kinds) == 0 || slices.Contains(kinds, a.job.Kind)) {
			return interfaces.NewResourceConflict("%s has an active %s job (%s, %s); cancel it first",
				owner, a.job.Kind, a.job.ID, a.job.State)
		}
	}
	return nil
}

// LockRepository serializes indexing and activation per repository. The
// returned release must be called exactly once.
func (m *Manager) LockRepository(ctx context.Context, repository string) (func(), error) {
	m.repoMu.Lock()
	lock, ok := m.repoLocks[repository]
	if !ok {
		lock = make(chan struct{}, 1)
		m.repoLocks[repository] = lock
	}
	m.repoMu.Unlock()

	select {
	case lock <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-lock }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) acquireAccelerator(ctx context.Context) (func(), error) {
	select {
	case m.accelerator <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-m.accelerator }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Recover marks jobs left active by a previous process as failed.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	jobs, err := m.storage.ListJobs(ctx, "", "")
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		if !job.State.IsActive() {
			continue
		}
		m.mu.Lock()
		_, supervised := m.active[job.ID]
		m.mu.Unlock()
		if supervised {
			continue
		}

		now := time.Now()
		job.State = models.JobStateFailed
		job.Error = "interrupted by service restart"
		job.FinishedAt = &now
		if err := m.storage.SaveJob(ctx, job); err != nil {
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		m.logger.Warn().Int("jobs", recovered).Msg("Marked interrupted jobs as failed")
	}
	return recovered, nil
}

// Shutdown cancels every active job and waits for them to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, a := range m.active {
		a.cancelRequested = true
		a.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persistLocked saves the job while m.mu is held, so stored snapshots never
// go backwards, and returns a copy for publishing.
func (m *Manager) persistLocked(a *activeJob) *models.Job {
	snapshot := a.job.Clone()
	if err := m.storage.SaveJob(context.Background(), snapshot); err != nil {
		m.logger.Warn().Err(err).Str("job_id", snapshot.ID).Msg("Failed to persist job")
	}
	return snapshot
}

func (m *Manager) publishState(job *models.Job) {
	if m.events == nil {
		return
	}
	payload := map[string]interface{}{
		"job_id": job.ID,
		"kind":   string(job.Kind),
		"owner":  job.Owner,
		"state":  string(job.State),
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	_ = m.events.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobStateChanged, Payload: payload})
}

func (m *Manager) publishProgress(job *models.Job) {
	if m.events == nil {
		return
	}
	_ = m.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventJobProgress,
		Payload: map[string]interface{}{
			"job_id":    job.ID,
			"kind":      string(job.Kind),
			"owner":     job.Owner,
			"processed": job.Processed,
			"total":     job.Total,
			"progress":  job.Progress(),
		},
	})
}

// Run is the handle a task uses to report progress and honour pause requests.
type Run struct {
	id     string
	m      *Manager
	a      *activeJob
	Logger arbor.ILogger // correlated with the job id, captured in the job log
}

// ID returns the job id.
func (r *Run) ID() string { return r.id }

// Gate blocks while the job is paused. It returns ctx.Err() when cancelled.
func (r *Run) Gate(ctx context.Context) error {
	return r.a.gate.wait(ctx)
}

// SetTotal records the number of items the job will process.
func (r *Run) SetTotal(total int) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.a.job.Total = total
	r.m.persistLocked(r.a)
}

// Progress records processed items and, for generation jobs, the item outcome.
func (r *Run) Progress(processed int, outcome *models.ItemOutcome) {
	r.m.mu.Lock()
	r.a.job.Processed = processed
	if outcome != nil {
		r.a.job.Outcomes = append(r.a.job.Outcomes, *outcome)
	}
	snapshot := r.m.persistLocked(r.a)
	r.m.mu.Unlock()

	r.m.publishProgress(snapshot)
}

// SetOutcomes replaces the recorded outcomes, e.g. with the ordered batch result.
func (r *Run) SetOutcomes(outcomes []models.ItemOutcome) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.a.job.Outcomes = append([]models.ItemOutcome(nil), outcomes...)
	r.m.persistLocked(r.a)
}

// AttachProcess registers the job's subprocess so pause and cancel reach it.
// A job paused before the process existed stops it immediately.
func (r *Run) AttachProcess(h interfaces.ProcessHandle) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.a.process = h
	r.a.job.PID = h.PID()
	if r.a.job.State == models.JobStatePaused {
		if err := r.m.supervisor.Pause(h); err != nil {
			return err
		}
	}
	r.m.persistLocked(r.a)
	return nil
}

// ProcessTask returns a task that runs spec under the supervisor until it
// exits. Cancelling the job kills the process group.
func (m *Manager) ProcessTask(spec interfaces.ProcessSpec) Task {
	return func(ctx context.Context, run *Run) error {
		if m.supervisor == nil {
			return interfaces.NewConfigurationError("no process supervisor configured")
		}
		h, err := m.supervisor.Spawn(ctx, spec)
		if err != nil {
			return err
		}
		run.Logger.Info().
			Str("phase", "spawn").
			Int("pid", h.PID()).
			Str("command", spec.Command).
			Msg("Process started")

		exited := make(chan error, 1)
		go func() { exited <- h.Wait() }()

		if err := run.AttachProcess(h); err != nil {
			run.Logger.Warn().Err(err).Msg("Failed to apply pending pause to process")
		}

		select {
		case err := <-exited:
			if err != nil {
				return interfaces.NewExternalServiceError(err, "%s exited with error", spec.Name)
			}
			return nil
		case <-ctx.Done():
			if err := m.supervisor.Kill(h); err != nil && !errors.Is(err, ErrProcessExited) {
				run.Logger.Warn().Err(err).Int("pid", h.PID()).Msg("Failed to kill process")
			}
			<-exited
			return ctx.Err()
		}
	}
}

// gate is open while the job runs and closed while it is paused.
type gate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{}
}

func newGate() *gate {
	open := make(chan struct{})
	close(open)
	return &gate{open: open}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.open = make(chan struct{})
	}
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.open)
	}
}

func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()
	select {
	case <-open:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
