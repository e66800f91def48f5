// -----------------------------------------------------------------------
// Scheduler - cron-driven maintenance tasks (plan re-analysis)
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// ReanalyzeTask is the name of the built-in re-analysis task.
const ReanalyzeTask = "reanalyze-active"

const lastRunKeyPrefix = "scheduler.last_run."

// Handler is the body of a scheduled task.
type Handler func(ctx context.Context) error

// PlanRefresher re-analyzes a repository and replaces its cached plan.
type PlanRefresher interface {
	Refresh(ctx context.Context, repository string) (*models.MigrationPlan, error)
}

// TaskStatus describes a registered task.
type TaskStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	IsRunning   bool       `json:"is_running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type taskEntry struct {
	name        string
	schedule    string
	description string
	handler     Handler
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service runs registered tasks on six-field cron schedules. Tasks never
// overlap each other.
type Service struct {
	kv     interfaces.KeyValueStorage
	cron   *cron.Cron
	logger arbor.ILogger

	mu       sync.Mutex // protects tasks and running
	globalMu sync.Mutex // serializes task execution
	tasks    map[string]*taskEntry
	running  bool
}

// NewService creates a scheduler. kv may be nil, in which case last-run
// times are not persisted.
func NewService(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		kv:     kv,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		tasks:  make(map[string]*taskEntry),
	}
}

// RegisterReanalysis registers periodic re-analysis of the active repository.
// Having no active repository is not an error.
func (s *Service) RegisterReanalysis(schedule string, plans PlanRefresher) error {
	return s.Register(ReanalyzeTask, schedule, "Re-analyze the active repository and refresh its plan", func(ctx context.Context) error {
		plan, err := plans.Refresh(ctx, "")
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				s.logger.Debug().Msg("No active repository to re-analyze")
				return nil
			}
			return err
		}
		s.logger.Info().
			Str("repository", plan.Repository).
			Int("nodes", plan.Nodes).
			Bool("cyclic", plan.Cyclic).
			Msg("Plan refreshed")
		return nil
	})
}

// Register adds a task. The schedule is a six-field cron expression.
func (s *Service) Register(name, schedule, description string, handler Handler) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return interfaces.NewConfigurationError("invalid schedule for %s: %v", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return interfaces.NewResourceConflict("task %s already registered", name)
	}

	cronID, err := s.cron.AddFunc(schedule, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("failed to add task to cron: %w", err)
	}

	s.tasks[name] = &taskEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
		cronID:      cronID,
		lastRun:     s.loadLastRun(name),
	}

	s.logger.Info().
		Str("task", name).
		Str("schedule", schedule).
		Msg("Task registered")
	return nil
}

// Start begins firing scheduled tasks.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
}

// Stop halts the scheduler and waits for a running task to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the scheduler has been started.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetEnabled enables or disables a task without unregistering it.
func (s *Service) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tasks[name]
	if !ok {
		return interfaces.NewNotFound("task %s not found", name)
	}
	if entry.enabled == enabled {
		return nil
	}

	if enabled {
		cronID, err := s.cron.AddFunc(entry.schedule, func() { s.execute(name) })
		if err != nil {
			return fmt.Errorf("failed to add task to cron: %w", err)
		}
		entry.cronID = cronID
	} else {
		s.cron.Remove(entry.cronID)
	}
	entry.enabled = enabled

	s.logger.Info().Str("task", name).Bool("enabled", enabled).Msg("Task updated")
	return nil
}

// Trigger runs a task immediately and returns its error.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	_, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return interfaces.NewNotFound("task %s not found", name)
	}
	return s.execute(name)
}

// Status returns one task's status.
func (s *Service) Status(name string) (*TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tasks[name]
	if !ok {
		return nil, interfaces.NewNotFound("task %s not found", name)
	}
	return s.statusLocked(entry), nil
}

// Statuses returns every task ordered by name.
func (s *Service) Statuses() []*TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TaskStatus, 0, len(s.tasks))
	for _, entry := range s.tasks {
		out = append(out, s.statusLocked(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) statusLocked(entry *taskEntry) *TaskStatus {
	var nextRun *time.Time
	if entry.enabled && s.running {
		if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
			nextRun = &next
		}
	}
	return &TaskStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		Enabled:     entry.enabled,
		IsRunning:   entry.isRunning,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		LastError:   entry.lastError,
	}
}

func (s *Service) execute(name string) (err error) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.mu.Lock()
	entry, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return interfaces.NewNotFound("task %s not found", name)
	}
	entry.isRunning = true
	handler := entry.handler
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		finished := time.Now()
		s.mu.Lock()
		entry.isRunning = false
		entry.lastRun = &finished
		entry.lastError = ""
		if err != nil {
			entry.lastError = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error().Str("task", name).Err(err).Dur("duration", time.Since(start)).Msg("Task failed")
		} else {
			s.logger.Info().Str("task", name).Dur("duration", time.Since(start)).Msg("Task completed")
		}
		s.saveLastRun(name, finished)
	}()

	return handler(context.Background())
}

func (s *Service) loadLastRun(name string) *time.Time {
	if s.kv == nil {
		return nil
	}
	v, err := s.kv.Get(context.Background(), lastRunKeyPrefix+name)
	if err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

func (s *Service) saveLastRun(name string, t time.Time) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Set(context.Background(), lastRunKeyPrefix+name, t.Format(time.RFC3339Nano), "Last run of scheduled task "+name); err != nil {
		s.logger.Warn().Err(err).Str("task", name).Msg("Failed to persist task last run")
	}
}
