// -----------------------------------------------------------------------
// Projects - guidance-model training runs supervised as subprocesses
// -----------------------------------------------------------------------

package projects

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/jobs"
)

// DefaultLogLines is the tail length when none is requested.
const DefaultLogLines = 100

var projectName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// TrainingJobs is the part of the job manager projects drive.
type TrainingJobs interface {
	StartTraining(ctx context.Context, owner string, config map[string]interface{}, task jobs.Task) (*models.Job, error)
	ProcessTask(spec interfaces.ProcessSpec) jobs.Task
	Get(ctx context.Context, id string) (*models.Job, error)
	Pause(ctx context.Context, id string) (*models.Job, error)
	Resume(ctx context.Context, id string) (*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
	EnsureIdle(owner string, kinds ...models.JobKind) error
}

// CreateRequest describes a new training project.
type CreateRequest struct {
	Name       string   `json:"project_name" validate:"required,max=64"`
	RepoURL    string   `json:"repo_url" validate:"required"`
	Branch     string   `json:"branch"`
	Epochs     int      `json:"epochs" validate:"gte=0,lte=10000"`
	BatchSize  int      `json:"batch_size" validate:"gte=0,lte=4096"`
	Extensions []string `json:"file_extensions"`
}

// Service manages training projects.
type Service struct {
	storage  interfaces.ProjectStorage
	jobs     TrainingJobs
	training common.TrainingConfig
	logDir   string
	logger   arbor.ILogger

	createMu sync.Mutex // name check and first save happen as one step
}

// NewService creates the projects service
func NewService(storage interfaces.ProjectStorage, jobs TrainingJobs, training common.TrainingConfig, logDir string, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		jobs:     jobs,
		training: training,
		logDir:   logDir,
		logger:   logger,
	}
}

// Create registers a project and queues its training job.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Project, error) {
	if !projectName.MatchString(req.Name) {
		return nil, interfaces.NewConfigurationError("invalid project name %q", req.Name)
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()
	if _, err := s.storage.GetProject(ctx, req.Name); err == nil {
		return nil, interfaces.NewResourceConflict("project %s already exists", req.Name)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	project := &models.Project{
		Name:       req.Name,
		RepoURL:    req.RepoURL,
		Branch:     req.Branch,
		Extensions: req.Extensions,
		Epochs:     req.Epochs,
		BatchSize:  req.BatchSize,
		Status:     models.JobStateQueued,
		LogPath:    filepath.Join(s.logDir, req.Name+".log"),
		CreatedAt:  time.Now(),
	}
	if project.Branch == "" {
		project.Branch = "master"
	}
	if project.Epochs <= 0 {
		project.Epochs = 10
	}
	if project.BatchSize <= 0 {
		project.BatchSize = 4
	}
	if len(project.Extensions) == 0 {
		project.Extensions = []string{".java"}
	}

	if err := s.storage.SaveProject(ctx, project); err != nil {
		return nil, err
	}
	if err := s.train(ctx, project); err != nil {
		_ = s.storage.DeleteProject(ctx, project.Name)
		return nil, err
	}
	return project, nil
}

// Retrain queues a new training run for an idle project. The job manager
// rejects a second active training job for the same project.
func (s *Service) Retrain(ctx context.Context, name string) (*models.Project, error) {
	project, err := s.storage.GetProject(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.EnsureIdle(name, models.JobKindTraining); err != nil {
		return nil, err
	}
	if err := s.train(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Service) train(ctx context.Context, project *models.Project) error {
	spec := interfaces.ProcessSpec{
		Name:    "train-" + project.Name,
		Command: s.training.Command,
		Args:    s.args(project),
		Dir:     s.training.WorkDir,
		Env:     []string{"HRM_PROJECT=" + project.Name},
		LogPath: project.LogPath,
	}

	config := map[string]interface{}{
		"project":    project.Name,
		"repo_url":   project.RepoURL,
		"branch":     project.Branch,
		"epochs":     project.Epochs,
		"batch_size": project.BatchSize,
		"command":    spec.Command,
	}

	job, err := s.jobs.StartTraining(ctx, project.Name, config, s.jobs.ProcessTask(spec))
	if err != nil {
		return err
	}

	project.JobID = job.ID
	project.Status = job.State
	if err := s.storage.SaveProject(ctx, project); err != nil {
		return err
	}

	s.logger.Info().
		Str("project", project.Name).
		Str("job_id", job.ID).
		Str("command", spec.Command).
		Msg("Training queued")
	return nil
}

// args substitutes project values into the configured trainer arguments.
func (s *Service) args(project *models.Project) []string {
	r := strings.NewReplacer(
		"{project}", project.Name,
		"{repo}", project.RepoURL,
		"{branch}", project.Branch,
		"{epochs}", strconv.Itoa(project.Epochs),
		"{batch_size}", strconv.Itoa(project.BatchSize),
		"{extensions}", strings.Join(project.Extensions, ","),
		"{repos_dir}", s.training.ReposDir,
	)
	out := make([]string, len(s.training.Args))
	for i, a := range s.training.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// List returns every project with its status taken from its latest job.
func (s *Service) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := s.storage.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		s.refresh(ctx, p)
	}
	return projects, nil
}

// Get returns one project.
func (s *Service) Get(ctx context.Context, name string) (*models.Project, error) {
	project, err := s.storage.GetProject(ctx, name)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, project)
	return project, nil
}

func (s *Service) refresh(ctx context.Context, project *models.Project) {
	if project.JobID == "" {
		return
	}
	if job, err := s.jobs.Get(ctx, project.JobID); err == nil {
		project.Status = job.State
	}
}

// Pause suspends the project's training process.
func (s *Service) Pause(ctx context.Context, name string) (*models.Project, error) {
	return s.control(ctx, name, s.jobs.Pause)
}

// Resume continues the project's training process.
func (s *Service) Resume(ctx context.Context, name string) (*models.Project, error) {
	return s.control(ctx, name, s.jobs.Resume)
}

// Cancel stops training and waits for the process to exit.
func (s *Service) Cancel(ctx context.Context, name string) (*models.Project, error) {
	return s.control(ctx, name, s.jobs.Cancel)
}

func (s *Service) control(ctx context.Context, name string, action func(context.Context, string) (*models.Job, error)) (*models.Project, error) {
	project, err := s.storage.GetProject(ctx, name)
	if err != nil {
		return nil, err
	}
	if project.JobID == "" {
		return nil, interfaces.NewInvalidStateTransition("project %s has no training job", name)
	}
	job, err := action(ctx, project.JobID)
	if err != nil {
		return nil, err
	}
	project.Status = job.State
	if err := s.storage.SaveProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Delete removes an idle project and its log. A project with a queued, running
// or paused job must be cancelled first.
func (s *Service) Delete(ctx context.Context, name string) error {
	project, err := s.storage.GetProject(ctx, name)
	if err != nil {
		return err
	}
	if err := s.jobs.EnsureIdle(name, models.JobKindTraining); err != nil {
		return err
	}
	if err := s.storage.DeleteProject(ctx, name); err != nil {
		return err
	}
	if project.LogPath != "" {
		if err := os.Remove(project.LogPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", project.LogPath).Msg("Failed to remove project log")
		}
	}
	s.logger.Info().Str("project", name).Msg("Project deleted")
	return nil
}

// Logs returns the last lines of the project's training output.
func (s *Service) Logs(ctx context.Context, name string, lines int) ([]string, error) {
	project, err := s.storage.GetProject(ctx, name)
	if err != nil {
		return nil, err
	}
	if lines <= 0 {
		lines = DefaultLogLines
	}
	return TailFile(project.LogPath, lines)
}

// TailFile returns the last n lines of path. A missing file has no lines.
func TailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = append(ring[1:], scanner.Text())
			continue
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return ring, nil
}
