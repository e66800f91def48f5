package pipeline

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/jobs"
	"github.com/neto007/HRM-pipeline/internal/services/planner"
)

// PlanSource returns the analyzed graph and plan of a repository.
type PlanSource interface {
	Snapshot(ctx context.Context, repository string) (*planner.Snapshot, error)
}

// GenerationStarter starts the single active generation job.
type GenerationStarter interface {
	StartGeneration(ctx context.Context, owner string, config map[string]interface{}, task jobs.Task) (*models.Job, error)
}

// Service starts generation jobs over the front of the migration plan.
type Service struct {
	pipeline *Pipeline
	plans    PlanSource
	jobs     GenerationStarter
	config   *common.GenerationConfig
	logger   arbor.ILogger
}

// NewService creates the generation service
func NewService(pipeline *Pipeline, plans PlanSource, jobs GenerationStarter, config *common.GenerationConfig, logger arbor.ILogger) *Service {
	return &Service{
		pipeline: pipeline,
		plans:    plans,
		jobs:     jobs,
		config:   config,
		logger:   logger,
	}
}

// Start validates the request, captures it by value into a new job and runs
// the batch in the background. Configuration problems are reported before
// any job exists.
func (s *Service) Start(ctx context.Context, req models.GenerationRequest) (*models.Job, error) {
	req = s.withDefaults(req)
	if req.Limit > s.config.MaxLimit {
		return nil, interfaces.NewConfigurationError("limit %d exceeds generation.max_limit %d", req.Limit, s.config.MaxLimit)
	}

	checkpoint, err := s.pipeline.ResolveCheckpoint(ctx, req.Checkpoint)
	if err != nil {
		return nil, err
	}
	req.Checkpoint = checkpoint.Name

	snap, err := s.plans.Snapshot(ctx, req.Repository)
	if err != nil {
		return nil, err
	}
	req.Repository = snap.Plan.Repository

	units := make([]*models.SourceUnit, 0, len(snap.Plan.MigrationOrder))
	for _, id := range snap.Plan.MigrationOrder {
		if u, ok := snap.Graph.Units[id]; ok {
			units = append(units, u)
		}
	}
	total := min(req.Limit, len(units))

	config := map[string]interface{}{
		"repository":  req.Repository,
		"limit":       req.Limit,
		"target_lang": req.TargetLang,
		"model":       req.Model,
		"checkpoint":  req.Checkpoint,
		"top_k":       req.TopK,
	}

	job, err := s.jobs.StartGeneration(ctx, req.Repository, config, func(ctx context.Context, run *jobs.Run) error {
		run.SetTotal(total)
		outcomes, err := s.pipeline.RunBatch(ctx, Batch{
			JobID:   run.ID(),
			Request: req,
			Units:   units,
			Gate:    run.Gate,
		}, func(processed int, outcome models.ItemOutcome) {
			run.Progress(processed, &outcome)
		})
		if outcomes != nil {
			run.SetOutcomes(outcomes)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("repository", req.Repository).
		Int("items", total).
		Str("model", req.Model).
		Msg("Generation job started")
	return job, nil
}

// Transcribe runs one source file through the pipeline synchronously.
func (s *Service) Transcribe(ctx context.Context, code string, req models.GenerationRequest) (*models.TranscribeResult, error) {
	return s.pipeline.TranscribeSingle(ctx, code, s.withDefaults(req))
}

func (s *Service) withDefaults(req models.GenerationRequest) models.GenerationRequest {
	if req.Limit <= 0 {
		req.Limit = s.config.DefaultLimit
	}
	if req.TargetLang == "" {
		req.TargetLang = s.config.TargetLang
	}
	if req.Model == "" {
		req.Model = s.config.DefaultModel
	}
	return req
}
