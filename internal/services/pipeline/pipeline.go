// -----------------------------------------------------------------------
// Pipeline - per-item hybrid generation and the bounded batch runner
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/llm"
)

// Guider produces guidance for one unit from a resolved checkpoint.
type Guider interface {
	Guide(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext, checkpoint models.Checkpoint) (*models.Guidance, error)
}

// CodeGenerator translates one unit.
type CodeGenerator interface {
	Generate(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext, guidance *models.Guidance, model, targetLang string) (*llm.GenerationResult, error)
	Revise(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext, guidance *models.Guidance, previous string, findings []string, model, targetLang string) (*llm.GenerationResult, error)
}

// Scorer validates output and returns its reward.
type Scorer interface {
	Evaluate(ctx context.Context, output string, unit *models.SourceUnit, rctx *models.RetrievalContext, guidance *models.Guidance) *models.RewardScore
}

// CheckpointResolver resolves checkpoint names against the registry.
type CheckpointResolver interface {
	Resolve(ctx context.Context, name string) (models.Checkpoint, error)
	Revalidate(checkpoint models.Checkpoint) error
}

// Options carries the runner defaults.
type Options struct {
	TargetLang  string
	TopK        int
	Concurrency int

	// FeedbackRounds bounds the re-prompts of an item whose reward is below
	// FeedbackThreshold. Zero disables feedback.
	FeedbackRounds    int
	FeedbackThreshold float64
}

// Pipeline runs source units through retrieval, guidance, generation and scoring.
type Pipeline struct {
	retriever   interfaces.ContextRetriever
	guider      Guider
	generator   CodeGenerator
	scorer      Scorer
	checkpoints CheckpointResolver
	dataset     interfaces.DatasetStorage
	analyzer    interfaces.Analyzer
	events      interfaces.EventService
	opts        Options
	logger      arbor.ILogger
}

// NewPipeline creates the pipeline. limiter is the provider ceiling shared with
// every other LLM caller; concurrency never exceeds its burst.
func NewPipeline(
	retriever interfaces.ContextRetriever,
	guider Guider,
	generator CodeGenerator,
	scorer Scorer,
	checkpoints CheckpointResolver,
	dataset interfaces.DatasetStorage,
	analyzer interfaces.Analyzer,
	events interfaces.EventService,
	opts Options,
	limiter *rate.Limiter,
	logger arbor.ILogger,
) *Pipeline {
	opts.Concurrency = effectiveConcurrency(opts.Concurrency, limiter)
	if opts.TargetLang == "" {
		opts.TargetLang = "go"
	}
	return &Pipeline{
		retriever:   retriever,
		guider:      guider,
		generator:   generator,
		scorer:      scorer,
		checkpoints: checkpoints,
		dataset:     dataset,
		analyzer:    analyzer,
		events:      events,
		opts:        opts,
		logger:      logger,
	}
}

func effectiveConcurrency(requested int, limiter *rate.Limiter) int {
	if requested < 1 {
		requested = 1
	}
	if limiter == nil || limiter.Limit() == rate.Inf {
		return requested
	}
	if ceiling := limiter.Burst(); ceiling > 0 && ceiling < requested {
		return ceiling
	}
	return requested
}

// Concurrency returns the effective number of items run at once.
func (p *Pipeline) Concurrency() int {
	return p.opts.Concurrency
}

// ProgressFunc is called once per finished item with the running count.
type ProgressFunc func(processed int, outcome models.ItemOutcome)

// Batch is one generation run bound to a job.
type Batch struct {
	JobID   string
	Request models.GenerationRequest
	Units   []*models.SourceUnit // In migration order

	// Gate, when set, is called before each item starts. It blocks while the
	// job is paused; an error stops the batch like a cancellation.
	Gate func(ctx context.Context) error
}

// ResolveCheckpoint resolves the request checkpoint; callers use it to fail a
// request before any job is created.
func (p *Pipeline) ResolveCheckpoint(ctx context.Context, name string) (models.Checkpoint, error) {
	return p.checkpoints.Resolve(ctx, name)
}

// RunBatch processes the first Request.Limit units and returns exactly one
// outcome per selected unit, in order. Cancelling ctx stops new items from
// starting; items already running complete. The returned error is ctx.Err()
// on cancellation or a configuration error raised before any item ran.
func (p *Pipeline) RunBatch(ctx context.Context, batch Batch, progress ProgressFunc) ([]models.ItemOutcome, error) {
	logger := p.logger
	if batch.JobID != "" {
		logger = p.logger.WithCorrelationId(batch.JobID)
	}

	checkpoint, err := p.checkpoints.Resolve(ctx, batch.Request.Checkpoint)
	if err != nil {
		logger.Error().Err(err).Str("phase", "init").Msg("Checkpoint did not resolve, nothing generated")
		return nil, err
	}

	units := batch.Units
	if batch.Request.Limit >= 0 && batch.Request.Limit < len(units) {
		units = units[:batch.Request.Limit]
	}

	outcomes := make([]models.ItemOutcome, len(units))
	for i, u := range units {
		outcomes[i] = models.ItemOutcome{UnitID: u.ID, State: models.ItemQueued}
	}

	logger.Info().
		Str("phase", "init").
		Int("items", len(units)).
		Int("concurrency", p.opts.Concurrency).
		Str("checkpoint", checkpoint.Name).
		Str("model", batch.Request.Model).
		Msg("Generation batch started")

	var (
		mu        sync.Mutex
		processed int
	)

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)

	for i, unit := range units {
		// Go blocks until a slot frees, so this check runs right before the item starts
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if batch.Gate != nil {
				if err := batch.Gate(ctx); err != nil {
					return nil
				}
			}
			if ctx.Err() != nil {
				return nil
			}
			// in-flight items finish even if the job is cancelled meanwhile
			outcome, _ := p.runItem(context.WithoutCancel(ctx), logger, batch, unit, checkpoint)

			mu.Lock()
			outcomes[i] = outcome
			processed++
			n := processed
			mu.Unlock()

			if progress != nil {
				progress(n, outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for i := range outcomes {
		if outcomes[i].Succeeded() {
			succeeded++
		} else if outcomes[i].State == models.ItemQueued {
			outcomes[i].Error = "not started: job cancelled"
		}
	}

	logger.Info().
		Str("phase", "done").
		Int("processed", processed).
		Int("succeeded", succeeded).
		Int("failed", processed-succeeded).
		Msg("Generation batch finished")

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// RunItem runs one unit through every stage and persists the draft entry.
func (p *Pipeline) RunItem(ctx context.Context, batch Batch, unit *models.SourceUnit) (models.ItemOutcome, *models.DatasetEntry) {
	logger := p.logger
	if batch.JobID != "" {
		logger = p.logger.WithCorrelationId(batch.JobID)
	}
	checkpoint, err := p.checkpoints.Resolve(ctx, batch.Request.Checkpoint)
	if err != nil {
		return failed(models.ItemOutcome{UnitID: unit.ID}, models.ItemQueued, err), nil
	}
	return p.runItem(ctx, logger, batch, unit, checkpoint)
}

func (p *Pipeline) runItem(
	ctx context.Context,
	logger arbor.ILogger,
	batch Batch,
	unit *models.SourceUnit,
	checkpoint models.Checkpoint,
) (models.ItemOutcome, *models.DatasetEntry) {
	outcome := models.ItemOutcome{UnitID: unit.ID, State: models.ItemQueued}
	start := time.Now()

	fail := func(err error) (models.ItemOutcome, *models.DatasetEntry) {
		out := failed(outcome, outcome.State, err)
		logger.Warn().
			Err(err).
			Str("phase", string(out.FailedAt)).
			Str("unit", unit.ID).
			Str("kind", out.ErrorKind).
			Int("attempts", out.Attempts).
			Msg("Item failed")
		return out, nil
	}

	// the checkpoint was captured at job start; items started later re-check it
	if err := p.checkpoints.Revalidate(checkpoint); err != nil {
		return fail(err)
	}

	run, err := p.stages(ctx, &outcome, unit, checkpoint, batch.Request)
	if err != nil {
		return fail(err)
	}

	outcome.State = models.ItemScored
	outcome.Reward = run.reward.Total

	filename, err := p.dataset.AllocateFilename(ctx, unit.Path)
	if err != nil {
		return fail(fmt.Errorf("failed to allocate filename: %w", err))
	}

	entry := &models.DatasetEntry{
		Filename:        filename,
		SourceFile:      unit.Path,
		InputCode:       unit.Code,
		OutputCode:      run.code,
		AnalysisTrace:   run.trace,
		Guidance:        run.guidance,
		Reward:          run.reward,
		RLCoderContext:  run.rctx,
		TargetLang:      run.targetLang,
		ModelUsed:       run.model,
		Checkpoint:      checkpoint.Name,
		Attempts:        outcome.Attempts,
		PipelineVersion: models.PipelineVersion,
		JobID:           batch.JobID,
		Status:          models.EntryStatusDraft,
		CreatedAt:       time.Now(),
	}
	if err := p.dataset.SaveDraft(ctx, entry); err != nil {
		return fail(fmt.Errorf("failed to save draft: %w", err))
	}

	outcome.State = models.ItemPersisted
	outcome.Filename = filename

	logger.Info().
		Str("phase", "persist").
		Str("unit", unit.ID).
		Str("filename", filename).
		Str("reward", fmt.Sprintf("%.2f", run.reward.Total)).
		Int("attempts", outcome.Attempts).
		Dur("elapsed", time.Since(start)).
		Msg("Item persisted as draft")

	if p.events != nil {
		_ = p.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventEntryCreated,
			Payload: map[string]interface{}{
				"job_id":      batch.JobID,
				"filename":    filename,
				"source_file": unit.Path,
				"reward":      run.reward.Total,
			},
		})
	}

	return outcome, entry
}

// stageRun collects what the stages produced for one unit.
type stageRun struct {
	rctx       *models.RetrievalContext
	guidance   *models.Guidance
	code       string
	model      string
	targetLang string
	reward     *models.RewardScore
	trace      []string
}

// stages advances outcome.State through retrieval, guidance, generation and
// validation. On error outcome.State names the stage that failed.
func (p *Pipeline) stages(
	ctx context.Context,
	outcome *models.ItemOutcome,
	unit *models.SourceUnit,
	checkpoint models.Checkpoint,
	req models.GenerationRequest,
) (*stageRun, error) {
	run := &stageRun{targetLang: req.TargetLang}
	if run.targetLang == "" {
		run.targetLang = p.opts.TargetLang
	}
	topK := req.TopK
	if topK <= 0 {
		topK = p.opts.TopK
	}

	outcome.State = models.ItemRetrieving
	rctx, err := p.retriever.Retrieve(ctx, unit, topK)
	if err != nil {
		return nil, err
	}
	run.rctx = rctx
	run.trace = append(run.trace, fmt.Sprintf("retrieval: %s mode, %d snippets", rctx.Mode, rctx.Len()))

	outcome.State = models.ItemGuiding
	guidance, err := p.guider.Guide(ctx, unit, rctx, checkpoint)
	if err != nil {
		return nil, err
	}
	run.guidance = guidance
	run.trace = append(run.trace, fmt.Sprintf("guidance: %s (checkpoint %s, %d concerns)",
		guidance.Strategy, checkpoint.Name, len(guidance.CriticalConcerns)))

	outcome.State = models.ItemGenerating
	result, err := p.generator.Generate(ctx, unit, rctx, guidance, req.Model, run.targetLang)
	if result != nil {
		outcome.Attempts = result.Attempts
	}
	if err != nil {
		return nil, err
	}
	run.code = result.Code
	run.model = result.Model
	run.trace = append(run.trace, fmt.Sprintf("generation: model %s, %d attempt(s)", result.Model, result.Attempts))

	outcome.State = models.ItemValidating
	run.reward = p.scorer.Evaluate(ctx, run.code, unit, rctx, guidance)
	run.trace = append(run.trace, fmt.Sprintf("validation: reward %.2f/%.0f", run.reward.Total, run.reward.MaxTotal))

	p.feedback(ctx, outcome, run, unit, req.Model)
	return run, nil
}

// feedback re-prompts the model with the validator findings while the reward
// stays below the threshold. run keeps the best-scoring attempt; a failed
// revision ends the rounds without failing the item.
func (p *Pipeline) feedback(ctx context.Context, outcome *models.ItemOutcome, run *stageRun, unit *models.SourceUnit, model string) {
	previous, findings := run.code, run.reward.Notes

	for round := 1; round <= p.opts.FeedbackRounds; round++ {
		if run.reward.Total >= p.opts.FeedbackThreshold || len(findings) == 0 {
			return
		}

		outcome.State = models.ItemGenerating
		result, err := p.generator.Revise(ctx, unit, run.rctx, run.guidance, previous, findings, model, run.targetLang)
		if result != nil {
			outcome.Attempts += result.Attempts
		}
		if err != nil {
			run.trace = append(run.trace, fmt.Sprintf("feedback %d: revision failed: %v", round, err))
			outcome.State = models.ItemValidating
			return
		}

		outcome.State = models.ItemValidating
		reward := p.scorer.Evaluate(ctx, result.Code, unit, run.rctx, run.guidance)
		kept := reward.Total > run.reward.Total
		run.trace = append(run.trace, fmt.Sprintf("feedback %d: %d finding(s), reward %.2f/%.0f, kept=%t",
			round, len(findings), reward.Total, reward.MaxTotal, kept))
		if kept {
			run.code = result.Code
			run.model = result.Model
			run.reward = reward
		}
		previous, findings = result.Code, reward.Notes
	}
}

// TranscribeSingle runs one in-memory source file through the pipeline without
// persisting anything.
func (p *Pipeline) TranscribeSingle(ctx context.Context, code string, req models.GenerationRequest) (*models.TranscribeResult, error) {
	checkpoint, err := p.checkpoints.Resolve(ctx, req.Checkpoint)
	if err != nil {
		return nil, err
	}

	unit, err := p.analyzer.ParseSource(ctx, "Input.java", []byte(code))
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}

	var outcome models.ItemOutcome
	run, err := p.stages(ctx, &outcome, unit, checkpoint, req)
	if err != nil {
		return nil, err
	}

	return &models.TranscribeResult{
		Output:   run.code,
		Guidance: run.guidance,
		Reward:   run.reward,
		Context:  run.rctx,
		Attempts: outcome.Attempts,
		Trace:    run.trace,
	}, nil
}

// failed marks outcome as failed at stage.
func failed(outcome models.ItemOutcome, stage models.ItemState, err error) models.ItemOutcome {
	outcome.State = models.ItemFailed
	outcome.FailedAt = stage
	outcome.Error = err.Error()
	outcome.ErrorKind = string(interfaces.KindOf(err))
	if outcome.ErrorKind == "" && errors.Is(err, context.Canceled) {
		outcome.ErrorKind = "cancelled"
	}
	return outcome
}
