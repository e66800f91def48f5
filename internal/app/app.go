package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/handlers"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/logs"
	"github.com/neto007/HRM-pipeline/internal/services/analyzer"
	"github.com/neto007/HRM-pipeline/internal/services/dataset"
	"github.com/neto007/HRM-pipeline/internal/services/events"
	"github.com/neto007/HRM-pipeline/internal/services/guidance"
	"github.com/neto007/HRM-pipeline/internal/services/jobs"
	"github.com/neto007/HRM-pipeline/internal/services/llm"
	"github.com/neto007/HRM-pipeline/internal/services/pipeline"
	"github.com/neto007/HRM-pipeline/internal/services/planner"
	"github.com/neto007/HRM-pipeline/internal/services/projects"
	"github.com/neto007/HRM-pipeline/internal/services/repositories"
	"github.com/neto007/HRM-pipeline/internal/services/retrieval"
	"github.com/neto007/HRM-pipeline/internal/services/scheduler"
	"github.com/neto007/HRM-pipeline/internal/services/validator"
	"github.com/neto007/HRM-pipeline/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service

	// Job execution
	JobManager  *jobs.Manager
	LogService  *logs.Service
	LogConsumer *logs.Consumer // Log consumer for arbor context channel

	// Pipeline services
	Analyzer          interfaces.Analyzer
	Index             *retrieval.KeywordIndex
	Providers         *llm.ProviderFactory
	Checkpoints       *guidance.Registry
	PlanService       *planner.Service
	Pipeline          *pipeline.Pipeline
	GenerationService *pipeline.Service
	DatasetService    *dataset.Service
	ProjectService    *projects.Service
	RepositoryService *repositories.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	WSHandler         *handlers.WebSocketHandler
	PlanHandler       *handlers.PlanHandler
	GenerationHandler *handlers.GenerationHandler
	DatasetHandler    *handlers.DatasetHandler
	JobHandler        *handlers.JobHandler
	ProjectHandler    *handlers.ProjectHandler
	RepositoryHandler *handlers.RepositoryHandler
	SchedulerHandler  *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event service comes first: the log consumer and websocket both hang off it
	app.EventService = events.NewService(app.Logger)
	if err := app.EventService.SubscribeAll(events.NewLoggerSubscriber(app.Logger)); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	app.LogService = logs.NewService(
		app.StorageManager.JobLogStorage(),
		app.StorageManager.JobStorage(),
		app.Logger,
	)

	// Job-correlated log lines flow through the consumer into job log storage
	consumer := logs.NewConsumer(
		app.StorageManager.JobLogStorage(),
		app.EventService,
		app.Logger,
		app.Config.Logging.MinEventLevel,
	)
	if err := consumer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	app.LogConsumer = consumer
	app.Logger.SetChannel("context", consumer.GetChannel())

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	app.Logger.Info().
		Str("environment", cfg.Environment).
		Str("guidance_runtime", cfg.Guidance.Runtime).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Info().Str("path", a.Config.Storage.Badger.Path).Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices() error {
	cfg := a.Config
	store := a.StorageManager

	// 1. Jobs, with recovery of anything a previous process left active
	grace := common.ParseDurationOr(cfg.Jobs.CancelGracePeriod, 10*time.Second)
	a.JobManager = jobs.NewManager(store.JobStorage(), a.EventService, jobs.NewExecSupervisor(grace, a.Logger), a.Logger)
	recovered, err := a.JobManager.Recover(context.Background())
	if err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	if recovered > 0 {
		a.Logger.Warn().Int("jobs", recovered).Msg("Interrupted jobs marked failed")
	}

	// 2. Analysis and retrieval
	a.Analyzer = analyzer.NewAnalyzer(a.Logger, cfg.Generation.Concurrency)
	a.Index = retrieval.NewKeywordIndex(store.IndexStorage(), cfg.Planner.Extensions, cfg.Retrieval.MaxSnippetChars, a.Logger)
	retriever := retrieval.NewRetriever(store.RepositoryStorage(), a.Index, a.Logger)

	a.PlanService = planner.NewService(
		planner.NewPlanner(cfg.Planner.BatchSize, a.Logger),
		a.Analyzer,
		store.RepositoryStorage(),
		a.EventService,
		cfg.Planner.Extensions,
		a.Logger,
	)

	// 3. LLM providers share one rate limiter
	a.Providers = llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, store.KeyValueStorage(), a.Logger)
	generator := llm.NewGenerator(a.Providers, llm.RetryPolicyFromConfig(&cfg.Generation), cfg, a.Logger)

	// 4. Guidance
	a.Checkpoints = guidance.NewRegistry(&cfg.Guidance, a.Logger)
	var runtime interfaces.GuidanceRuntime = guidance.NewHeuristicRuntime()
	if cfg.Guidance.Runtime == "llm" {
		runtime = guidance.NewLLMRuntime(a.Providers, cfg.Guidance.Model)
	}
	stage := guidance.NewStage(runtime, a.Logger)

	// 5. Pipeline and generation jobs
	var compiler validator.Compiler
	if c := validator.NewGoCompiler(cfg.Reward.Compile); c != nil {
		compiler = c
		a.Logger.Info().Str("sandbox", cfg.Reward.Compile.SandboxDir).Msg("Compile check enabled")
	}

	a.Pipeline = pipeline.NewPipeline(
		retriever,
		stage,
		generator,
		validator.NewValidator(cfg.Reward.Weights, compiler),
		a.Checkpoints,
		store.DatasetStorage(),
		a.Analyzer,
		a.EventService,
		pipeline.Options{
			TargetLang:  cfg.Generation.TargetLang,
			TopK:        cfg.Retrieval.TopK,
			Concurrency: cfg.Generation.Concurrency,

			FeedbackRounds:    cfg.Generation.FeedbackRounds,
			FeedbackThreshold: cfg.Generation.FeedbackThreshold,
		},
		a.Providers.Limiter(),
		a.Logger,
	)
	a.GenerationService = pipeline.NewService(a.Pipeline, a.PlanService, a.JobManager, &cfg.Generation, a.Logger)

	// 6. Curation, training projects and the repository registry
	a.DatasetService = dataset.NewService(store.DatasetStorage(), generator, a.EventService, cfg.Dataset.TestModel, a.Logger)

	logDir := cfg.Jobs.LogDir
	if logDir == "" {
		logDir = filepath.Join(cfg.Storage.DataDir, "logs")
	}
	a.ProjectService = projects.NewService(store.ProjectStorage(), a.JobManager, cfg.Training, logDir, a.Logger)

	reposDir := cfg.Training.ReposDir
	if reposDir == "" {
		reposDir = filepath.Join(cfg.Storage.DataDir, "repos")
	}
	a.RepositoryService = repositories.NewService(
		store.RepositoryStorage(),
		a.Index,
		a.PlanService,
		a.JobManager,
		a.EventService,
		reposDir,
		a.Logger,
	)

	// 7. Scheduler
	a.SchedulerService = scheduler.NewService(store.KeyValueStorage(), a.Logger)
	if cfg.Scheduler.Enabled {
		if err := a.SchedulerService.RegisterReanalysis(cfg.Scheduler.Schedule, a.PlanService); err != nil {
			return fmt.Errorf("failed to register re-analysis task: %w", err)
		}
		a.SchedulerService.Start()
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
	a.PlanHandler = handlers.NewPlanHandler(a.PlanService, a.Logger)
	a.GenerationHandler = handlers.NewGenerationHandler(a.GenerationService, a.Checkpoints, a.Logger)
	a.DatasetHandler = handlers.NewDatasetHandler(a.DatasetService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobManager, a.LogService, a.Logger)
	a.ProjectHandler = handlers.NewProjectHandler(a.ProjectService, a.Logger)
	a.RepositoryHandler = handlers.NewRepositoryHandler(a.RepositoryService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService)
}

// Close shuts down all services in reverse dependency order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	// Running jobs are cancelled and their subprocesses terminated
	if a.JobManager != nil {
		grace := common.ParseDurationOr(a.Config.Jobs.CancelGracePeriod, 10*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
		if err := a.JobManager.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Job manager did not stop cleanly")
		}
		cancel()
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		} else {
			a.Logger.Info().Msg("Log consumer stopped")
		}
	}

	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM providers")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
