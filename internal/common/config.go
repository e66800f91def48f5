package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Planner     PlannerConfig    `toml:"planner"`
	Retrieval   RetrievalConfig  `toml:"retrieval"`
	Guidance    GuidanceConfig   `toml:"guidance"`
	Generation  GenerationConfig `toml:"generation"`
	Reward      RewardConfig     `toml:"reward"`
	Dataset     DatasetConfig    `toml:"dataset"`
	Jobs        JobsConfig       `toml:"jobs"`
	Training    TrainingConfig   `toml:"training"`
	LLM         LLMConfig        `toml:"llm"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig `toml:"badger"`
	DataDir string       `toml:"data_dir"` // Root for logs, repositories and exports
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "stdout", "file"
	Dir           string   `toml:"dir"`             // Log file directory (default: next to the executable)
	MinEventLevel string   `toml:"min_event_level"` // Minimum job log level republished as events
}

// PlannerConfig controls migration ordering
type PlannerConfig struct {
	BatchSize  int      `toml:"batch_size" validate:"gte=1"` // Size of the recommended batch (K)
	Extensions []string `toml:"extensions"`                  // Source file extensions analyzed
}

// RetrievalConfig controls the context retriever
type RetrievalConfig struct {
	TopK            int `toml:"top_k" validate:"gte=0"`
	MaxSnippetChars int `toml:"max_snippet_chars" validate:"gte=0"` // Truncate snippets in prompts (0 = no limit)
}

// GuidanceConfig controls checkpoint discovery and the guidance runtime
type GuidanceConfig struct {
	CheckpointDir     string `toml:"checkpoint_dir"`
	DefaultCheckpoint string `toml:"default_checkpoint"` // Name or path of the default checkpoint
	MinEpoch          int    `toml:"min_epoch" validate:"gte=0"`
	Runtime           string `toml:"runtime" validate:"oneof=heuristic llm"`
	Model             string `toml:"model"` // Model used by the llm runtime
}

// GenerationConfig controls the generation stage and batch runner
type GenerationConfig struct {
	TargetLang    string  `toml:"target_lang"`
	DefaultModel  string  `toml:"default_model"`
	Concurrency   int     `toml:"concurrency" validate:"gte=1"`
	MaxAttempts   int     `toml:"max_attempts" validate:"gte=1"`
	BaseBackoff   string  `toml:"base_backoff"` // e.g. "1s"
	BackoffFactor float64 `toml:"backoff_factor" validate:"gte=1"`
	MaxBackoff    string  `toml:"max_backoff"`
	Jitter        bool    `toml:"jitter"`
	DefaultLimit  int     `toml:"default_limit" validate:"gte=1"`
	MaxLimit      int     `toml:"max_limit" validate:"gte=1"`
	Temperature   float32 `toml:"temperature"`

	// A reward below FeedbackThreshold re-prompts the model with the validator
	// findings, at most FeedbackRounds times. The best-scoring attempt is kept.
	FeedbackRounds    int     `toml:"feedback_rounds" validate:"gte=0,lte=5"`
	FeedbackThreshold float64 `toml:"feedback_threshold" validate:"gte=0,lte=20"`
}

// RewardConfig holds the reward weight policy. Weights must be non-negative.
type RewardConfig struct {
	Weights map[string]float64 `toml:"weights"`
	Compile CompileConfig      `toml:"compile"`
}

// CompileConfig controls the go build check behind the "compiles" dimension.
// When disabled the dimension mirrors the syntax check.
type CompileConfig struct {
	Enabled    bool   `toml:"enabled"`
	GoBinary   string `toml:"go_binary"`
	SandboxDir string `toml:"sandbox_dir"` // Scratch modules are created and removed here
	Timeout    string `toml:"timeout"`
}

// DatasetConfig controls curation helpers
type DatasetConfig struct {
	TestModel  string `toml:"test_model"`  // Model used for test generation (empty = generation default)
	ExportPath string `toml:"export_path"` // JSON Lines file written by the export command
}

// JobsConfig controls job supervision
type JobsConfig struct {
	CancelGracePeriod string `toml:"cancel_grace_period"` // SIGTERM to SIGKILL delay
	LogDir            string `toml:"log_dir"`             // Training subprocess logs
}

// TrainingConfig describes the guidance-model trainer subprocess
type TrainingConfig struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"` // {project}, {repo}, {branch}, {epochs}, {batch_size}, {extensions}, {repos_dir} are substituted
	WorkDir  string   `toml:"work_dir"`
	ReposDir string   `toml:"repos_dir"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains configuration shared by all providers
type LLMConfig struct {
	DefaultProvider   LLMProvider `toml:"default_provider"`
	RequestsPerMinute int         `toml:"requests_per_minute" validate:"gte=0"` // Provider ceiling shared by all callers (0 = unlimited)
	Timeout           string      `toml:"timeout"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// SchedulerConfig controls periodic re-analysis of the active repository
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron format with seconds
}

// WebSocketConfig contains configuration for the event stream
type WebSocketConfig struct {
	AllowedEvents     []string          `toml:"allowed_events"`     // Empty allows all events
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // Event type to minimum interval
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "info",
		},
		Planner: PlannerConfig{
			BatchSize:  5,
			Extensions: []string{".java"},
		},
		Retrieval: RetrievalConfig{
			TopK:            3,
			MaxSnippetChars: 1500,
		},
		Guidance: GuidanceConfig{
			CheckpointDir:     "./checkpoints/hrm_guidance",
			DefaultCheckpoint: "best.ckpt",
			MinEpoch:          1,
			Runtime:           "heuristic",
		},
		Generation: GenerationConfig{
			TargetLang:    "go",
			DefaultModel:  "gemini-2.5-flash",
			Concurrency:   1,
			MaxAttempts:   3,
			BaseBackoff:   "1s",
			BackoffFactor: 2,
			MaxBackoff:    "30s",
			Jitter:        true,
			DefaultLimit:  5,
			MaxLimit:      500,
			Temperature:   0.2,

			FeedbackRounds:    1,
			FeedbackThreshold: 8,
		},
		Reward: RewardConfig{
			Weights: DefaultRewardWeights(),
			Compile: CompileConfig{
				Enabled:    false,
				GoBinary:   "go",
				SandboxDir: "./data/compiler_sandbox",
				Timeout:    "60s",
			},
		},
		Dataset: DatasetConfig{
			ExportPath: "./data/golden_dataset.jsonl",
		},
		Jobs: JobsConfig{
			CancelGracePeriod: "10s",
			LogDir:            "./data/logs",
		},
		Training: TrainingConfig{
			Command:  "python",
			Args:     []string{"pretrain.py", "--project", "{project}", "--repo", "{repo}", "--epochs", "{epochs}", "--batch-size", "{batch_size}"},
			ReposDir: "./data/repos",
		},
		LLM: LLMConfig{
			DefaultProvider:   LLMProviderGemini,
			RequestsPerMinute: 60,
			Timeout:           "5m",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Temperature: 0.2,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 0 */6 * * *",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"job_progress": "500ms",
			},
		},
	}
}

// DefaultRewardWeights returns the default weight per reward dimension.
// Dimension scores are in [0,1], so the weights sum to the maximum total of 20.
func DefaultRewardWeights() map[string]float64 {
	return map[string]float64{
		"non_empty":           1,
		"syntax":              4,
		"compiles":            3,
		"idiomatic":           4,
		"public_surface":      4,
		"context_similarity":  2,
		"guidance_compliance": 2,
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI overrides are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies HRM_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HRM_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("HRM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("HRM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if path := os.Getenv("HRM_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("HRM_DATA_DIR"); dir != "" {
		config.Storage.DataDir = dir
	}

	// Logging
	if level := os.Getenv("HRM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("HRM_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Guidance
	if dir := os.Getenv("HRM_CHECKPOINT_DIR"); dir != "" {
		config.Guidance.CheckpointDir = dir
	}
	if cp := os.Getenv("HRM_DEFAULT_CHECKPOINT"); cp != "" {
		config.Guidance.DefaultCheckpoint = cp
	}

	// Generation
	if model := os.Getenv("HRM_GENERATION_MODEL"); model != "" {
		config.Generation.DefaultModel = model
	}
	if c := os.Getenv("HRM_GENERATION_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			config.Generation.Concurrency = n
		}
	}

	// LLM
	if provider := os.Getenv("HRM_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("HRM_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("HRM_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Training
	if cmd := os.Getenv("HRM_TRAINING_COMMAND"); cmd != "" {
		config.Training.Command = cmd
	}

	// Scheduler
	if enabled := os.Getenv("HRM_SCHEDULER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints plus the cross-field rules toml tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, w := range c.Reward.Weights {
		if w < 0 {
			return fmt.Errorf("invalid configuration: reward weight %q must be non-negative, got %v", name, w)
		}
	}

	if c.Generation.MaxLimit < c.Generation.DefaultLimit {
		return fmt.Errorf("invalid configuration: generation.max_limit (%d) is below default_limit (%d)",
			c.Generation.MaxLimit, c.Generation.DefaultLimit)
	}

	for _, d := range []struct{ name, value string }{
		{"generation.base_backoff", c.Generation.BaseBackoff},
		{"generation.max_backoff", c.Generation.MaxBackoff},
		{"jobs.cancel_grace_period", c.Jobs.CancelGracePeriod},
		{"llm.timeout", c.LLM.Timeout},
		{"reward.compile.timeout", c.Reward.Compile.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", d.name, err)
		}
	}

	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: scheduler.schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule parses a six-field (seconds first) cron expression.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDurationOr parses s and falls back to def when s is empty or malformed.
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves an API key by name.
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"HRM_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic_api_key": {"HRM_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", interfaces.NewConfigurationError("API key '%s' not found in environment, KV store, or config", name)
}
