// -----------------------------------------------------------------------
// External collaborators consumed by the orchestration engine
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// Analyzer turns a repository checkout into a dependency graph of source units.
type Analyzer interface {
	Analyze(ctx context.Context, repoPath string, extensions []string) (*models.DependencyGraph, error)
	// ParseSource analyzes a single in-memory file.
	ParseSource(ctx context.Context, path string, code []byte) (*models.SourceUnit, error)
}

// VectorIndex builds and queries the retrieval index of a repository.
type VectorIndex interface {
	Index(ctx context.Context, repo *models.Repository) (models.RepositoryStats, error)
	Query(ctx context.Context, repository string, text string, k int) (*models.RetrievalContext, error)
}

// ContextRetriever supplies ranked snippets for one source unit.
type ContextRetriever interface {
	Retrieve(ctx context.Context, unit *models.SourceUnit, topK int) (*models.RetrievalContext, error)
}

// GuidanceModel is a loaded checkpoint.
type GuidanceModel interface {
	Infer(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext) (*models.Guidance, error)
}

// GuidanceRuntime loads checkpoints into guidance models.
type GuidanceRuntime interface {
	Load(ctx context.Context, checkpoint models.Checkpoint) (GuidanceModel, error)
}

// CompletionRequest is a provider-agnostic single-turn completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float32 // Negative uses the provider default
	MaxTokens   int
}

// LLMClient completes prompts against an LLM provider.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProcessSpec describes a supervised subprocess.
type ProcessSpec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	Env     []string
	LogPath string // stdout and stderr are appended here when set
}

// ProcessHandle is a running supervised process.
type ProcessHandle interface {
	PID() int
	// Wait blocks until the process exits.
	Wait() error
}

// ProcessSupervisor spawns and signals subprocesses.
type ProcessSupervisor interface {
	Spawn(ctx context.Context, spec ProcessSpec) (ProcessHandle, error)
	Pause(h ProcessHandle) error
	Resume(h ProcessHandle) error
	Kill(h ProcessHandle) error
}
