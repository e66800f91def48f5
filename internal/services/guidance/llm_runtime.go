package guidance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/llm"
)

const guidanceSystemPrompt = "You are an expert software architect planning Java to Go migrations. Reply with JSON only."

// LLMRuntime asks an LLM for guidance. The checkpoint is still required and
// recorded so entries keep their provenance.
type LLMRuntime struct {
	client interfaces.LLMClient
	model  string
}

// NewLLMRuntime creates the llm-backed guidance runtime
func NewLLMRuntime(client interfaces.LLMClient, model string) *LLMRuntime {
	return &LLMRuntime{client: client, model: model}
}

// Load checks the checkpoint is readable and binds it to the model.
func (r *LLMRuntime) Load(ctx context.Context, checkpoint models.Checkpoint) (interfaces.GuidanceModel, error) {
	if !readable(checkpoint.Path) {
		return nil, interfaces.NewConfigurationError("cannot read checkpoint %s", checkpoint.Name)
	}
	return &llmModel{runtime: r, checkpoint: checkpoint}, nil
}

type llmModel struct {
	runtime    *LLMRuntime
	checkpoint models.Checkpoint
}

type guidanceReply struct {
	Strategy            string   `json:"migration_strategy"`
	CriticalConcerns    []string `json:"critical_concerns"`
	RecommendedPatterns []string `json:"recommended_patterns"`
}

func (m *llmModel) Infer(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext) (*models.Guidance, error) {
	code := unit.Code
	if len(code) > 4000 {
		code = code[:4000]
	}

	var b strings.Builder
	b.WriteString("Analyze this Java code and provide high-level architectural guidance for migrating it to Go.\n\n")
	for i, snippet := range rctx.Snippets {
		fmt.Fprintf(&b, "Similar repository code [%d] %s:\n```java\n%s\n```\n", i+1, rctx.SourcePaths[i], snippet)
	}
	fmt.Fprintf(&b, "JAVA CODE:\n```java\n%s\n```\n\n", code)
	b.WriteString(`Reply in JSON: {"migration_strategy": "...", "critical_concerns": ["..."], "recommended_patterns": ["..."]}`)

	raw, err := m.runtime.client.Complete(ctx, interfaces.CompletionRequest{
		System:      guidanceSystemPrompt,
		Prompt:      b.String(),
		Model:       m.runtime.model,
		Temperature: 0,
	})
	if err != nil {
		return nil, interfaces.NewExternalServiceError(err, "guidance inference failed")
	}

	payload, ok := llm.ExtractFenced(raw, "json")
	if !ok {
		payload = strings.TrimSpace(raw)
	}
	if start, end := strings.Index(payload, "{"), strings.LastIndex(payload, "}"); start >= 0 && end > start {
		payload = payload[start : end+1]
	}

	var reply guidanceReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return nil, interfaces.NewExternalServiceError(err, "guidance reply is not valid JSON")
	}
	if reply.Strategy == "" {
		return nil, interfaces.NewExternalServiceError(nil, "guidance reply has no strategy")
	}

	return &models.Guidance{
		Strategy:            reply.Strategy,
		CriticalConcerns:    normalizeSet(reply.CriticalConcerns),
		RecommendedPatterns: normalizeSet(reply.RecommendedPatterns),
		Checkpoint:          m.checkpoint.Name,
	}, nil
}
