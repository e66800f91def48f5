// -----------------------------------------------------------------------
// Generation stage - guided Java to Go translation through an LLM
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// GenerationResult is the extracted code of a successful generation.
type GenerationResult struct {
	Code     string
	Raw      string
	Model    string
	Attempts int
}

// Generator translates source units with retries on transient provider errors.
type Generator struct {
	client          interfaces.LLMClient
	policy          RetryPolicy
	defaultModel    string
	targetLang      string
	temperature     float32
	maxSnippetChars int
	logger          arbor.ILogger
}

// NewGenerator creates the generation stage
func NewGenerator(client interfaces.LLMClient, policy RetryPolicy, cfg *common.Config, logger arbor.ILogger) *Generator {
	return &Generator{
		client:          client,
		policy:          policy,
		defaultModel:    cfg.Generation.DefaultModel,
		targetLang:      cfg.Generation.TargetLang,
		temperature:     cfg.Generation.Temperature,
		maxSnippetChars: cfg.Retrieval.MaxSnippetChars,
		logger:          logger,
	}
}

// Generate asks the model for a translation of unit. model and targetLang
// override the configured defaults when non-empty.
func (g *Generator) Generate(
	ctx context.Context,
	unit *models.SourceUnit,
	rctx *models.RetrievalContext,
	guidance *models.Guidance,
	model string,
	targetLang string,
) (*GenerationResult, error) {
	if model == "" {
		model = g.defaultModel
	}
	if targetLang == "" {
		targetLang = g.targetLang
	}

	req := interfaces.CompletionRequest{
		System:      SystemPrompt(targetLang),
		Prompt:      BuildPrompt(unit, rctx, guidance, targetLang, g.maxSnippetChars),
		Model:       model,
		Temperature: g.temperature,
	}
	return g.complete(ctx, unit, req, targetLang)
}

// Revise asks the model to fix a previous translation of unit given the
// validator findings. It retries on transient errors like Generate.
func (g *Generator) Revise(
	ctx context.Context,
	unit *models.SourceUnit,
	rctx *models.RetrievalContext,
	guidance *models.Guidance,
	previous string,
	findings []string,
	model string,
	targetLang string,
) (*GenerationResult, error) {
	if model == "" {
		model = g.defaultModel
	}
	if targetLang == "" {
		targetLang = g.targetLang
	}

	req := interfaces.CompletionRequest{
		System:      SystemPrompt(targetLang),
		Prompt:      BuildRevisionPrompt(BuildPrompt(unit, rctx, guidance, targetLang, g.maxSnippetChars), previous, findings, targetLang),
		Model:       model,
		Temperature: g.temperature,
	}
	return g.complete(ctx, unit, req, targetLang)
}

func (g *Generator) complete(ctx context.Context, unit *models.SourceUnit, req interfaces.CompletionRequest, targetLang string) (*GenerationResult, error) {
	var raw string
	attempts, err := g.policy.Do(ctx, func(ctx context.Context) error {
		out, err := g.client.Complete(ctx, req)
		if err != nil {
			g.logger.Warn().Err(err).
				Str("unit", unit.ID).
				Bool("transient", IsTransient(err)).
				Msg("Generation attempt failed")
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return &GenerationResult{Model: req.Model, Attempts: attempts}, err
	}

	return &GenerationResult{
		Code:     ExtractCode(raw, fenceLanguage(targetLang)),
		Raw:      raw,
		Model:    req.Model,
		Attempts: attempts,
	}, nil
}

// GenerateTest asks the model for a table-driven test file covering code.
func (g *Generator) GenerateTest(ctx context.Context, code, sourceFile, model string) (string, error) {
	if model == "" {
		model = g.defaultModel
	}

	req := interfaces.CompletionRequest{
		System: "You are an expert Go engineer writing unit tests.",
		Prompt: fmt.Sprintf(`Write a Go test file for the code below, translated from %s.

Use table-driven tests with the standard testing package. Cover the exported
functions and methods and their edge cases. Reply with a single fenced go block.

`+"```go\n%s\n```", sourceFile, code),
		Model:       model,
		Temperature: g.temperature,
	}

	var raw string
	_, err := g.policy.Do(ctx, func(ctx context.Context) error {
		out, err := g.client.Complete(ctx, req)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return "", err
	}

	test, ok := ExtractFenced(raw, "go")
	if !ok {
		test = strings.TrimSpace(raw)
	}
	if test == "" {
		return "", interfaces.NewExternalServiceError(nil, "model returned no test code")
	}
	return test, nil
}

// SystemPrompt is the instruction given to the generator model.
func SystemPrompt(targetLang string) string {
	return fmt.Sprintf(`You are an expert migration engineer translating legacy Java to %s.
Use the architectural guidance and the repository context to write idiomatic %s code.
Output format: <code>your code here</code>`, displayLanguage(targetLang), displayLanguage(targetLang))
}

// BuildPrompt renders the guided translation prompt for one unit.
func BuildPrompt(unit *models.SourceUnit, rctx *models.RetrievalContext, guidance *models.Guidance, targetLang string, maxSnippetChars int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Migrate this Java code to %s.\n\n", displayLanguage(targetLang))

	if guidance != nil {
		b.WriteString("ARCHITECTURAL GUIDANCE:\n")
		fmt.Fprintf(&b, "Strategy: %s\n", guidance.Strategy)
		fmt.Fprintf(&b, "Concerns: %s\n", strings.Join(guidance.CriticalConcerns, ", "))
		fmt.Fprintf(&b, "Patterns: %s\n\n", strings.Join(guidance.RecommendedPatterns, ", "))
	}

	if len(unit.PublicMethods) > 0 || len(unit.PublicFields) > 0 {
		b.WriteString("PUBLIC SURFACE TO PRESERVE:\n")
		if len(unit.PublicMethods) > 0 {
			fmt.Fprintf(&b, "Methods: %s\n", strings.Join(unit.PublicMethods, ", "))
		}
		if len(unit.PublicFields) > 0 {
			fmt.Fprintf(&b, "Fields: %s\n", strings.Join(unit.PublicFields, ", "))
		}
		b.WriteString("\n")
	}

	if rctx.Len() > 0 {
		b.WriteString("CONTEXT [similar repository code]:\n")
		for i, snippet := range rctx.Snippets {
			if maxSnippetChars > 0 && len(snippet) > maxSnippetChars {
				snippet = snippet[:maxSnippetChars]
			}
			fmt.Fprintf(&b, "[%d] %s (similarity %.2f)\n```java\n%s\n```\n", i+1, rctx.SourcePaths[i], rctx.SimilarityScores[i], snippet)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "SOURCE [Java] %s:\n```java\n%s\n```\n\n", unit.Path, unit.Code)
	fmt.Fprintf(&b, "Generate idiomatic %s code following the guidance above.\n", displayLanguage(targetLang))
	return b.String()
}

// BuildRevisionPrompt appends the previous attempt and the findings against it to prompt.
func BuildRevisionPrompt(prompt, previous string, findings []string, targetLang string) string {
	var b strings.Builder
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\nPREVIOUS ATTEMPT:\n```%s\n%s\n```\n\n", fenceLanguage(targetLang), previous)
	b.WriteString("ISSUES FOUND:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nFix these issues and regenerate the complete file.\n")
	return b.String()
}

func fenceLanguage(targetLang string) string {
	l := strings.ToLower(targetLang)
	if l == "golang" || l == "" {
		return "go"
	}
	return l
}

func displayLanguage(targetLang string) string {
	switch strings.ToLower(targetLang) {
	case "", "go", "golang":
		return "Go"
	default:
		return targetLang
	}
}
