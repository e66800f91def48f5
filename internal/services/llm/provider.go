package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ProviderFactory resolves model strings to providers and implements
// interfaces.LLMClient. All calls share one rate limiter.
type ProviderFactory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	kvStorage    interfaces.KeyValueStorage
	limiter      *rate.Limiter
	timeout      time.Duration
	logger       arbor.ILogger

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeAPIKey string
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		geminiConfig: geminiConfig,
		claudeConfig: claudeConfig,
		llmConfig:    llmConfig,
		kvStorage:    kvStorage,
		limiter:      NewLimiter(llmConfig.RequestsPerMinute),
		timeout:      common.ParseDurationOr(llmConfig.Timeout, 2*time.Minute),
		logger:       logger,
	}
}

// NewLimiter builds the shared provider ceiling; zero means unlimited.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := requestsPerMinute / 60
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

// Limiter exposes the shared limiter so batch concurrency can respect it.
func (f *ProviderFactory) Limiter() *rate.Limiter {
	return f.limiter
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-20250514" -> Claude
// - "claude/claude-sonnet-4-20250514" -> Claude (with prefix)
// - "gemini-2.5-flash" -> Gemini
// - "gemini/gemini-2.5-flash" -> Gemini (with prefix)
// - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the default model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.claudeConfig.Model
	default:
		return f.geminiConfig.Model
	}
}

// GetGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) GetGeminiClient(ctx context.Context) (*genai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, f.kvStorage, "gemini_api_key", f.geminiConfig.APIKey)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// GetClaudeClient returns a Claude client, creating one if necessary
func (f *ProviderFactory) GetClaudeClient(ctx context.Context) (anthropic.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claudeAPIKey != "" {
		return f.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, f.kvStorage, "anthropic_api_key", f.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, err
	}

	// retries are owned by the generation stage
	f.claudeClient = anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	f.claudeAPIKey = apiKey
	return f.claudeClient, nil
}

// Complete runs one completion against the provider selected by req.Model.
// Errors are returned unclassified; callers decide whether to retry.
func (f *ProviderFactory) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	provider := f.DetectProvider(req.Model)
	model := f.NormalizeModel(req.Model)

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Int("prompt_chars", len(req.Prompt)).
		Msg("Generating content with provider")

	switch provider {
	case ProviderClaude:
		return f.completeWithClaude(ctx, req, model)
	default:
		return f.completeWithGemini(ctx, req, model)
	}
}

func (f *ProviderFactory) completeWithClaude(ctx context.Context, req interfaces.CompletionRequest, model string) (string, error) {
	client, err := f.GetClaudeClient(ctx)
	if err != nil {
		return "", err
	}

	if model == "" {
		model = f.claudeConfig.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.claudeConfig.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	temp := req.Temperature
	if temp < 0 {
		temp = f.claudeConfig.Temperature
	}
	params.Temperature = anthropic.Float(float64(temp))

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}

func (f *ProviderFactory) completeWithGemini(ctx context.Context, req interfaces.CompletionRequest, model string) (string, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return "", err
	}

	if model == "" {
		model = f.geminiConfig.Model
	}

	temp := req.Temperature
	if temp < 0 {
		temp = f.geminiConfig.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)}},
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}
	return responseText, nil
}

// Close closes all provider clients
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.geminiClient = nil
	f.claudeClient = anthropic.Client{}
	f.claudeAPIKey = ""
	return nil
}
