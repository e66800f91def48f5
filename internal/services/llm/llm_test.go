package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// scriptedClient returns the queued responses in order.
type scriptedClient struct {
	mu        sync.Mutex
	responses []interface{} // string or error
	requests  []interfaces.CompletionRequest
}

func (c *scriptedClient) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func noSleepPolicy(sleeps *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = false
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", errors.New("Error 503, Message: backend unavailable"), true},
		{"rate limited", errors.New("Error 429, Message: quota exceeded, Status: RESOURCE_EXHAUSTED"), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unauthorized", errors.New("Error 401, Message: invalid api key"), false},
		{"bad request", errors.New("Error 400, Message: malformed"), false},
		{"canceled", context.Canceled, false},
		{"missing key", interfaces.NewConfigurationError("no key"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: Please retry in 2.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 2500*time.Millisecond, ExtractRetryDelay(err))
	assert.Zero(t, ExtractRetryDelay(errors.New("nope")))
}

func TestRetryPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	var sleeps []time.Duration
	p := noSleepPolicy(&sleeps)

	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("Error 500, Message: internal")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestRetryPolicy_NonTransientFailsImmediately(t *testing.T) {
	var sleeps []time.Duration
	p := noSleepPolicy(&sleeps)

	attempts, err := p.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("Error 401, Message: invalid key")
	})

	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeps)
	assert.ErrorIs(t, err, interfaces.ErrExternalService)
}

func TestRetryPolicy_ExhaustedIsExternalServiceError(t *testing.T) {
	var sleeps []time.Duration
	p := noSleepPolicy(&sleeps)
	last := errors.New("Error 503, Message: overloaded")

	attempts, err := p.Do(context.Background(), func(ctx context.Context) error { return last })

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, interfaces.ErrExternalService)
	assert.ErrorIs(t, err, last)
	assert.Len(t, sleeps, 2)
}

func TestRetryPolicy_BackoffBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	p.MaxDelay = 3 * time.Second
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 3*time.Second)
	}

	p.Jitter = false
	assert.Equal(t, 3*time.Second, p.Backoff(5))
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"code tags", "Here:\n<code>\npackage main\n</code>\nDone", "package main"},
		{"fenced inside tags", "<code>```go\npackage a\n```</code>", "package a"},
		{"go fence wins over java", "```java\nclass A {}\n```\n\n```go\npackage b\n```\n", "package b"},
		{"untagged fence", "text\n```\npackage c\n```\n", "package c"},
		{"raw", "  package d  ", "package d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.response, "go"))
		})
	}
}

func TestDetectProvider(t *testing.T) {
	f := NewProviderFactory(&common.GeminiConfig{Model: "gemini-2.5-flash"}, &common.ClaudeConfig{Model: "claude-sonnet-4"},
		&common.LLMConfig{DefaultProvider: common.LLMProviderGemini}, nil, arbor.NewLogger())

	assert.Equal(t, ProviderClaude, f.DetectProvider("claude/claude-sonnet-4"))
	assert.Equal(t, ProviderClaude, f.DetectProvider("claude-3-haiku"))
	assert.Equal(t, ProviderGemini, f.DetectProvider("google/gemini-2.5-pro"))
	assert.Equal(t, ProviderGemini, f.DetectProvider(""))
	assert.Equal(t, "claude-sonnet-4", f.NormalizeModel("anthropic/claude-sonnet-4"))
	assert.Equal(t, "claude-sonnet-4", f.GetDefaultModel(ProviderClaude))
}

func testGenerator(client interfaces.LLMClient, sleeps *[]time.Duration) *Generator {
	cfg := common.NewDefaultConfig()
	return NewGenerator(client, noSleepPolicy(sleeps), cfg, arbor.NewLogger())
}

func TestGenerator_GenerateRetriesAndExtracts(t *testing.T) {
	client := &scriptedClient{responses: []interface{}{
		errors.New("Error 503, Message: overloaded"),
		"<code>package bank\n\ntype Account struct{}</code>",
	}}
	var sleeps []time.Duration
	g := testGenerator(client, &sleeps)

	unit := &models.SourceUnit{ID: "bank.Account", Path: "Account.java", Code: "class Account {}", PublicMethods: []string{"deposit"}}
	rctx := &models.RetrievalContext{
		Snippets: []string{"class Ledger {}"}, SourcePaths: []string{"Ledger.java"}, SimilarityScores: []float64{0.5},
		Mode: models.RetrievalModeIndexed,
	}
	guidance := &models.Guidance{Strategy: "struct", RecommendedPatterns: []string{"error-returns"}}

	res, err := g.Generate(context.Background(), unit, rctx, guidance, "gemini-2.5-pro", "go")
	require.NoError(t, err)
	assert.Equal(t, "package bank\n\ntype Account struct{}", res.Code)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "gemini-2.5-pro", res.Model)

	require.Len(t, client.requests, 2)
	prompt := client.requests[0].Prompt
	assert.Contains(t, prompt, "Strategy: struct")
	assert.Contains(t, prompt, "Patterns: error-returns")
	assert.Contains(t, prompt, "Ledger.java")
	assert.Contains(t, prompt, "Methods: deposit")
	assert.Contains(t, client.requests[0].System, "<code>")
}

func TestGenerator_ReviseIncludesPreviousAttemptAndFindings(t *testing.T) {
	client := &scriptedClient{responses: []interface{}{"<code>package bank\n\nimport \"errors\"\n\nvar ErrX = errors.New(\"x\")</code>"}}
	var sleeps []time.Duration
	g := testGenerator(client, &sleeps)

	unit := &models.SourceUnit{ID: "bank.Account", Path: "Account.java", Code: "class Account {}"}
	findings := []string{"compiler errors:\n./generated.go:3:9: undefined: errors", "recommended patterns not followed: error-returns"}

	res, err := g.Revise(context.Background(), unit, models.NewSimulatedContext(), nil, "package bank\n\nvar ErrX = errors.New(\"x\")", findings, "", "go")
	require.NoError(t, err)
	assert.Contains(t, res.Code, `import "errors"`)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, common.NewDefaultConfig().Generation.DefaultModel, res.Model)

	require.Len(t, client.requests, 1)
	prompt := client.requests[0].Prompt
	assert.Contains(t, prompt, "SOURCE [Java] Account.java")
	assert.Contains(t, prompt, "PREVIOUS ATTEMPT:\n```go\npackage bank")
	assert.Contains(t, prompt, "- compiler errors:\n./generated.go:3:9: undefined: errors")
	assert.Contains(t, prompt, "- recommended patterns not followed: error-returns")
}

func TestGenerator_GenerateTest(t *testing.T) {
	client := &scriptedClient{responses: []interface{}{"Sure:\n```go\npackage bank\n\nfunc TestX(t *testing.T) {}\n```"}}
	var sleeps []time.Duration
	g := testGenerator(client, &sleeps)

	code, err := g.GenerateTest(context.Background(), "package bank", "Account.java", "")
	require.NoError(t, err)
	assert.Contains(t, code, "func TestX")
}
