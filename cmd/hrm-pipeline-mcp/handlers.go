package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/models"
)

type planGetter interface {
	GetPlan(ctx context.Context, repository string) (*models.MigrationPlan, error)
}

type datasetReader interface {
	List(ctx context.Context, status models.EntryStatus) ([]models.DatasetSummary, error)
	Get(ctx context.Context, filename string) (*models.DatasetEntry, error)
	Stats(ctx context.Context) (*models.DatasetStats, error)
}

type checkpointLister interface {
	List(ctx context.Context) ([]models.Checkpoint, error)
}

type transcriber interface {
	Transcribe(ctx context.Context, code string, req models.GenerationRequest) (*models.TranscribeResult, error)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	result := textResult(fmt.Sprintf(format, args...))
	result.IsError = true
	return result
}

func handleGetPlan(plans planGetter, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		plan, err := plans.GetPlan(ctx, request.GetString("repository", ""))
		if err != nil {
			logger.Warn().Err(err).Msg("get_plan failed")
			return errorResult("Plan error: %v", err), nil
		}
		return textResult(formatPlan(plan)), nil
	}
}

func handleGetDataset(dataset datasetReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := models.EntryStatus(request.GetString("status", ""))
		switch status {
		case "", models.EntryStatusDraft, models.EntryStatusReviewing, models.EntryStatusApproved:
		default:
			return errorResult("Error: unknown status %q", status), nil
		}

		entries, err := dataset.List(ctx, status)
		if err != nil {
			logger.Warn().Err(err).Msg("get_dataset failed")
			return errorResult("Dataset error: %v", err), nil
		}

		limit := request.GetInt("limit", 50)
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		return textResult(formatDataset(entries)), nil
	}
}

func handleGetEntry(dataset datasetReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename, err := request.RequireString("filename")
		if err != nil || filename == "" {
			return errorResult("Error: filename parameter is required"), nil
		}

		entry, err := dataset.Get(ctx, filename)
		if err != nil {
			logger.Warn().Err(err).Str("filename", filename).Msg("get_entry failed")
			return errorResult("Entry error: %v", err), nil
		}
		return textResult(formatEntry(entry)), nil
	}
}

func handleDatasetStats(dataset datasetReader, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := dataset.Stats(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("dataset_stats failed")
			return errorResult("Dataset error: %v", err), nil
		}
		return textResult(fmt.Sprintf("Drafts: %d\nReviewing: %d\nGolden: %d\nAverage reward: %.2f\n",
			stats.Drafts, stats.Reviewing, stats.Golden, stats.AverageReward)), nil
	}
}

func handleListCheckpoints(checkpoints checkpointLister, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := checkpoints.List(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("list_checkpoints failed")
			return errorResult("Checkpoint error: %v", err), nil
		}
		return textResult(formatCheckpoints(list)), nil
	}
}

func handleTranscribeSingle(generation transcriber, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil || code == "" {
			return errorResult("Error: code parameter is required"), nil
		}

		result, err := generation.Transcribe(ctx, code, models.GenerationRequest{
			TargetLang: request.GetString("target_lang", ""),
			Model:      request.GetString("model", ""),
			Checkpoint: request.GetString("checkpoint", ""),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("transcribe_single failed")
			return errorResult("Transcription error: %v", err), nil
		}
		return textResult(formatTranscription(result)), nil
	}
}
