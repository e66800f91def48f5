package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func createGetPlanTool() mcp.Tool {
	return mcp.NewTool("get_plan",
		mcp.WithDescription("Return the dependency-ordered migration plan and the recommended next batch"),
		mcp.WithString("repository",
			mcp.Description("Repository name (default: the active repository)"),
		),
	)
}

func createGetDatasetTool() mcp.Tool {
	return mcp.NewTool("get_dataset",
		mcp.WithDescription("List generated dataset entries, newest first"),
		mcp.WithString("status",
			mcp.Description("Filter: draft, reviewing, approved"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default: 50)"),
		),
	)
}

func createGetEntryTool() mcp.Tool {
	return mcp.NewTool("get_entry",
		mcp.WithDescription("Retrieve one dataset entry with its guidance, reward and retrieval context"),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("Entry filename, e.g. ShoppingCart_1718000000.json"),
		),
	)
}

func createDatasetStatsTool() mcp.Tool {
	return mcp.NewTool("dataset_stats",
		mcp.WithDescription("Count drafts, entries under review and golden entries"),
	)
}

func createListCheckpointsTool() mcp.Tool {
	return mcp.NewTool("list_checkpoints",
		mcp.WithDescription("List guidance model checkpoints with their validity"),
	)
}

func createTranscribeSingleTool() mcp.Tool {
	return mcp.NewTool("transcribe_single",
		mcp.WithDescription("Translate one source file through retrieval, guidance, generation and scoring without saving it"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Source code to translate"),
		),
		mcp.WithString("target_lang",
			mcp.Description("Target language (default from config)"),
		),
		mcp.WithString("model",
			mcp.Description("Generation model (default from config)"),
		),
		mcp.WithString("checkpoint",
			mcp.Description("Guidance checkpoint name (default: the registry default)"),
		),
	)
}
