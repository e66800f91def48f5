package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/neto007/HRM-pipeline/internal/app"
	"github.com/neto007/HRM-pipeline/internal/common"
)

func main() {
	configPath := os.Getenv("HRM_CONFIG")
	if configPath == "" {
		configPath = "hrm-pipeline.toml"
	}

	var paths []string
	if _, err := os.Stat(configPath); err == nil {
		paths = append(paths, configPath)
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// The stdio transport is the only client; nothing else may own the scheduler.
	config.Scheduler.Enabled = false

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:       arbor_models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
	}).WithLevelFromString("warn")

	application, err := app.New(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"hrm-pipeline",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Planning and curation tools
	mcpServer.AddTool(createGetPlanTool(), handleGetPlan(application.PlanService, logger))
	mcpServer.AddTool(createGetDatasetTool(), handleGetDataset(application.DatasetService, logger))
	mcpServer.AddTool(createGetEntryTool(), handleGetEntry(application.DatasetService, logger))
	mcpServer.AddTool(createDatasetStatsTool(), handleDatasetStats(application.DatasetService, logger))

	// Guidance and generation tools
	mcpServer.AddTool(createListCheckpointsTool(), handleListCheckpoints(application.Checkpoints, logger))
	mcpServer.AddTool(createTranscribeSingleTool(), handleTranscribeSingle(application.GenerationService, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error().Err(err).Msg("MCP server failed")
	}
}
