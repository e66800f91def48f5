package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/app"
	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("hrm-pipeline %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup order: config (defaults -> files -> env), flag overrides, logger, banner
	if len(configFiles) == 0 {
		configFiles = discoverConfig()
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Str("badger_path", config.Storage.Badger.Path).
		Str("data_dir", config.Storage.DataDir).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("guidance_runtime", config.Guidance.Runtime).
		Msg("Resolved configuration")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	srv := server.New(application)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}

// discoverConfig looks for a config file in the working directory first,
// then in deployments/local for runs from the project root.
func discoverConfig() []string {
	for _, candidate := range []string{"hrm-pipeline.toml", "deployments/local/hrm-pipeline.toml"} {
		if _, err := os.Stat(candidate); err == nil {
			return []string{candidate}
		}
	}
	return nil
}
