package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("HRM Pipeline", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("badger_path", config.Storage.Badger.Path).
		Str("checkpoint_dir", config.Guidance.CheckpointDir).
		Str("llm_provider", string(config.LLM.DefaultProvider)).
		Int("generation_concurrency", config.Generation.Concurrency).
		Msg("Configuration loaded")
}
