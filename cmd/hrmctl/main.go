package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/app"
	"github.com/neto007/HRM-pipeline/internal/common"
)

var (
	configFiles []string

	config      *common.Config
	logger      arbor.ILogger
	application *app.App
)

// skipApp marks commands that run without opening storage
const skipApp = "skip-app"

var rootCmd = &cobra.Command{
	Use:           "hrmctl",
	Short:         "Operate the migration pipeline from the command line",
	Long:          `hrmctl plans migrations, curates the generated dataset and manages retrieval repositories against the local pipeline database. Stop the server first: the database allows one process at a time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipApp] == "true" {
			return nil
		}

		var err error
		config, err = common.LoadFromFiles(configFiles...)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		config.Scheduler.Enabled = false

		logger = common.InitLogger(config)
		application, err = app.New(config, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		err := application.Close()
		application = nil
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(repoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if application != nil {
			application.Close()
		}
		os.Exit(1)
	}
}
