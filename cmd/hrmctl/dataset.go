package main

import (
	"bufio"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neto007/HRM-pipeline/internal/models"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Curate generated translations",
}

var (
	datasetStatus string
	exportPath    string
	approveFile   string
)

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := application.DatasetService.List(cmd.Context(), models.EntryStatus(datasetStatus))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILENAME\tSOURCE\tSTATUS\tREWARD\tMODEL")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", e.Filename, e.SourceFile, e.Status, e.Reward, e.ModelUsed)
		}
		return tw.Flush()
	},
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := application.DatasetService.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Print one entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := application.DatasetService.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), entry)
	},
}

var datasetApproveCmd = &cobra.Command{
	Use:   "approve <filename>",
	Short: "Promote an entry to the golden dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var edited string
		if approveFile != "" {
			data, err := os.ReadFile(approveFile)
			if err != nil {
				return fmt.Errorf("failed to read edited code: %w", err)
			}
			edited = string(data)
		}

		entry, err := application.DatasetService.Approve(cmd.Context(), args[0], edited)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", entry.Filename)
		return nil
	},
}

var datasetRejectCmd = &cobra.Command{
	Use:   "reject <filename>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.DatasetService.Reject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rejected %s\n", args[0])
		return nil
	},
}

var datasetExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the golden dataset as JSON Lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := exportPath
		if path == "" {
			path = config.Dataset.ExportPath
		}
		if path == "" {
			return fmt.Errorf("no export path: pass --out or set dataset.export_path")
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()

		w := bufio.NewWriter(f)
		n, err := application.DatasetService.Export(cmd.Context(), w)
		if err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", n, path)
		return nil
	},
}

func init() {
	datasetListCmd.Flags().StringVar(&datasetStatus, "status", "", "Filter: draft, reviewing, approved")
	datasetExportCmd.Flags().StringVarP(&exportPath, "out", "o", "", "Output file (default: dataset.export_path)")
	datasetApproveCmd.Flags().StringVar(&approveFile, "edited", "", "File holding the reviewed code")

	datasetCmd.AddCommand(datasetListCmd, datasetStatsCmd, datasetShowCmd, datasetApproveCmd, datasetRejectCmd, datasetExportCmd)
}
