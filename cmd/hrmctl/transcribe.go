package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/neto007/HRM-pipeline/internal/models"
)

var transcribeReq models.GenerationRequest

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [file|-]",
	Short: "Translate one source file without saving it to the dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			code []byte
			err  error
		)
		if args[0] == "-" {
			code, err = io.ReadAll(cmd.InOrStdin())
		} else {
			code, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}

		result, err := application.GenerationService.Transcribe(cmd.Context(), string(code), transcribeReq)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, result.Output)
		if result.Reward != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "reward %.2f/%.2f after %d attempt(s)\n", result.Reward.Total, result.Reward.MaxTotal, result.Attempts)
		}
		return nil
	},
}

func init() {
	transcribeCmd.Flags().StringVar(&transcribeReq.TargetLang, "target", "", "Target language")
	transcribeCmd.Flags().StringVar(&transcribeReq.Model, "model", "", "Generation model")
	transcribeCmd.Flags().StringVar(&transcribeReq.Checkpoint, "checkpoint", "", "Guidance checkpoint")
	transcribeCmd.Flags().IntVar(&transcribeReq.TopK, "top-k", 0, "Retrieved snippets (0 = config default)")
}
