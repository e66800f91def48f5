package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neto007/HRM-pipeline/internal/common"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipApp: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hrmctl %s\n", common.GetFullVersion())
	},
}
