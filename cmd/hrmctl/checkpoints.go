package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List guidance checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := application.Checkpoints.List(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tEPOCH\tVALID\tDEFAULT\tREASON")
		for _, cp := range list {
			fmt.Fprintf(tw, "%s\t%d\t%t\t%t\t%s\n", cp.Name, cp.Epoch, cp.Valid, cp.IsDefault, cp.Reason)
		}
		return tw.Flush()
	},
}
