package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	planRepository string
	planRefresh    bool
	planJSON       bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the dependency-ordered migration plan",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planRepository, "repo", "", "Repository name (default: active repository)")
	planCmd.Flags().BoolVar(&planRefresh, "refresh", false, "Re-analyze instead of using the cached plan")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	plans := application.PlanService

	get := plans.GetPlan
	if planRefresh {
		get = plans.Refresh
	}
	plan, err := get(ctx, planRepository)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if planJSON {
		return writeJSON(out, plan)
	}

	fmt.Fprintf(out, "Repository: %s\nClasses: %d  Dependencies: %d  Cyclic: %t\n\n", plan.Repository, plan.Nodes, plan.Edges, plan.Cyclic)
	fmt.Fprintln(out, "Recommended batch:")
	for i, class := range plan.RecommendedBatch {
		fmt.Fprintf(out, "  %d. %s\n", i+1, class)
	}
	for _, component := range plan.CyclicComponents {
		fmt.Fprintf(out, "Cycle: %s\n", strings.Join(component, " <-> "))
	}
	return nil
}
