package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/repositories"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage retrieval repositories",
}

var repoAddReq repositories.AddRequest

var repoAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoAddReq.Name, repoAddReq.URL = args[0], args[1]
		repo, err := application.RepositoryService.Add(cmd.Context(), repoAddReq)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s), active=%t\n", repo.Name, repo.LocalPath, repo.Active)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := application.RepositoryService.List(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tACTIVE\tINDEXED\tFILES\tCLASSES\tPATH")
		for _, r := range repos {
			fmt.Fprintf(tw, "%s\t%t\t%t\t%d\t%d\t%s\n", r.Name, r.Active, r.Indexed, r.Stats.Files, r.Stats.Classes, r.LocalPath)
		}
		return tw.Flush()
	},
}

var repoIndexCmd = &cobra.Command{
	Use:   "index <name>",
	Short: "Index a repository and wait for the job to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := application.RepositoryService.Index(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		job, err = application.JobManager.Wait(cmd.Context(), job.ID)
		if err != nil {
			return err
		}
		if job.State != models.JobStateCompleted {
			return fmt.Errorf("indexing job %s ended %s: %s", job.ID, job.State, job.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %s (job %s)\n", args[0], job.ID)
		return nil
	},
}

var repoActivateCmd = &cobra.Command{
	Use:   "activate <name>",
	Short: "Make a repository the active retrieval source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := application.RepositoryService.Activate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", args[0])
		return nil
	},
}

var repoDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a repository and its index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.RepositoryService.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	repoAddCmd.Flags().StringVar(&repoAddReq.LocalPath, "path", "", "Existing local checkout")
	repoCmd.AddCommand(repoAddCmd, repoListCmd, repoIndexCmd, repoActivateCmd, repoDeleteCmd)
}
