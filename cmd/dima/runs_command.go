package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dima/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				finished := "-"
				if run.FinishedAt != nil {
					finished = formatTimestamp(*run.FinishedAt)
				}
				rows = append(rows, []string{
					run.ID,
					run.State,
					formatTimestamp(run.StartedAt),
					finished,
					truncateText(run.ErrorMessage, 48),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "State", "Started", "Finished", "Message"},
				rows,
				nil,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the stage results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runID := args[0]
			run, err := store.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			results, err := store.StageResults(cmd.Context(), runID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.State)
			fmt.Fprintf(out, "Pipeline: %s\n", run.Pipeline)
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "Message: %s\n", run.ErrorMessage)
			}

			rows := make([][]string, 0, len(results))
			for _, result := range results {
				detail := result.Detail
				if result.ErrorMessage != "" {
					detail = result.ErrorMessage
				}
				rows = append(rows, []string{
					stageLabel(result.Stage),
					result.Status,
					formatDuration(result.Duration()),
					truncateText(detail, 72),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Status", "Duration", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
