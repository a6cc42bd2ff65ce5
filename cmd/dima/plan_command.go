package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dima/internal/orchestrator"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var pipelineFlag string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the execution plan for a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			def, err := loadPipelineDefinition(pipelineFlag)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, logger, def)
			if err != nil {
				return err
			}

			orch := orchestrator.New(orchestrator.Options{Config: cfg, Logger: logger, Resolver: reg})
			plan, err := orch.Plan(def)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(plan))
			for _, entry := range plan {
				timeout := "-"
				if entry.Timeout > 0 {
					timeout = entry.Timeout.String()
				}
				rows = append(rows, []string{
					stageLabel(entry.Name),
					yesNo(entry.Enabled),
					yesNo(entry.ContinueOnError),
					timeout,
					fmt.Sprintf("%d", len(entry.Params)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Stage", "Enabled", "Continue On Error", "Timeout", "Params"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineFlag, "pipeline", "p", "", "Pipeline definition file (TOML or YAML)")
	return cmd
}
