package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dima/internal/config"
	"dima/internal/registry"
)

func newComponentsCommand(ctx *commandContext) *cobra.Command {
	var pipelineFlag string

	cmd := &cobra.Command{
		Use:   "components",
		Short: "List registered encoders, decoders, metrics, and stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			// Loading a definition here pulls its plugins in, so plugin
			// contributions show up alongside the built-ins.
			var def *config.Pipeline
			if strings.TrimSpace(pipelineFlag) != "" {
				def, err = loadPipelineDefinition(pipelineFlag)
				if err != nil {
					return err
				}
			}
			reg, err := buildRegistry(cfg, logger, def)
			if err != nil {
				return err
			}

			snapshot := reg.Snapshot()
			rows := make([][]string, 0, 16)
			for _, kind := range registry.Kinds() {
				names := snapshot[kind]
				if len(names) == 0 {
					continue
				}
				rows = append(rows, []string{
					titleCaser.String(string(kind)),
					strings.Join(names, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Kind", "Names"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineFlag, "pipeline", "p", "", "Pipeline definition whose plugins should be included")
	return cmd
}
