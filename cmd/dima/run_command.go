package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"dima/internal/config"
	"dima/internal/orchestrator"
	"dima/internal/pipeline"
	"dima/internal/runstore"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		pipelineFlag string
		setFlags     []string
		dryRun       bool
		resumeFrom   string
		noHistory    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline",
		Long: `Execute a pipeline definition stage by stage.

Without --pipeline the canonical stage order runs: data_setup, model_setup,
statistics, decoder_training, diffusion_training, inference, and
metrics_evaluation. Stages that find their artifacts already in place skip
themselves, so rerunning a finished pipeline is cheap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(setFlags) > 0 {
				if err := config.ApplyOverrides(cfg, setFlags); err != nil {
					return err
				}
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

			runCtx := pipeline.NewContext()
			if strings.TrimSpace(resumeFrom) != "" {
				if err := runCtx.LoadFile(resumeFrom); err != nil {
					return fmt.Errorf("resume from checkpoint: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed context from %s (%s)\n",
					resumeFrom, countLabel(runCtx.Len(), "key"))
			}

			out := cmd.OutOrStdout()
			if dryRun {
				orch := orchestrator.New(orchestrator.Options{Config: cfg, Logger: logger, Resolver: reg})
				issues, err := orch.DryRun(cmd.Context(), def, runCtx)
				if err != nil {
					return err
				}
				if len(issues) == 0 {
					fmt.Fprintln(out, "Pipeline is ready: every enabled stage validates")
					return nil
				}
				rows := make([][]string, 0, len(issues))
				for _, issue := range issues {
					rows = append(rows, []string{stageLabel(issue.Stage), issue.Problem})
				}
				fmt.Fprintln(out, renderTable([]string{"Stage", "Problem"}, rows, nil))
				return &exitCodeError{
					code:    orchestrator.ExitAborted,
					message: fmt.Sprintf("dry run found %s", countLabel(len(issues), "unmet precondition")),
				}
			}

			lock := flock.New(filepath.Join(cfg.Paths.WorkspaceDir, "dima.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire run lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another run is already in progress in %s", cfg.Paths.WorkspaceDir)
			}
			defer lock.Unlock() //nolint:errcheck

			var store *runstore.Store
			if !noHistory {
				store, err = runstore.Open(cfg)
				if err != nil {
					return fmt.Errorf("open run store: %w", err)
				}
				defer store.Close()
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch := orchestrator.New(orchestrator.Options{
				Config:   cfg,
				Logger:   logger,
				Resolver: reg,
				Store:    store,
			})
			report, err := orch.Run(signalCtx, def, runCtx)
			if err != nil {
				return err
			}

			printReport(cmd, report)
			if code := report.ExitCode(); code != orchestrator.ExitOK {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineFlag, "pipeline", "p", "", "Pipeline definition file (TOML or YAML)")
	cmd.Flags().StringArrayVarP(&setFlags, "set", "s", nil, "Override a config value (key=value, repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate stage preconditions without executing")
	cmd.Flags().StringVar(&resumeFrom, "resume-from", "", "Seed the run context from a checkpoint file")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Skip recording the run in the history database")
	return cmd
}

func printReport(cmd *cobra.Command, report *orchestrator.Report) {
	out := cmd.OutOrStdout()

	rows := make([][]string, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		detail := outcome.Detail
		if outcome.Err != nil {
			detail = outcome.Err.Error()
		}
		rows = append(rows, []string{
			stageLabel(outcome.Stage),
			string(outcome.Status),
			formatDuration(outcome.Duration),
			truncateText(detail, 72),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Status", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	fmt.Fprintf(out, "Run %s %s in %s\n", report.RunID, report.State, formatDuration(report.Duration))
	if failed := report.FailedStages(); len(failed) > 0 {
		fmt.Fprintf(out, "Failed stages: %s\n", strings.Join(failed, ", "))
	}
}
