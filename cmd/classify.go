package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/aggregate"
	"github.com/breitband-atlas/coverage-cli/internal/boundary"
)

var classifyRunID string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify the cleaned coverage of a run per administrative cell",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cells, err := boundary.Load(ctx, cfg.Boundary)
		if err != nil {
			return eris.Wrap(err, "load cells")
		}

		coverage, err := env.store.LoadCoverage(ctx, classifyRunID)
		if err != nil {
			return eris.Wrap(err, "load coverage")
		}
		if len(coverage) == 0 {
			return eris.Errorf("run %s has no cleaned coverage, run clean first", classifyRunID)
		}

		records, failed, err := env.pipeline.Classify(ctx, classifyRunID, cells, coverage)
		if err != nil {
			return eris.Wrap(err, "classify")
		}

		summary := aggregate.Summarize(records)
		if err := env.store.FinishRun(ctx, classifyRunID, summary); err != nil {
			return eris.Wrap(err, "finish run")
		}

		zap.L().Info("classification complete",
			zap.String("run_id", classifyRunID),
			zap.Int("records", len(records)),
			zap.Int("failed_cells", failed),
		)

		providerA, providerB := providerLabels(env)
		fmt.Println(aggregate.FormatSummary(summary, providerA, providerB, failed))
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyRunID, "run", "", "run id (required)")
	_ = classifyCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(classifyCmd)
}
