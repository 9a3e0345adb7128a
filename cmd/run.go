package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/aggregate"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full coverage pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", result.RunID),
			zap.Int("records", result.Records),
			zap.Int("failed_cells", result.FailedCells),
		)

		providerA, providerB := providerLabels(env)
		fmt.Println(aggregate.FormatSummary(result.Summary, providerA, providerB, result.FailedCells))
		return nil
	},
}

func providerLabels(e *env) (string, string) {
	keys := e.rules.ProviderKeys()
	a := keys[0]
	b := ""
	if len(keys) > 1 {
		b = keys[1]
	}
	return a, b
}

func init() {
	rootCmd.AddCommand(runCmd)
}
