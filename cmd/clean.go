package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/boundary"
)

var cleanRunID string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Close gaps in the extracted coverage of a run",
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
		ref, err := boundary.Dissolve(cells)
		if err != nil {
			return eris.Wrap(err, "dissolve boundary")
		}

		coverage, err := env.pipeline.Clean(ctx, cleanRunID, ref)
		if err != nil {
			return eris.Wrap(err, "clean")
		}

		for key, polys := range coverage {
			zap.L().Info("category cleaned", zap.String("category", key), zap.Int("polygons", len(polys)))
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanRunID, "run", "", "run id (required)")
	_ = cleanCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(cleanCmd)
}
