package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract coverage features from map tiles into a new run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.store.CreateRun(ctx)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		stats, err := env.pipeline.Extract(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", run.ID),
			zap.Int("tiles", stats.Tiles),
			zap.Int("features", stats.Features),
			zap.Int("tile_failures", len(stats.Failures)),
		)
		for key, n := range stats.ByCategory {
			zap.L().Info("category extracted", zap.String("category", key), zap.Int("features", n))
		}

		fmt.Println(run.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
