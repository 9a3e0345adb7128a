package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/aggregate"
	"github.com/breitband-atlas/coverage-cli/internal/export"
)

var (
	exportRunID string
	exportDir   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the classified records of a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.store.ListRecords(ctx, exportRunID)
		if err != nil {
			return eris.Wrap(err, "list records")
		}
		if len(records) == 0 {
			return eris.Errorf("run %s has no classified records", exportRunID)
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}

		providerA, providerB := providerLabels(env)
		files, err := export.All(dir, records, aggregate.Summarize(records), providerA, providerB)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		zap.L().Info("export complete",
			zap.String("run_id", exportRunID),
			zap.String("shapefile", files.Shapefile),
			zap.String("geojson", files.GeoJSON),
			zap.String("summary", files.Summary),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run id (required)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	_ = exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}
