package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/breitband-atlas/coverage-cli/internal/store"
)

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.store.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTATUS\tCREATED\tAREA (km²)")
		for _, r := range runs {
			var total float64
			for _, row := range r.Summary {
				total += row.AreaKM2
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n",
				r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04"), total)
		}
		return w.Flush()
	},
}

var stepsCmd = &cobra.Command{
	Use:   "steps <run-id>",
	Short: "Show the steps of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		steps, err := env.store.ListSteps(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list steps")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tSTATUS\tSTARTED\tDETAIL")
		for _, s := range steps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.Name, s.Status, s.StartedAt.Format("15:04:05"), s.Detail)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(stepsCmd)
}
