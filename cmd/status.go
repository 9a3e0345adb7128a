package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/breitband-atlas/coverage-cli/internal/aggregate"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the status, steps and summary of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.store.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get run")
		}
		steps, err := env.store.ListSteps(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "list steps")
		}

		fmt.Printf("run %s: %s (created %s)\n\n",
			run.ID, run.Status, run.CreatedAt.Format("2006-01-02 15:04:05"))

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tSTATUS\tSTARTED\tDETAIL")
		for _, s := range steps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.Name, s.Status, s.StartedAt.Format("15:04:05"), s.Detail)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if len(run.Summary) > 0 {
			providerA, providerB := providerLabels(env)
			fmt.Println()
			fmt.Println(aggregate.FormatSummary(run.Summary, providerA, providerB, 0))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
