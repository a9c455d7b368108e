package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/reconcile"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the consolidated account views",
	Long:  "Joins accounts against the active renewal set, aggregates activity, scores engagement, and replaces the derived views in one transaction.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rebuild"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, err := st.StartRun(ctx, "rebuild")
		if err != nil {
			return eris.Wrap(err, "start run")
		}

		snap, err := st.LoadSnapshot(ctx)
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "load snapshot")
		}

		views, exclusions, err := reconcile.BuildAccountViews(ctx, snap, reconcile.Options{
			MaxEmailsPerAccount: cfg.Rebuild.MaxEmailsPerAccount,
			MaxPastEvents:       cfg.Rebuild.MaxPastEvents,
			MaxFutureEvents:     cfg.Rebuild.MaxFutureEvents,
			Workers:             cfg.Rebuild.Workers,
		})
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "build views")
		}

		if err := st.ReplaceAccountViews(ctx, views, exclusions); err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "replace views")
		}

		counters := model.RunCounters{Built: len(views), Excluded: len(exclusions)}
		if err := st.CompleteRun(ctx, runID, counters); err != nil {
			return eris.Wrap(err, "complete run")
		}

		zap.L().Info("rebuild complete",
			zap.String("run_id", runID),
			zap.Int("views", len(views)),
			zap.Int("exclusions", len(exclusions)),
		)
		fmt.Fprintf(os.Stdout, "Built %d account views (%d excluded)\n", len(views), len(exclusions))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
