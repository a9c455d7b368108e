package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/matcher"
	"github.com/sells-group/accountsync/internal/model"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Re-link meeting recaps to calendar events",
	Long:  "Clears all recap/event cross-references and recomputes them from scratch against the current tables.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("match"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, err := st.StartRun(ctx, "match")
		if err != nil {
			return eris.Wrap(err, "start run")
		}

		recaps, err := st.ListRecaps(ctx)
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "list recaps")
		}
		events, err := st.ListEvents(ctx)
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "list events")
		}

		linked, err := matcher.Run(ctx, st, recaps, events)
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "run matcher")
		}

		counters := model.RunCounters{Built: linked, Skipped: len(recaps) - linked}
		if err := st.CompleteRun(ctx, runID, counters); err != nil {
			return eris.Wrap(err, "complete run")
		}

		zap.L().Info("match complete",
			zap.String("run_id", runID),
			zap.Int("linked", linked),
			zap.Int("recaps", len(recaps)),
			zap.Int("events", len(events)),
		)
		fmt.Fprintf(os.Stdout, "Linked %d of %d recaps\n", linked, len(recaps))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}
