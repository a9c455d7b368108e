package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/feed"
	"github.com/sells-group/accountsync/internal/tracker"
	"github.com/sells-group/accountsync/pkg/github"
	"github.com/sells-group/accountsync/pkg/notion"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync with external systems",
	Long:  "Commands for pulling the CRM registry feeds and pushing action items to the issue tracker.",
}

// -- sync feeds --

var syncFeedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Pull account and opportunity registry feeds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("feeds"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sf, err := initSalesforce()
		if err != nil {
			return err
		}

		runID, err := st.StartRun(ctx, "feeds")
		if err != nil {
			return eris.Wrap(err, "start run")
		}

		counters, err := feed.SyncSalesforce(ctx, sf, st)
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "sync feeds")
		}

		if err := st.CompleteRun(ctx, runID, counters); err != nil {
			return eris.Wrap(err, "complete run")
		}

		fmt.Fprintf(os.Stdout, "Upserted %d registry rows\n", counters.Built)
		return nil
	},
}

// -- sync tasks --

var syncTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Push unsynced action items to the issue tracker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("tasks"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tr, err := initTracker()
		if err != nil {
			return err
		}

		runID, err := st.StartRun(ctx, "tasks")
		if err != nil {
			return eris.Wrap(err, "start run")
		}

		counters, err := tracker.NewSyncer(st, tr).Sync(ctx)
		if err != nil {
			_ = st.FailRun(ctx, runID, err.Error())
			return eris.Wrap(err, "sync tasks")
		}

		if err := st.CompleteRun(ctx, runID, counters); err != nil {
			return eris.Wrap(err, "complete run")
		}

		zap.L().Info("task sync complete",
			zap.String("run_id", runID),
			zap.Int("created", counters.Built),
			zap.Int("failed", counters.Errors),
		)
		fmt.Fprintf(os.Stdout, "Created %d issues (%d failed)\n", counters.Built, counters.Errors)
		return nil
	},
}

// initTracker builds the configured issue-tracker backend.
func initTracker() (tracker.Tracker, error) {
	switch cfg.Tracker.Backend {
	case "github":
		client := github.NewClient(cfg.GitHub.Token,
			github.WithBaseURL(cfg.GitHub.BaseURL),
			github.WithRateLimit(cfg.Tracker.RPS),
		)
		return tracker.NewGitHubTracker(client, cfg.GitHub.Owner, cfg.GitHub.Repo), nil
	case "notion":
		client := notion.NewClient(cfg.Notion.Token,
			notion.WithRateLimit(cfg.Tracker.RPS),
		)
		return tracker.NewNotionTracker(client, cfg.Notion.TaskDB), nil
	default:
		return nil, eris.Errorf("unsupported tracker backend: %s", cfg.Tracker.Backend)
	}
}

func init() {
	syncCmd.AddCommand(syncFeedsCmd)
	syncCmd.AddCommand(syncTasksCmd)
	rootCmd.AddCommand(syncCmd)
}
