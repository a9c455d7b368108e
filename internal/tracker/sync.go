package tracker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/resilience"
	"github.com/sells-group/accountsync/internal/store"
)

// Syncer pushes unsynced action items to the configured tracker backend.
type Syncer struct {
	store   store.Store
	tracker Tracker
	retry   resilience.RetryConfig
}

// NewSyncer builds a Syncer with default retry behavior.
func NewSyncer(st store.Store, tr Tracker) *Syncer {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("tracker", "create issue")
	return &Syncer{store: st, tracker: tr, retry: cfg}
}

// Sync creates one issue per pending action item. An item with a stored
// external id is never listed, so reruns cannot recreate issues. A failing
// item is counted and skipped; the batch continues. The returned error only
// covers failures to read or mark items, not per-item tracker failures.
func (s *Syncer) Sync(ctx context.Context) (model.RunCounters, error) {
	var counters model.RunCounters

	pending, err := s.store.ListUnsyncedActionItems(ctx)
	if err != nil {
		return counters, eris.Wrap(err, "tracker: list pending items")
	}
	if len(pending) == 0 {
		zap.L().Info("tracker: nothing to sync")
		return counters, nil
	}

	for _, p := range pending {
		issue := BuildIssue(p)

		externalID, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (string, error) {
			return s.tracker.CreateIssue(ctx, issue)
		})
		if err != nil {
			counters.Errors++
			zap.L().Warn("tracker: create issue failed",
				zap.String("recap_id", p.Item.RecapID),
				zap.Int("index", p.Item.Index),
				zap.Error(err),
			)
			continue
		}

		if err := s.store.MarkActionItemSynced(ctx, p.Item.RecapID, p.Item.Index, externalID); err != nil {
			// the issue exists but the id is not recorded; a rerun would
			// duplicate it, so this one is a hard error
			return counters, eris.Wrapf(err, "tracker: record external id %s", externalID)
		}

		counters.Built++
		zap.L().Info("tracker: issue created",
			zap.String("recap_id", p.Item.RecapID),
			zap.Int("index", p.Item.Index),
			zap.String("external_id", externalID),
		)
	}

	return counters, nil
}
