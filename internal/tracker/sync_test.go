package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/resilience"
	"github.com/sells-group/accountsync/internal/store"
)

// fakeTracker records created issues and can fail specific titles.
type fakeTracker struct {
	created   []Issue
	failTitle string
	nextID    int
}

func (f *fakeTracker) CreateIssue(ctx context.Context, issue Issue) (string, error) {
	if issue.Title == f.failTitle {
		return "", resilience.NewTransientError(assert.AnError, 502)
	}
	f.nextID++
	f.created = append(f.created, issue)
	return fmt.Sprintf("o/r#%d", f.nextID), nil
}

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertAccounts(ctx, []model.Account{{ID: "001A", Name: "Acme Corp"}})
	require.NoError(t, err)

	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	_, err = st.InsertRecap(ctx, model.MeetingRecap{
		RecapID: "rec-1", Title: "Quarterly Review", Start: start,
		AccountID: "001A", Summary: "Discussed renewal.", ReceivedAt: start,
	}, []model.ActionItem{
		{RecapID: "rec-1", Index: 0, Title: "Send proposal", Description: "Include new SKUs", Priority: "high"},
		{RecapID: "rec-1", Index: 1, Title: "Book follow-up"},
	})
	require.NoError(t, err)
	return st
}

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return cfg
}

func TestSyncCreatesAndMarks(t *testing.T) {
	st := seedStore(t)
	tr := &fakeTracker{}
	s := &Syncer{store: st, tracker: tr, retry: fastRetry()}

	counters, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counters.Built)
	assert.Equal(t, 0, counters.Errors)
	require.Len(t, tr.created, 2)

	pending, err := st.ListUnsyncedActionItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncIdempotent(t *testing.T) {
	st := seedStore(t)
	tr := &fakeTracker{}
	s := &Syncer{store: st, tracker: tr, retry: fastRetry()}

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	counters, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counters.Built)
	// a rerun must not recreate anything
	assert.Len(t, tr.created, 2)
}

func TestSyncItemFailureContinuesBatch(t *testing.T) {
	st := seedStore(t)
	tr := &fakeTracker{failTitle: "Send proposal"}
	s := &Syncer{store: st, tracker: tr, retry: fastRetry()}

	counters, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Built)
	assert.Equal(t, 1, counters.Errors)

	// the failed item stays pending for the next run
	pending, err := st.ListUnsyncedActionItems(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Send proposal", pending[0].Item.Title)
}

func TestBuildIssue(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	p := store.PendingActionItem{
		Item: model.ActionItem{
			RecapID: "rec-1", Index: 0,
			Title: "Send proposal", Description: "Include new SKUs", Priority: "high",
		},
		Recap: model.MeetingRecap{
			RecapID: "rec-1", Title: "Quarterly Review", Start: start, Summary: "Discussed renewal.",
		},
		AccountName: "Acme Corp",
	}

	issue := BuildIssue(p)
	assert.Equal(t, "Send proposal", issue.Title)
	assert.Contains(t, issue.Body, "Include new SKUs")
	assert.Contains(t, issue.Body, "Priority: high")
	assert.Contains(t, issue.Body, "Quarterly Review")
	assert.Contains(t, issue.Body, "2026-03-10")
	assert.Contains(t, issue.Body, "Account: Acme Corp")
	assert.Contains(t, issue.Body, "Discussed renewal.")
	assert.Equal(t, []string{"account:Acme Corp"}, issue.Labels)
}

func TestBuildIssueNoAccount(t *testing.T) {
	p := store.PendingActionItem{
		Item:  model.ActionItem{Title: "Orphan item"},
		Recap: model.MeetingRecap{Title: "Unknown Meeting"},
	}

	issue := BuildIssue(p)
	assert.Empty(t, issue.Labels)
	assert.NotContains(t, issue.Body, "Account:")
}
