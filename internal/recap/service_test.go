package recap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/store"
)

func TestParseRecapID(t *testing.T) {
	tests := []struct {
		name    string
		link    string
		want    string
		wantErr bool
	}{
		{name: "plain path", link: "https://meet.example.com/recaps/abc-123", want: "abc-123"},
		{name: "trailing slash", link: "https://meet.example.com/recaps/abc-123/", want: "abc-123"},
		{name: "deep path", link: "https://meet.example.com/org/42/recaps/abc-123", want: "abc-123"},
		{name: "query ignored", link: "https://meet.example.com/recaps/abc-123?src=mail", want: "abc-123"},
		{name: "empty link", link: "", wantErr: true},
		{name: "no path", link: "https://meet.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecapID(tt.link)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "recap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mapper := domainmap.NewMapper([]domainmap.Mapping{
		{Domain: "acme.com", AccountID: "001A", AccountName: "Acme Corp"},
		{Domain: "globex.io", AccountID: "001B", AccountName: "Globex"},
	}, "sells.example")

	return NewService(st, mapper), st
}

func testPayload(link string) Payload {
	return Payload{
		MeetingInfo: PayloadMeetingInfo{
			MeetingLink: link,
			Title:       "Quarterly Review",
			StartTime:   time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		},
		Attendees: PayloadAttendees{
			Actual:  []string{"csm@sells.example", "jane@acme.com"},
			Invited: []string{"csm@sells.example", "jane@acme.com", "bob@globex.io"},
		},
		ActionItems: PayloadActionItems{
			MyItems:     []PayloadActionItem{{Title: "Send proposal", Priority: "high"}},
			OthersItems: []PayloadActionItem{{Title: "Review contract", Description: "Legal pass"}},
		},
		Summary: "Discussed renewal.",
	}
}

func TestIngestCreates(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, testPayload("https://meet.example.com/recaps/rec-1"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Equal(t, "rec-1", res.RecapID)

	stored, err := st.GetRecap(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Quarterly Review", stored.Title)
	// internal attendee is skipped; first external actual attendee decides
	assert.Equal(t, "001A", stored.AccountID)
	assert.Equal(t, "Discussed renewal.", stored.Summary)

	pending, err := st.ListUnsyncedActionItems(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 0, pending[0].Item.Index)
	assert.Equal(t, "Send proposal", pending[0].Item.Title)
	assert.Equal(t, 1, pending[1].Item.Index)
	assert.Equal(t, "Review contract", pending[1].Item.Title)
}

func TestIngestDuplicateSkips(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, testPayload("https://meet.example.com/recaps/rec-1"))
	require.NoError(t, err)
	require.Equal(t, ActionCreated, first.Action)

	// same id, different content: stored row must keep the first delivery
	dup := testPayload("https://meet.example.com/recaps/rec-1")
	dup.MeetingInfo.Title = "Changed Title"
	second, err := svc.Ingest(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, second.Action)
	assert.Equal(t, "rec-1", second.RecapID)

	stored, err := st.GetRecap(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Review", stored.Title)

	recaps, err := st.ListRecaps(ctx)
	require.NoError(t, err)
	assert.Len(t, recaps, 1)
}

func TestIngestUnresolvedAccount(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	p := testPayload("https://meet.example.com/recaps/rec-2")
	p.Attendees.Actual = []string{"csm@sells.example"}
	p.Attendees.Invited = []string{"someone@unknown.example"}

	res, err := svc.Ingest(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)

	stored, err := st.GetRecap(ctx, "rec-2")
	require.NoError(t, err)
	assert.Empty(t, stored.AccountID)
}

func TestIngestInvitedFallback(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	p := testPayload("https://meet.example.com/recaps/rec-3")
	p.Attendees.Actual = []string{"csm@sells.example"}
	p.Attendees.Invited = []string{"bob@globex.io"}

	_, err := svc.Ingest(ctx, p)
	require.NoError(t, err)

	stored, err := st.GetRecap(ctx, "rec-3")
	require.NoError(t, err)
	assert.Equal(t, "001B", stored.AccountID)
}

func TestIngestBadLink(t *testing.T) {
	svc, _ := newTestService(t)

	p := testPayload("")
	_, err := svc.Ingest(context.Background(), p)
	assert.Error(t, err)
}

func TestIngestTriggersMatcher(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	_, err := st.UpsertEvents(ctx, []model.CalendarEvent{
		{EventID: "ev-1", Title: "Quarterly Review", Start: start.Add(10 * time.Minute), AccountID: "001A"},
	})
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, testPayload("https://meet.example.com/recaps/rec-1"))
	require.NoError(t, err)

	stored, err := st.GetRecap(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "ev-1", stored.CalendarEventID)

	events, err := st.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "rec-1", events[0].MeetingRecapID)
}
