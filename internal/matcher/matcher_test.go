package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/model"
)

func recapAt(id, title string, start time.Time, accountID string) model.MeetingRecap {
	return model.MeetingRecap{RecapID: id, Title: title, Start: start, AccountID: accountID}
}

func eventAt(id, title string, start time.Time, accountID string) model.CalendarEvent {
	return model.CalendarEvent{EventID: id, Title: title, Start: start, AccountID: accountID}
}

var day = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestMatchExactTitleAndDay(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day.Add(30*time.Minute), "")}

	matches := MatchAll(recaps, events)
	require.Len(t, matches, 1)
	assert.Equal(t, model.Match{RecapID: "R1", EventID: "E1"}, matches[0])
}

func TestMatchTitleIsCaseSensitive(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "")}
	events := []model.CalendarEvent{eventAt("E1", "sync", day, "")}
	assert.Empty(t, MatchAll(recaps, events))
}

func TestMatchTitleTrimmed(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "  Sync ", day, "")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day, "")}
	assert.Len(t, MatchAll(recaps, events), 1)
}

func TestMatchRequiresSameUTCDay(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day.AddDate(0, 0, 1), "")}
	assert.Empty(t, MatchAll(recaps, events))
}

func TestMatchUTCDayCrossesLocalMidnight(t *testing.T) {
	// 23:30 UTC and 00:30 UTC next day are different UTC calendar days even
	// though only an hour apart.
	late := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", late, "")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", late.Add(time.Hour), "")}
	assert.Empty(t, MatchAll(recaps, events))
}

func TestMatchAccountConflictDisqualifies(t *testing.T) {
	// Recap belongs to account 1. E1 matches on title+date but belongs to
	// account 2; E2 matches and agrees on account despite a worse time
	// difference. E2 must win, never E1.
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "1")}
	events := []model.CalendarEvent{
		eventAt("E1", "Sync", day, "2"),
		eventAt("E2", "Sync", day.Add(4*time.Hour), "1"),
	}

	matches := MatchAll(recaps, events)
	require.Len(t, matches, 1)
	assert.Equal(t, "E2", matches[0].EventID)
}

func TestMatchMissingAccountOnOneSideAllowed(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "1")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day, "")}
	assert.Len(t, MatchAll(recaps, events), 1)
}

func TestMatchClosestStartWins(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "")}
	events := []model.CalendarEvent{
		eventAt("E1", "Sync", day.Add(3*time.Hour), ""),
		eventAt("E2", "Sync", day.Add(15*time.Minute), ""),
		eventAt("E3", "Sync", day.Add(-2*time.Hour), ""),
	}

	matches := MatchAll(recaps, events)
	require.Len(t, matches, 1)
	assert.Equal(t, "E2", matches[0].EventID)
}

func TestMatchEventConsumedOnce(t *testing.T) {
	// Two recaps compete for one event; the earlier recap (processing order)
	// wins, the other stays unmatched.
	recaps := []model.MeetingRecap{
		recapAt("R2", "Sync", day.Add(time.Hour), ""),
		recapAt("R1", "Sync", day, ""),
	}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day.Add(10*time.Minute), "")}

	matches := MatchAll(recaps, events)
	require.Len(t, matches, 1)
	assert.Equal(t, "R1", matches[0].RecapID)
}

func TestMatchIdempotent(t *testing.T) {
	recaps := []model.MeetingRecap{
		recapAt("R1", "Sync", day, "1"),
		recapAt("R2", "Review", day.Add(2*time.Hour), ""),
	}
	events := []model.CalendarEvent{
		eventAt("E1", "Sync", day.Add(5*time.Minute), "1"),
		eventAt("E2", "Review", day.Add(2*time.Hour), ""),
		eventAt("E3", "Standup", day, ""),
	}

	first := MatchAll(recaps, events)
	second := MatchAll(recaps, events)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestMatchNoCandidatesIsNotAnError(t *testing.T) {
	recaps := []model.MeetingRecap{recapAt("R1", "Lonely", day, "")}
	assert.Empty(t, MatchAll(recaps, nil))
}

// recordingLinker captures link calls for Run tests.
type recordingLinker struct {
	cleared int
	links   []model.Match
	failOn  string
}

func (l *recordingLinker) ClearMatches(ctx context.Context) error {
	l.cleared++
	l.links = nil
	return nil
}

func (l *recordingLinker) LinkRecapEvent(ctx context.Context, recapID, eventID string) error {
	if l.failOn != "" && recapID == l.failOn {
		return assert.AnError
	}
	l.links = append(l.links, model.Match{RecapID: recapID, EventID: eventID})
	return nil
}

func TestRunClearsBeforeWriting(t *testing.T) {
	linker := &recordingLinker{}
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day, "")}

	n, err := Run(context.Background(), linker, recaps, events)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, linker.cleared)
	assert.Equal(t, []model.Match{{RecapID: "R1", EventID: "E1"}}, linker.links)

	// Rerun: prior links cleared, identical set rewritten.
	n, err = Run(context.Background(), linker, recaps, events)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, linker.cleared)
	assert.Len(t, linker.links, 1)
}

func TestRunPropagatesLinkError(t *testing.T) {
	linker := &recordingLinker{failOn: "R1"}
	recaps := []model.MeetingRecap{recapAt("R1", "Sync", day, "")}
	events := []model.CalendarEvent{eventAt("E1", "Sync", day, "")}

	_, err := Run(context.Background(), linker, recaps, events)
	assert.Error(t, err)
}
