package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/model"
)

var scoreNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func emailsAgo(days ...int) []model.EmailMessage {
	var emails []model.EmailMessage
	for i, d := range days {
		emails = append(emails, model.EmailMessage{
			MessageID: string(rune('a' + i)),
			Date:      scoreNow.AddDate(0, 0, -d),
		})
	}
	return emails
}

func meetingsAgo(days ...int) []model.CalendarEvent {
	var events []model.CalendarEvent
	for i, d := range days {
		events = append(events, model.CalendarEvent{
			EventID: string(rune('a' + i)),
			Start:   scoreNow.AddDate(0, 0, -d),
		})
	}
	return events
}

func openTasks(n int) []model.Task {
	var tasks []model.Task
	for i := 0; i < n; i++ {
		tasks = append(tasks, model.Task{TaskID: string(rune('a' + i)), State: model.TaskOpen})
	}
	return tasks
}

func TestRecencyBands(t *testing.T) {
	tests := []struct {
		days   int
		expect int
	}{
		{0, 40}, {7, 40}, {8, 35}, {14, 35}, {15, 25}, {30, 25},
		{31, 15}, {60, 15}, {61, 8}, {90, 8}, {91, 3}, {180, 3}, {181, 0},
	}
	for _, tt := range tests {
		days := tt.days
		assert.Equal(t, tt.expect, scoreRecency(&days), "days=%d", tt.days)
	}
	assert.Equal(t, 0, scoreRecency(nil))
}

func TestVolumeBands(t *testing.T) {
	assert.Equal(t, 20, scoreEmailVolume(10))
	assert.Equal(t, 12, scoreEmailVolume(5))
	assert.Equal(t, 6, scoreEmailVolume(1))
	assert.Equal(t, 0, scoreEmailVolume(0))

	assert.Equal(t, 20, scoreMeetingVolume(3))
	assert.Equal(t, 15, scoreMeetingVolume(2))
	assert.Equal(t, 10, scoreMeetingVolume(1))
	assert.Equal(t, 0, scoreMeetingVolume(0))

	assert.Equal(t, 10, scoreOpenTasks(5))
	assert.Equal(t, 7, scoreOpenTasks(3))
	assert.Equal(t, 4, scoreOpenTasks(1))
	assert.Equal(t, 0, scoreOpenTasks(0))
}

func TestEngagementNoContact(t *testing.T) {
	e := computeEngagement(nil, nil, nil, nil, scoreNow)
	assert.Nil(t, e.DaysSinceLastContact)
	assert.Equal(t, 0, e.Score)
}

func TestEngagementFullHouse(t *testing.T) {
	emails := emailsAgo(1, 2, 3, 4, 5, 6, 10, 20, 30, 40)
	past := meetingsAgo(2, 10, 20)
	future := []model.CalendarEvent{{EventID: "f", Start: scoreNow.AddDate(0, 0, 7)}}

	e := computeEngagement(emails, past, future, openTasks(5), scoreNow)
	require.NotNil(t, e.DaysSinceLastContact)
	assert.Equal(t, 1, *e.DaysSinceLastContact)
	assert.Equal(t, 10, e.EmailCount90d)
	assert.Equal(t, 3, e.MeetingCount30d)
	assert.True(t, e.HasFutureMeeting)
	assert.Equal(t, 5, e.OpenTaskCount)
	// 40 + 20 + 20 + 10 + 10, capped at 100.
	assert.Equal(t, 100, e.Score)
}

func TestEngagementRecencyMonotonic(t *testing.T) {
	recent := computeEngagement(emailsAgo(5), nil, nil, nil, scoreNow)
	stale := computeEngagement(emailsAgo(95), nil, nil, nil, scoreNow)
	assert.GreaterOrEqual(t, recent.Score, stale.Score)
	assert.Greater(t, recent.Score, stale.Score)
}

func TestEngagementLastContactPrefersLater(t *testing.T) {
	// Email 40 days ago, meeting 3 days ago: the meeting sets recency.
	e := computeEngagement(emailsAgo(40), meetingsAgo(3), nil, nil, scoreNow)
	require.NotNil(t, e.DaysSinceLastContact)
	assert.Equal(t, 3, *e.DaysSinceLastContact)
}

func TestEngagementFutureDatedContactClamped(t *testing.T) {
	emails := []model.EmailMessage{{MessageID: "m", Date: scoreNow.Add(2 * time.Hour)}}
	e := computeEngagement(emails, nil, nil, nil, scoreNow)
	require.NotNil(t, e.DaysSinceLastContact)
	assert.Equal(t, 0, *e.DaysSinceLastContact)
}

func TestEngagementClosedTasksIgnored(t *testing.T) {
	tasks := []model.Task{
		{TaskID: "1", State: model.TaskOpen},
		{TaskID: "2", State: model.TaskClosed},
	}
	e := computeEngagement(nil, nil, nil, tasks, scoreNow)
	assert.Equal(t, 1, e.OpenTaskCount)
	assert.Equal(t, 4, e.Score)
}
