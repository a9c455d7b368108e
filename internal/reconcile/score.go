package reconcile

import (
	"time"

	"github.com/sells-group/accountsync/internal/model"
)

// computeEngagement derives the composite health score for one account from
// its aggregated activity. Five independent weighted bands are summed and
// capped at 100. The bands are exact thresholds, not interpolation, so
// identical inputs always reproduce the same score.
func computeEngagement(emails []model.EmailMessage, pastEvents, futureEvents []model.CalendarEvent, tasks []model.Task, now time.Time) model.Engagement {
	e := model.Engagement{}

	// Last contact: most recent of last email and last past meeting.
	var lastContact time.Time
	for _, m := range emails {
		if m.Date.After(lastContact) {
			lastContact = m.Date
		}
	}
	for _, ev := range pastEvents {
		if ev.Start.After(lastContact) {
			lastContact = ev.Start
		}
	}
	if !lastContact.IsZero() {
		days := int(now.Sub(lastContact).Hours() / 24)
		if days < 0 {
			days = 0
		}
		e.DaysSinceLastContact = &days
	}

	cutoff90 := now.AddDate(0, 0, -90)
	for _, m := range emails {
		if !m.Date.Before(cutoff90) {
			e.EmailCount90d++
		}
	}

	cutoff30 := now.AddDate(0, 0, -30)
	for _, ev := range pastEvents {
		if !ev.Start.Before(cutoff30) {
			e.MeetingCount30d++
		}
	}

	e.HasFutureMeeting = len(futureEvents) > 0

	for _, task := range tasks {
		if task.State == model.TaskOpen {
			e.OpenTaskCount++
		}
	}

	score := scoreRecency(e.DaysSinceLastContact) +
		scoreEmailVolume(e.EmailCount90d) +
		scoreMeetingVolume(e.MeetingCount30d) +
		scoreOpenTasks(e.OpenTaskCount)
	if e.HasFutureMeeting {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	e.Score = score

	return e
}

// scoreRecency awards 0-40 points for contact recency.
func scoreRecency(daysSince *int) int {
	if daysSince == nil {
		return 0
	}
	days := *daysSince
	switch {
	case days <= 7:
		return 40
	case days <= 14:
		return 35
	case days <= 30:
		return 25
	case days <= 60:
		return 15
	case days <= 90:
		return 8
	case days <= 180:
		return 3
	default:
		return 0
	}
}

// scoreEmailVolume awards 0-20 points for email volume in the trailing 90 days.
func scoreEmailVolume(count int) int {
	switch {
	case count >= 10:
		return 20
	case count >= 5:
		return 12
	case count >= 1:
		return 6
	default:
		return 0
	}
}

// scoreMeetingVolume awards 0-20 points for meetings in the trailing 30 days.
func scoreMeetingVolume(count int) int {
	switch {
	case count >= 3:
		return 20
	case count >= 2:
		return 15
	case count >= 1:
		return 10
	default:
		return 0
	}
}

// scoreOpenTasks awards 0-10 points for open issue-tracker items.
func scoreOpenTasks(count int) int {
	switch {
	case count >= 5:
		return 10
	case count >= 3:
		return 7
	case count >= 1:
		return 4
	default:
		return 0
	}
}
