package model

import "time"

// MeetingRecap is a structured meeting summary delivered by the meeting
// intelligence webhook. Immutable after creation except CalendarEventID,
// which the matcher rewrites wholesale on every run. AccountID, once set,
// is ground truth for matching.
type MeetingRecap struct {
	RecapID          string     `json:"recap_id"`
	Title            string     `json:"title"`
	Start            time.Time  `json:"start"`
	End              *time.Time `json:"end,omitempty"`
	ActualAttendees  []string   `json:"actual_attendees,omitempty"`
	InvitedAttendees []string   `json:"invited_attendees,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	AccountID        string     `json:"account_id,omitempty"`
	CalendarEventID  string     `json:"calendar_event_id,omitempty"`
	ReceivedAt       time.Time  `json:"received_at"`
}

// ActionItem is a follow-up task extracted from a meeting recap. Owned by
// exactly one recap; (RecapID, Index) is the composite key. ExternalIssueID
// is populated when the item has been pushed to the issue tracker; a
// populated id is never recreated.
type ActionItem struct {
	RecapID         string `json:"recap_id"`
	Index           int    `json:"index"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Priority        string `json:"priority,omitempty"`
	ExternalIssueID string `json:"external_issue_id,omitempty"`
}

// Match links one recap to one calendar event. Both sides of the link are
// written together; there is no state where only one side is set.
type Match struct {
	RecapID string `json:"recap_id"`
	EventID string `json:"event_id"`
}
