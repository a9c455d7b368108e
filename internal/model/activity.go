package model

import "time"

// EmailMessage is an ingested email. AccountID is resolved by domain lookup,
// not asserted by the message itself, and may be stale until the next rebuild.
type EmailMessage struct {
	MessageID   string    `json:"message_id"`
	Date        time.Time `json:"date"`
	FromAddress string    `json:"from_address"`
	ToAddresses []string  `json:"to_addresses,omitempty"`
	CcAddresses []string  `json:"cc_addresses,omitempty"`
	Subject     string    `json:"subject"`
	BodyPreview string    `json:"body_preview,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
}

// AttendeeStatus is a calendar invite response state.
type AttendeeStatus string

const (
	AttendeeAccepted  AttendeeStatus = "accepted"
	AttendeeDeclined  AttendeeStatus = "declined"
	AttendeeTentative AttendeeStatus = "tentative"
	AttendeeNoReply   AttendeeStatus = "needs_action"
)

// Attendee is a single calendar event participant.
type Attendee struct {
	Email  string         `json:"email"`
	Status AttendeeStatus `json:"status,omitempty"`
}

// CalendarEvent is an ingested calendar event. MeetingRecapID is a derived
// cross-reference owned by the matcher and rewritten wholesale on every run.
type CalendarEvent struct {
	EventID        string     `json:"event_id"`
	Title          string     `json:"title"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	Attendees      []Attendee `json:"attendees,omitempty"`
	AccountID      string     `json:"account_id,omitempty"`
	MeetingRecapID string     `json:"meeting_recap_id,omitempty"`
}

// TaskState is the open/closed state of an issue-tracker item.
type TaskState string

const (
	TaskOpen   TaskState = "open"
	TaskClosed TaskState = "closed"
)

// Task is an issue-tracker item associated with an account.
type Task struct {
	TaskID    string    `json:"task_id"`
	State     TaskState `json:"state"`
	Title     string    `json:"title"`
	AccountID string    `json:"account_id,omitempty"`
}
