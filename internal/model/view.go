package model

import "time"

// Engagement holds the composite health score and its input signals.
// The score is an explicit rule table, not a learned model; identical inputs
// always produce identical scores.
type Engagement struct {
	Score                int  `json:"score"`
	DaysSinceLastContact *int `json:"days_since_last_contact,omitempty"`
	EmailCount90d        int  `json:"email_count_90d"`
	MeetingCount30d      int  `json:"meeting_count_30d"`
	HasFutureMeeting     bool `json:"has_future_meeting"`
	OpenTaskCount        int  `json:"open_task_count"`
}

// AccountView is one denormalized row of the consolidated account table.
// Everything in it is derived from the source tables and recomputed on every
// rebuild; views are replaced as a whole, never hand-edited.
type AccountView struct {
	AccountID       string         `json:"account_id"`
	AccountName     string         `json:"account_name"`
	OpportunityID   string         `json:"opportunity_id"`
	OpportunityName string         `json:"opportunity_name"`
	RenewalDate     *time.Time     `json:"renewal_date,omitempty"`
	Stage           string         `json:"stage,omitempty"`
	Amount          float64        `json:"amount,omitempty"`
	CSM             string         `json:"csm,omitempty"`
	AE              string         `json:"ae,omitempty"`
	Emails          []EmailMessage `json:"emails,omitempty"`
	PastEvents      []CalendarEvent `json:"past_events,omitempty"`
	FutureEvents    []CalendarEvent `json:"future_events,omitempty"`
	Tasks           []Task         `json:"tasks,omitempty"`
	Recaps          []MeetingRecap `json:"recaps,omitempty"`
	ActionItems     []ActionItem   `json:"action_items,omitempty"`
	Engagement      Engagement     `json:"engagement"`
	ContentHash     string         `json:"content_hash"`
	BuiltAt         time.Time      `json:"built_at"`
}

// RunStatus is the state of a recorded job run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunCounters accumulates per-run outcome counts. Non-fatal conditions
// (resolution misses, duplicate deliveries, per-item tracker failures) are
// counted here rather than surfaced as errors.
type RunCounters struct {
	Built    int `json:"built"`
	Excluded int `json:"excluded"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// RunEntry is a row in the run log.
type RunEntry struct {
	ID          string      `json:"id"`
	Job         string      `json:"job"`
	Status      RunStatus   `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Counters    RunCounters `json:"counters"`
	Error       string      `json:"error,omitempty"`
}
