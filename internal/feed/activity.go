package feed

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/fetcher"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/store"
)

// Activity feed kinds accepted by ImportActivity.
const (
	KindEmails = "emails"
	KindEvents = "events"
	KindTasks  = "tasks"
)

// header resolves a CSV header row into a name -> index lookup. Lookups are
// case-insensitive; a missing column yields "".
type header map[string]int

func resolveHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h
}

func (h header) cell(row []string, names ...string) string {
	for _, name := range names {
		if idx, ok := h[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
	}
	return ""
}

var activityTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseActivityTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range activityTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseEmailsCSV maps an email export onto typed records, resolving each
// message's account from its address fields (from, then to, then cc).
func ParseEmailsCSV(r io.Reader, mapper *domainmap.Mapper) ([]model.EmailMessage, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	h := resolveHeader(rows[0])

	var emails []model.EmailMessage
	for _, row := range rows[1:] {
		id := h.cell(row, "message id", "messageid", "id")
		if id == "" {
			continue
		}
		date, ok := parseActivityTime(h.cell(row, "date", "sent at"))
		if !ok {
			zap.L().Debug("feed: email row without parseable date skipped", zap.String("message_id", id))
			continue
		}
		m := model.EmailMessage{
			MessageID:   id,
			Date:        date,
			FromAddress: h.cell(row, "from"),
			ToAddresses: splitList(h.cell(row, "to")),
			CcAddresses: splitList(h.cell(row, "cc")),
			Subject:     h.cell(row, "subject"),
			BodyPreview: h.cell(row, "body preview", "preview", "snippet"),
		}
		if mapper != nil {
			fields := append([]string{m.FromAddress}, m.ToAddresses...)
			fields = append(fields, m.CcAddresses...)
			m.AccountID = mapper.ResolveAccountID("email", id, fields...)
		}
		emails = append(emails, m)
	}
	return emails, nil
}

// ParseEventsCSV maps a calendar export onto typed records. Attendee cells
// hold "email" or "email:status" entries separated by semicolons; the account
// is resolved from attendee addresses.
func ParseEventsCSV(r io.Reader, mapper *domainmap.Mapper) ([]model.CalendarEvent, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	h := resolveHeader(rows[0])

	var events []model.CalendarEvent
	for _, row := range rows[1:] {
		id := h.cell(row, "event id", "eventid", "id")
		if id == "" {
			continue
		}
		start, ok := parseActivityTime(h.cell(row, "start"))
		if !ok {
			zap.L().Debug("feed: event row without parseable start skipped", zap.String("event_id", id))
			continue
		}
		ev := model.CalendarEvent{
			EventID: id,
			Title:   h.cell(row, "title", "subject"),
			Start:   start,
		}
		if end, ok := parseActivityTime(h.cell(row, "end")); ok {
			ev.End = &end
		}

		var addresses []string
		for _, entry := range splitList(h.cell(row, "attendees")) {
			email, status, found := strings.Cut(entry, ":")
			att := model.Attendee{Email: strings.TrimSpace(email)}
			if found {
				att.Status = model.AttendeeStatus(strings.ToLower(strings.TrimSpace(status)))
			}
			ev.Attendees = append(ev.Attendees, att)
			addresses = append(addresses, att.Email)
		}
		if mapper != nil {
			ev.AccountID = mapper.ResolveAccountID("event", id, addresses...)
		}
		events = append(events, ev)
	}
	return events, nil
}

// ParseTasksCSV maps a task export onto typed records. Tasks arrive with an
// assignee address the account is resolved from; an explicit account id
// column wins when present.
func ParseTasksCSV(r io.Reader, mapper *domainmap.Mapper) ([]model.Task, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	h := resolveHeader(rows[0])

	var tasks []model.Task
	for _, row := range rows[1:] {
		id := h.cell(row, "task id", "taskid", "id")
		if id == "" {
			continue
		}
		state := model.TaskState(strings.ToLower(h.cell(row, "state", "status")))
		if state != model.TaskOpen && state != model.TaskClosed {
			state = model.TaskOpen
		}
		task := model.Task{
			TaskID:    id,
			State:     state,
			Title:     h.cell(row, "title", "subject"),
			AccountID: h.cell(row, "account id", "accountid"),
		}
		if task.AccountID == "" && mapper != nil {
			task.AccountID = mapper.ResolveAccountID("task", id, h.cell(row, "contact", "related to"))
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "feed: read csv")
	}
	if len(rows) == 0 {
		return nil, eris.New("feed: empty csv")
	}
	return rows, nil
}

// ImportActivity ingests one activity export (emails, events, or tasks) from
// a local path or URL into the store.
func ImportActivity(ctx context.Context, st store.Store, mapper *domainmap.Mapper, kind, source string) (int, error) {
	rc, err := fetcher.Open(ctx, source)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var n int
	switch kind {
	case KindEmails:
		emails, err := ParseEmailsCSV(rc, mapper)
		if err != nil {
			return 0, err
		}
		n, err = st.UpsertEmails(ctx, emails)
		if err != nil {
			return 0, err
		}
	case KindEvents:
		events, err := ParseEventsCSV(rc, mapper)
		if err != nil {
			return 0, err
		}
		n, err = st.UpsertEvents(ctx, events)
		if err != nil {
			return 0, err
		}
	case KindTasks:
		tasks, err := ParseTasksCSV(rc, mapper)
		if err != nil {
			return 0, err
		}
		n, err = st.UpsertTasks(ctx, tasks)
		if err != nil {
			return 0, err
		}
	default:
		return 0, eris.Errorf("feed: unknown activity kind %q", kind)
	}

	zap.L().Info("feed: activity imported",
		zap.String("kind", kind),
		zap.String("source", source),
		zap.Int("rows", n),
	)
	return n, nil
}
