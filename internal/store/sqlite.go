package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/reconcile"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id                          TEXT PRIMARY KEY,
	name                        TEXT NOT NULL,
	next_renewal_opportunity_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS opportunities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	account_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS renewals (
	normalized_name  TEXT PRIMARY KEY,
	opportunity_name TEXT NOT NULL,
	renewal_date     TEXT,
	stage            TEXT NOT NULL DEFAULT '',
	amount           REAL NOT NULL DEFAULT 0,
	csm              TEXT NOT NULL DEFAULT '',
	ae               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS emails (
	message_id   TEXT PRIMARY KEY,
	date         TEXT NOT NULL,
	from_address TEXT NOT NULL,
	to_addresses TEXT NOT NULL DEFAULT '[]',
	cc_addresses TEXT NOT NULL DEFAULT '[]',
	subject      TEXT NOT NULL DEFAULT '',
	body_preview TEXT NOT NULL DEFAULT '',
	account_id   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	event_id         TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	start            TEXT NOT NULL,
	end_at           TEXT,
	attendees        TEXT NOT NULL DEFAULT '[]',
	account_id       TEXT NOT NULL DEFAULT '',
	meeting_recap_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tasks (
	task_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	account_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS recaps (
	recap_id          TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	start             TEXT NOT NULL,
	end_at            TEXT,
	actual_attendees  TEXT NOT NULL DEFAULT '[]',
	invited_attendees TEXT NOT NULL DEFAULT '[]',
	summary           TEXT NOT NULL DEFAULT '',
	account_id        TEXT NOT NULL DEFAULT '',
	calendar_event_id TEXT NOT NULL DEFAULT '',
	received_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS action_items (
	recap_id          TEXT NOT NULL REFERENCES recaps(recap_id),
	idx               INTEGER NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	priority          TEXT NOT NULL DEFAULT '',
	external_issue_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (recap_id, idx)
);

CREATE TABLE IF NOT EXISTS domain_map (
	domain       TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL,
	account_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS account_views (
	account_id   TEXT PRIMARY KEY,
	ord          INTEGER NOT NULL,
	data         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	built_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exclusions (
	account_id   TEXT PRIMARY KEY,
	account_name TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_log (
	id           TEXT PRIMARY KEY,
	job          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	built        INTEGER NOT NULL DEFAULT 0,
	excluded     INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	errors       INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account_id);
CREATE INDEX IF NOT EXISTS idx_events_account ON events(account_id);
CREATE INDEX IF NOT EXISTS idx_tasks_account ON tasks(account_id);
CREATE INDEX IF NOT EXISTS idx_recaps_account ON recaps(account_id);
CREATE INDEX IF NOT EXISTS idx_run_log_started ON run_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// fmtTime serializes timestamps as UTC RFC3339Nano strings, the one format
// both drivers round-trip losslessly.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func fromJSON[T any](data string) T {
	var v T
	_ = json.Unmarshal([]byte(data), &v)
	return v
}

func (s *SQLiteStore) UpsertAccounts(ctx context.Context, accounts []model.Account) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert accounts")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, a := range accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, name, next_renewal_opportunity_id) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			 next_renewal_opportunity_id = excluded.next_renewal_opportunity_id`,
			a.ID, a.Name, a.NextRenewalOpportunityID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert account %s", a.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert accounts")
	}
	return len(accounts), nil
}

func (s *SQLiteStore) UpsertOpportunities(ctx context.Context, opptys []model.Opportunity) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert opportunities")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, o := range opptys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO opportunities (id, name, account_id) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, account_id = excluded.account_id`,
			o.ID, o.Name, o.AccountID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert opportunity %s", o.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert opportunities")
	}
	return len(opptys), nil
}

// ReplaceRenewals swaps the whole renewal feed snapshot: the active
// opportunity set is defined by feed membership, so stale rows must go.
func (s *SQLiteStore) ReplaceRenewals(ctx context.Context, renewals []model.RenewalRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace renewals")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM renewals`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear renewals")
	}
	for _, r := range renewals {
		key := r.NormalizedName
		if key == "" {
			key = reconcile.NormalizeName(r.OpportunityName)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO renewals (normalized_name, opportunity_name, renewal_date, stage, amount, csm, ae)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(normalized_name) DO NOTHING`,
			key, r.OpportunityName, fmtTimePtr(r.RenewalDate), r.Stage, r.Amount, r.CSM, r.AE,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert renewal %q", r.OpportunityName)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace renewals")
	}
	return len(renewals), nil
}

func (s *SQLiteStore) UpsertEmails(ctx context.Context, emails []model.EmailMessage) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert emails")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, m := range emails {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO emails (message_id, date, from_address, to_addresses, cc_addresses, subject, body_preview, account_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(message_id) DO UPDATE SET account_id = excluded.account_id`,
			m.MessageID, fmtTime(m.Date), m.FromAddress, toJSON(m.ToAddresses), toJSON(m.CcAddresses),
			m.Subject, m.BodyPreview, m.AccountID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert email %s", m.MessageID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert emails")
	}
	return len(emails), nil
}

func (s *SQLiteStore) UpsertEvents(ctx context.Context, events []model.CalendarEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert events")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, title, start, end_at, attendees, account_id, meeting_recap_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(event_id) DO UPDATE SET title = excluded.title, start = excluded.start,
			 end_at = excluded.end_at, attendees = excluded.attendees, account_id = excluded.account_id`,
			ev.EventID, ev.Title, fmtTime(ev.Start), fmtTimePtr(ev.End), toJSON(ev.Attendees),
			ev.AccountID, ev.MeetingRecapID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert event %s", ev.EventID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert events")
	}
	return len(events), nil
}

func (s *SQLiteStore) UpsertTasks(ctx context.Context, tasks []model.Task) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert tasks")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, task := range tasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (task_id, state, title, account_id) VALUES (?, ?, ?, ?)
			 ON CONFLICT(task_id) DO UPDATE SET state = excluded.state, title = excluded.title,
			 account_id = excluded.account_id`,
			task.TaskID, string(task.State), task.Title, task.AccountID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert task %s", task.TaskID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert tasks")
	}
	return len(tasks), nil
}

// InsertRecap stores a recap and its action items once. A second delivery of
// the same recap id leaves the stored row untouched and returns false.
func (s *SQLiteStore) InsertRecap(ctx context.Context, recap model.MeetingRecap, items []model.ActionItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin insert recap")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO recaps (recap_id, title, start, end_at, actual_attendees, invited_attendees, summary, account_id, calendar_event_id, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(recap_id) DO NOTHING`,
		recap.RecapID, recap.Title, fmtTime(recap.Start), fmtTimePtr(recap.End),
		toJSON(recap.ActualAttendees), toJSON(recap.InvitedAttendees),
		recap.Summary, recap.AccountID, recap.CalendarEventID, fmtTime(recap.ReceivedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert recap %s", recap.RecapID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert recap rows affected")
	}
	if affected == 0 {
		return false, nil
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO action_items (recap_id, idx, title, description, priority, external_issue_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.RecapID, item.Index, item.Title, item.Description, item.Priority, item.ExternalIssueID,
		); err != nil {
			return false, eris.Wrapf(err, "sqlite: insert action item %s/%d", item.RecapID, item.Index)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit insert recap")
	}
	return true, nil
}

func (s *SQLiteStore) GetRecap(ctx context.Context, recapID string) (*model.MeetingRecap, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT recap_id, title, start, end_at, actual_attendees, invited_attendees, summary, account_id, calendar_event_id, received_at
		 FROM recaps WHERE recap_id = ?`, recapID)
	recap, err := scanRecap(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get recap %s", recapID)
	}
	return recap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecap(row rowScanner) (*model.MeetingRecap, error) {
	var r model.MeetingRecap
	var start, received string
	var end sql.NullString
	var actual, invited string
	if err := row.Scan(&r.RecapID, &r.Title, &start, &end, &actual, &invited,
		&r.Summary, &r.AccountID, &r.CalendarEventID, &received); err != nil {
		return nil, err
	}
	r.Start = parseTime(start)
	r.End = parseTimePtr(end)
	r.ActualAttendees = fromJSON[[]string](actual)
	r.InvitedAttendees = fromJSON[[]string](invited)
	r.ReceivedAt = parseTime(received)
	return &r, nil
}

func (s *SQLiteStore) ListRecaps(ctx context.Context) ([]model.MeetingRecap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recap_id, title, start, end_at, actual_attendees, invited_attendees, summary, account_id, calendar_event_id, received_at
		 FROM recaps ORDER BY start, recap_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recaps")
	}
	defer rows.Close()

	var recaps []model.MeetingRecap
	for rows.Next() {
		r, err := scanRecap(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recap")
		}
		recaps = append(recaps, *r)
	}
	return recaps, rows.Err()
}

func scanEvent(row rowScanner) (*model.CalendarEvent, error) {
	var ev model.CalendarEvent
	var start string
	var end sql.NullString
	var attendees string
	if err := row.Scan(&ev.EventID, &ev.Title, &start, &end, &attendees, &ev.AccountID, &ev.MeetingRecapID); err != nil {
		return nil, err
	}
	ev.Start = parseTime(start)
	ev.End = parseTimePtr(end)
	ev.Attendees = fromJSON[[]model.Attendee](attendees)
	return &ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, title, start, end_at, attendees, account_id, meeting_recap_id
		 FROM events ORDER BY start, event_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) ClearMatches(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin clear matches")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE recaps SET calendar_event_id = ''`); err != nil {
		return eris.Wrap(err, "sqlite: clear recap links")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE events SET meeting_recap_id = ''`); err != nil {
		return eris.Wrap(err, "sqlite: clear event links")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit clear matches")
}

// LinkRecapEvent writes both sides of a match in one transaction.
func (s *SQLiteStore) LinkRecapEvent(ctx context.Context, recapID, eventID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin link")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE recaps SET calendar_event_id = ? WHERE recap_id = ?`, eventID, recapID); err != nil {
		return eris.Wrapf(err, "sqlite: link recap %s", recapID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET meeting_recap_id = ? WHERE event_id = ?`, recapID, eventID); err != nil {
		return eris.Wrapf(err, "sqlite: link event %s", eventID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit link")
}

func (s *SQLiteStore) ReplaceDomainMappings(ctx context.Context, mappings []domainmap.Mapping) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace domain map")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM domain_map`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear domain map")
	}
	for _, m := range mappings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO domain_map (domain, account_id, account_name) VALUES (?, ?, ?)
			 ON CONFLICT(domain) DO UPDATE SET account_id = excluded.account_id, account_name = excluded.account_name`,
			m.Domain, m.AccountID, m.AccountName,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert domain %s", m.Domain)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace domain map")
	}
	return len(mappings), nil
}

func (s *SQLiteStore) ListDomainMappings(ctx context.Context) ([]domainmap.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, account_id, account_name FROM domain_map ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list domain map")
	}
	defer rows.Close()

	var mappings []domainmap.Mapping
	for rows.Next() {
		var m domainmap.Mapping
		if err := rows.Scan(&m.Domain, &m.AccountID, &m.AccountName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ReplaceAccountViews swaps the derived view and exclusion tables in one
// transaction so readers never observe a partial rebuild.
func (s *SQLiteStore) ReplaceAccountViews(ctx context.Context, views []model.AccountView, exclusions []model.Exclusion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace views")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM account_views`); err != nil {
		return eris.Wrap(err, "sqlite: clear views")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exclusions`); err != nil {
		return eris.Wrap(err, "sqlite: clear exclusions")
	}

	for i, v := range views {
		data, err := json.Marshal(v)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal view %s", v.AccountID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO account_views (account_id, ord, data, content_hash, built_at) VALUES (?, ?, ?, ?, ?)`,
			v.AccountID, i, string(data), v.ContentHash, fmtTime(v.BuiltAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert view %s", v.AccountID)
		}
	}
	for _, e := range exclusions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exclusions (account_id, account_name, reason, detail) VALUES (?, ?, ?, ?)
			 ON CONFLICT(account_id) DO UPDATE SET reason = excluded.reason, detail = excluded.detail`,
			e.AccountID, e.AccountName, string(e.Reason), e.Detail,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert exclusion %s", e.AccountID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace views")
}

func (s *SQLiteStore) ListAccountViews(ctx context.Context) ([]model.AccountView, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM account_views ORDER BY ord`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list views")
	}
	defer rows.Close()

	var views []model.AccountView
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan view")
		}
		var v model.AccountView
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal view")
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *SQLiteStore) ListExclusions(ctx context.Context) ([]model.Exclusion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, account_name, reason, detail FROM exclusions ORDER BY account_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list exclusions")
	}
	defer rows.Close()

	var exclusions []model.Exclusion
	for rows.Next() {
		var e model.Exclusion
		var reason string
		if err := rows.Scan(&e.AccountID, &e.AccountName, &reason, &e.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exclusion")
		}
		e.Reason = model.ExclusionReason(reason)
		exclusions = append(exclusions, e)
	}
	return exclusions, rows.Err()
}

func (s *SQLiteStore) ListUnsyncedActionItems(ctx context.Context) ([]PendingActionItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ai.recap_id, ai.idx, ai.title, ai.description, ai.priority,
		        r.title, r.start, r.summary, r.account_id, COALESCE(a.name, '')
		 FROM action_items ai
		 JOIN recaps r ON r.recap_id = ai.recap_id
		 LEFT JOIN accounts a ON a.id = r.account_id
		 WHERE ai.external_issue_id = ''
		 ORDER BY r.start, ai.recap_id, ai.idx`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unsynced action items")
	}
	defer rows.Close()

	var pending []PendingActionItem
	for rows.Next() {
		var p PendingActionItem
		var start string
		if err := rows.Scan(&p.Item.RecapID, &p.Item.Index, &p.Item.Title, &p.Item.Description,
			&p.Item.Priority, &p.Recap.Title, &start, &p.Recap.Summary, &p.Recap.AccountID,
			&p.AccountName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending action item")
		}
		p.Recap.RecapID = p.Item.RecapID
		p.Recap.Start = parseTime(start)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (s *SQLiteStore) MarkActionItemSynced(ctx context.Context, recapID string, index int, externalIssueID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE action_items SET external_issue_id = ? WHERE recap_id = ? AND idx = ?`,
		externalIssueID, recapID, index)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark action item synced %s/%d", recapID, index)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: mark synced rows affected")
	}
	if affected == 0 {
		return eris.Errorf("sqlite: action item %s/%d not found", recapID, index)
	}
	return nil
}

// LoadSnapshot reads all source tables into memory. Activity tables degrade
// to empty on read failure; the registry tables (accounts, opportunities,
// renewals) are required.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*reconcile.Snapshot, error) {
	snap := &reconcile.Snapshot{}

	accounts, err := s.listAccounts(ctx)
	if err != nil {
		return nil, err
	}
	snap.Accounts = accounts

	opptys, err := s.listOpportunities(ctx)
	if err != nil {
		return nil, err
	}
	snap.Opportunities = opptys

	renewals, err := s.listRenewals(ctx)
	if err != nil {
		return nil, err
	}
	snap.Renewals = renewals

	if snap.Emails, err = s.listEmails(ctx); err != nil {
		zap.L().Warn("sqlite: email table unavailable, aggregate degraded", zap.Error(err))
		snap.Emails = nil
	}
	if snap.Events, err = s.ListEvents(ctx); err != nil {
		zap.L().Warn("sqlite: event table unavailable, aggregate degraded", zap.Error(err))
		snap.Events = nil
	}
	if snap.Tasks, err = s.listTasks(ctx); err != nil {
		zap.L().Warn("sqlite: task table unavailable, aggregate degraded", zap.Error(err))
		snap.Tasks = nil
	}
	if snap.Recaps, err = s.ListRecaps(ctx); err != nil {
		zap.L().Warn("sqlite: recap table unavailable, aggregate degraded", zap.Error(err))
		snap.Recaps = nil
	}
	if snap.ActionItems, err = s.listActionItems(ctx); err != nil {
		zap.L().Warn("sqlite: action item table unavailable, aggregate degraded", zap.Error(err))
		snap.ActionItems = nil
	}

	return snap, nil
}

func (s *SQLiteStore) listAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, next_renewal_opportunity_id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.NextRenewalOpportunityID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) listOpportunities(ctx context.Context) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, account_id FROM opportunities ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var opptys []model.Opportunity
	for rows.Next() {
		var o model.Opportunity
		if err := rows.Scan(&o.ID, &o.Name, &o.AccountID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opportunity")
		}
		opptys = append(opptys, o)
	}
	return opptys, rows.Err()
}

func (s *SQLiteStore) listRenewals(ctx context.Context) ([]model.RenewalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_name, opportunity_name, renewal_date, stage, amount, csm, ae FROM renewals`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list renewals")
	}
	defer rows.Close()

	var renewals []model.RenewalRecord
	for rows.Next() {
		var r model.RenewalRecord
		var date sql.NullString
		if err := rows.Scan(&r.NormalizedName, &r.OpportunityName, &date, &r.Stage, &r.Amount, &r.CSM, &r.AE); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan renewal")
		}
		r.RenewalDate = parseTimePtr(date)
		renewals = append(renewals, r)
	}
	return renewals, rows.Err()
}

func (s *SQLiteStore) listEmails(ctx context.Context) ([]model.EmailMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, date, from_address, to_addresses, cc_addresses, subject, body_preview, account_id
		 FROM emails ORDER BY date`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list emails")
	}
	defer rows.Close()

	var emails []model.EmailMessage
	for rows.Next() {
		var m model.EmailMessage
		var date, to, cc string
		if err := rows.Scan(&m.MessageID, &date, &m.FromAddress, &to, &cc, &m.Subject, &m.BodyPreview, &m.AccountID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email")
		}
		m.Date = parseTime(date)
		m.ToAddresses = fromJSON[[]string](to)
		m.CcAddresses = fromJSON[[]string](cc)
		emails = append(emails, m)
	}
	return emails, rows.Err()
}

func (s *SQLiteStore) listTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, state, title, account_id FROM tasks ORDER BY task_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var task model.Task
		var state string
		if err := rows.Scan(&task.TaskID, &state, &task.Title, &task.AccountID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		task.State = model.TaskState(state)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) listActionItems(ctx context.Context) ([]model.ActionItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recap_id, idx, title, description, priority, external_issue_id FROM action_items ORDER BY recap_id, idx`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list action items")
	}
	defer rows.Close()

	var items []model.ActionItem
	for rows.Next() {
		var item model.ActionItem
		if err := rows.Scan(&item.RecapID, &item.Index, &item.Title, &item.Description, &item.Priority, &item.ExternalIssueID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) StartRun(ctx context.Context, job string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, job, status, started_at) VALUES (?, ?, ?, ?)`,
		id, job, string(model.RunRunning), fmtTime(time.Now()),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start run %s", job)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, built = ?, excluded = ?, skipped = ?, errors = ?
		 WHERE id = ?`,
		string(model.RunComplete), fmtTime(time.Now()),
		counters.Built, counters.Excluded, counters.Skipped, counters.Errors, runID,
	)
	return eris.Wrapf(err, "sqlite: complete run %s", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunFailed), fmtTime(time.Now()), errMsg, runID,
	)
	return eris.Wrapf(err, "sqlite: fail run %s", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job, status, started_at, completed_at, built, excluded, skipped, errors, error
		 FROM run_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var entries []model.RunEntry
	for rows.Next() {
		var e model.RunEntry
		var status, started string
		var completed sql.NullString
		if err := rows.Scan(&e.ID, &e.Job, &status, &started, &completed,
			&e.Counters.Built, &e.Counters.Excluded, &e.Counters.Skipped, &e.Counters.Errors, &e.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run entry")
		}
		e.Status = model.RunStatus(status)
		e.StartedAt = parseTime(started)
		e.CompletedAt = parseTimePtr(completed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
