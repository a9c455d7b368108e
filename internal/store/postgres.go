package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/reconcile"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
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
	renewal_date     TIMESTAMPTZ,
	stage            TEXT NOT NULL DEFAULT '',
	amount           DOUBLE PRECISION NOT NULL DEFAULT 0,
	csm              TEXT NOT NULL DEFAULT '',
	ae               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS emails (
	message_id   TEXT PRIMARY KEY,
	date         TIMESTAMPTZ NOT NULL,
	from_address TEXT NOT NULL,
	to_addresses JSONB NOT NULL DEFAULT '[]',
	cc_addresses JSONB NOT NULL DEFAULT '[]',
	subject      TEXT NOT NULL DEFAULT '',
	body_preview TEXT NOT NULL DEFAULT '',
	account_id   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	event_id         TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	start            TIMESTAMPTZ NOT NULL,
	end_at           TIMESTAMPTZ,
	attendees        JSONB NOT NULL DEFAULT '[]',
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
	start             TIMESTAMPTZ NOT NULL,
	end_at            TIMESTAMPTZ,
	actual_attendees  JSONB NOT NULL DEFAULT '[]',
	invited_attendees JSONB NOT NULL DEFAULT '[]',
	summary           TEXT NOT NULL DEFAULT '',
	account_id        TEXT NOT NULL DEFAULT '',
	calendar_event_id TEXT NOT NULL DEFAULT '',
	received_at       TIMESTAMPTZ NOT NULL
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
	data         JSONB NOT NULL,
	content_hash TEXT NOT NULL,
	built_at     TIMESTAMPTZ NOT NULL
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
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertAccounts(ctx context.Context, accounts []model.Account) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert accounts")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, a := range accounts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, name, next_renewal_opportunity_id) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET name = $2, next_renewal_opportunity_id = $3`,
			a.ID, a.Name, a.NextRenewalOpportunityID,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert account %s", a.ID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert accounts")
	}
	return len(accounts), nil
}

func (s *PostgresStore) UpsertOpportunities(ctx context.Context, opptys []model.Opportunity) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert opportunities")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, o := range opptys {
		if _, err := tx.Exec(ctx,
			`INSERT INTO opportunities (id, name, account_id) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET name = $2, account_id = $3`,
			o.ID, o.Name, o.AccountID,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert opportunity %s", o.ID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert opportunities")
	}
	return len(opptys), nil
}

func (s *PostgresStore) ReplaceRenewals(ctx context.Context, renewals []model.RenewalRecord) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin replace renewals")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM renewals`); err != nil {
		return 0, eris.Wrap(err, "postgres: clear renewals")
	}
	for _, r := range renewals {
		key := r.NormalizedName
		if key == "" {
			key = reconcile.NormalizeName(r.OpportunityName)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO renewals (normalized_name, opportunity_name, renewal_date, stage, amount, csm, ae)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (normalized_name) DO NOTHING`,
			key, r.OpportunityName, r.RenewalDate, r.Stage, r.Amount, r.CSM, r.AE,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: insert renewal %q", r.OpportunityName)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit replace renewals")
	}
	return len(renewals), nil
}

func (s *PostgresStore) UpsertEmails(ctx context.Context, emails []model.EmailMessage) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert emails")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, m := range emails {
		if _, err := tx.Exec(ctx,
			`INSERT INTO emails (message_id, date, from_address, to_addresses, cc_addresses, subject, body_preview, account_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (message_id) DO UPDATE SET account_id = $8`,
			m.MessageID, m.Date.UTC(), m.FromAddress, toJSON(m.ToAddresses), toJSON(m.CcAddresses),
			m.Subject, m.BodyPreview, m.AccountID,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert email %s", m.MessageID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert emails")
	}
	return len(emails), nil
}

func (s *PostgresStore) UpsertEvents(ctx context.Context, events []model.CalendarEvent) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert events")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, ev := range events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (event_id, title, start, end_at, attendees, account_id, meeting_recap_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (event_id) DO UPDATE SET title = $2, start = $3, end_at = $4, attendees = $5, account_id = $6`,
			ev.EventID, ev.Title, ev.Start.UTC(), utcPtr(ev.End), toJSON(ev.Attendees),
			ev.AccountID, ev.MeetingRecapID,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert event %s", ev.EventID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert events")
	}
	return len(events), nil
}

func (s *PostgresStore) UpsertTasks(ctx context.Context, tasks []model.Task) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert tasks")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, task := range tasks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tasks (task_id, state, title, account_id) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (task_id) DO UPDATE SET state = $2, title = $3, account_id = $4`,
			task.TaskID, string(task.State), task.Title, task.AccountID,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert task %s", task.TaskID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert tasks")
	}
	return len(tasks), nil
}

func (s *PostgresStore) InsertRecap(ctx context.Context, recap model.MeetingRecap, items []model.ActionItem) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin insert recap")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`INSERT INTO recaps (recap_id, title, start, end_at, actual_attendees, invited_attendees, summary, account_id, calendar_event_id, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (recap_id) DO NOTHING`,
		recap.RecapID, recap.Title, recap.Start.UTC(), utcPtr(recap.End),
		toJSON(recap.ActualAttendees), toJSON(recap.InvitedAttendees),
		recap.Summary, recap.AccountID, recap.CalendarEventID, recap.ReceivedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert recap %s", recap.RecapID)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO action_items (recap_id, idx, title, description, priority, external_issue_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.RecapID, item.Index, item.Title, item.Description, item.Priority, item.ExternalIssueID,
		); err != nil {
			return false, eris.Wrapf(err, "postgres: insert action item %s/%d", item.RecapID, item.Index)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit insert recap")
	}
	return true, nil
}

func (s *PostgresStore) GetRecap(ctx context.Context, recapID string) (*model.MeetingRecap, error) {
	var r model.MeetingRecap
	var actual, invited []byte
	err := s.pool.QueryRow(ctx,
		`SELECT recap_id, title, start, end_at, actual_attendees, invited_attendees, summary, account_id, calendar_event_id, received_at
		 FROM recaps WHERE recap_id = $1`, recapID,
	).Scan(&r.RecapID, &r.Title, &r.Start, &r.End, &actual, &invited,
		&r.Summary, &r.AccountID, &r.CalendarEventID, &r.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get recap %s", recapID)
	}
	r.ActualAttendees = fromJSON[[]string](string(actual))
	r.InvitedAttendees = fromJSON[[]string](string(invited))
	return &r, nil
}

func (s *PostgresStore) ListRecaps(ctx context.Context) ([]model.MeetingRecap, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recap_id, title, start, end_at, actual_attendees, invited_attendees, summary, account_id, calendar_event_id, received_at
		 FROM recaps ORDER BY start, recap_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recaps")
	}
	defer rows.Close()

	var recaps []model.MeetingRecap
	for rows.Next() {
		var r model.MeetingRecap
		var actual, invited []byte
		if err := rows.Scan(&r.RecapID, &r.Title, &r.Start, &r.End, &actual, &invited,
			&r.Summary, &r.AccountID, &r.CalendarEventID, &r.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recap")
		}
		r.ActualAttendees = fromJSON[[]string](string(actual))
		r.InvitedAttendees = fromJSON[[]string](string(invited))
		recaps = append(recaps, r)
	}
	return recaps, eris.Wrap(rows.Err(), "postgres: list recaps iterate")
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, title, start, end_at, attendees, account_id, meeting_recap_id
		 FROM events ORDER BY start, event_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.CalendarEvent
	for rows.Next() {
		var ev model.CalendarEvent
		var attendees []byte
		if err := rows.Scan(&ev.EventID, &ev.Title, &ev.Start, &ev.End, &attendees,
			&ev.AccountID, &ev.MeetingRecapID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Attendees = fromJSON[[]model.Attendee](string(attendees))
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) ClearMatches(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin clear matches")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE recaps SET calendar_event_id = ''`); err != nil {
		return eris.Wrap(err, "postgres: clear recap links")
	}
	if _, err := tx.Exec(ctx, `UPDATE events SET meeting_recap_id = ''`); err != nil {
		return eris.Wrap(err, "postgres: clear event links")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit clear matches")
}

func (s *PostgresStore) LinkRecapEvent(ctx context.Context, recapID, eventID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin link")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE recaps SET calendar_event_id = $1 WHERE recap_id = $2`, eventID, recapID); err != nil {
		return eris.Wrapf(err, "postgres: link recap %s", recapID)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE events SET meeting_recap_id = $1 WHERE event_id = $2`, recapID, eventID); err != nil {
		return eris.Wrapf(err, "postgres: link event %s", eventID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit link")
}

func (s *PostgresStore) ReplaceDomainMappings(ctx context.Context, mappings []domainmap.Mapping) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin replace domain map")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM domain_map`); err != nil {
		return 0, eris.Wrap(err, "postgres: clear domain map")
	}
	for _, m := range mappings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO domain_map (domain, account_id, account_name) VALUES ($1, $2, $3)
			 ON CONFLICT (domain) DO UPDATE SET account_id = $2, account_name = $3`,
			m.Domain, m.AccountID, m.AccountName,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: insert domain %s", m.Domain)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit replace domain map")
	}
	return len(mappings), nil
}

func (s *PostgresStore) ListDomainMappings(ctx context.Context) ([]domainmap.Mapping, error) {
	rows, err := s.pool.Query(ctx, `SELECT domain, account_id, account_name FROM domain_map ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list domain map")
	}
	defer rows.Close()

	var mappings []domainmap.Mapping
	for rows.Next() {
		var m domainmap.Mapping
		if err := rows.Scan(&m.Domain, &m.AccountID, &m.AccountName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "postgres: list domain map iterate")
}

func (s *PostgresStore) ReplaceAccountViews(ctx context.Context, views []model.AccountView, exclusions []model.Exclusion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace views")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM account_views`); err != nil {
		return eris.Wrap(err, "postgres: clear views")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM exclusions`); err != nil {
		return eris.Wrap(err, "postgres: clear exclusions")
	}

	for i, v := range views {
		data, err := json.Marshal(v)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal view %s", v.AccountID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO account_views (account_id, ord, data, content_hash, built_at) VALUES ($1, $2, $3, $4, $5)`,
			v.AccountID, i, data, v.ContentHash, v.BuiltAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert view %s", v.AccountID)
		}
	}
	for _, e := range exclusions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exclusions (account_id, account_name, reason, detail) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (account_id) DO UPDATE SET reason = $3, detail = $4`,
			e.AccountID, e.AccountName, string(e.Reason), e.Detail,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert exclusion %s", e.AccountID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace views")
}

func (s *PostgresStore) ListAccountViews(ctx context.Context) ([]model.AccountView, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM account_views ORDER BY ord`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list views")
	}
	defer rows.Close()

	var views []model.AccountView
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan view")
		}
		var v model.AccountView
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal view")
		}
		views = append(views, v)
	}
	return views, eris.Wrap(rows.Err(), "postgres: list views iterate")
}

func (s *PostgresStore) ListExclusions(ctx context.Context) ([]model.Exclusion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, account_name, reason, detail FROM exclusions ORDER BY account_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list exclusions")
	}
	defer rows.Close()

	var exclusions []model.Exclusion
	for rows.Next() {
		var e model.Exclusion
		var reason string
		if err := rows.Scan(&e.AccountID, &e.AccountName, &reason, &e.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exclusion")
		}
		e.Reason = model.ExclusionReason(reason)
		exclusions = append(exclusions, e)
	}
	return exclusions, eris.Wrap(rows.Err(), "postgres: list exclusions iterate")
}

func (s *PostgresStore) ListUnsyncedActionItems(ctx context.Context) ([]PendingActionItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ai.recap_id, ai.idx, ai.title, ai.description, ai.priority,
		        r.title, r.start, r.summary, r.account_id, COALESCE(a.name, '')
		 FROM action_items ai
		 JOIN recaps r ON r.recap_id = ai.recap_id
		 LEFT JOIN accounts a ON a.id = r.account_id
		 WHERE ai.external_issue_id = ''
		 ORDER BY r.start, ai.recap_id, ai.idx`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unsynced action items")
	}
	defer rows.Close()

	var pending []PendingActionItem
	for rows.Next() {
		var p PendingActionItem
		if err := rows.Scan(&p.Item.RecapID, &p.Item.Index, &p.Item.Title, &p.Item.Description,
			&p.Item.Priority, &p.Recap.Title, &p.Recap.Start, &p.Recap.Summary, &p.Recap.AccountID,
			&p.AccountName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending action item")
		}
		p.Recap.RecapID = p.Item.RecapID
		pending = append(pending, p)
	}
	return pending, eris.Wrap(rows.Err(), "postgres: list unsynced iterate")
}

func (s *PostgresStore) MarkActionItemSynced(ctx context.Context, recapID string, index int, externalIssueID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE action_items SET external_issue_id = $1 WHERE recap_id = $2 AND idx = $3`,
		externalIssueID, recapID, index)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark action item synced %s/%d", recapID, index)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: action item %s/%d not found", recapID, index)
	}
	return nil
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context) (*reconcile.Snapshot, error) {
	snap := &reconcile.Snapshot{}

	var err error
	if snap.Accounts, err = s.listAccounts(ctx); err != nil {
		return nil, err
	}
	if snap.Opportunities, err = s.listOpportunities(ctx); err != nil {
		return nil, err
	}
	if snap.Renewals, err = s.listRenewals(ctx); err != nil {
		return nil, err
	}

	if snap.Emails, err = s.listEmails(ctx); err != nil {
		zap.L().Warn("postgres: email table unavailable, aggregate degraded", zap.Error(err))
		snap.Emails = nil
	}
	if snap.Events, err = s.ListEvents(ctx); err != nil {
		zap.L().Warn("postgres: event table unavailable, aggregate degraded", zap.Error(err))
		snap.Events = nil
	}
	if snap.Tasks, err = s.listTasks(ctx); err != nil {
		zap.L().Warn("postgres: task table unavailable, aggregate degraded", zap.Error(err))
		snap.Tasks = nil
	}
	if snap.Recaps, err = s.ListRecaps(ctx); err != nil {
		zap.L().Warn("postgres: recap table unavailable, aggregate degraded", zap.Error(err))
		snap.Recaps = nil
	}
	if snap.ActionItems, err = s.listActionItems(ctx); err != nil {
		zap.L().Warn("postgres: action item table unavailable, aggregate degraded", zap.Error(err))
		snap.ActionItems = nil
	}

	return snap, nil
}

func (s *PostgresStore) listAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, next_renewal_opportunity_id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.NextRenewalOpportunityID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, eris.Wrap(rows.Err(), "postgres: list accounts iterate")
}

func (s *PostgresStore) listOpportunities(ctx context.Context) ([]model.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, account_id FROM opportunities ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var opptys []model.Opportunity
	for rows.Next() {
		var o model.Opportunity
		if err := rows.Scan(&o.ID, &o.Name, &o.AccountID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opportunity")
		}
		opptys = append(opptys, o)
	}
	return opptys, eris.Wrap(rows.Err(), "postgres: list opportunities iterate")
}

func (s *PostgresStore) listRenewals(ctx context.Context) ([]model.RenewalRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT normalized_name, opportunity_name, renewal_date, stage, amount, csm, ae FROM renewals`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list renewals")
	}
	defer rows.Close()

	var renewals []model.RenewalRecord
	for rows.Next() {
		var r model.RenewalRecord
		if err := rows.Scan(&r.NormalizedName, &r.OpportunityName, &r.RenewalDate, &r.Stage, &r.Amount, &r.CSM, &r.AE); err != nil {
			return nil, eris.Wrap(err, "postgres: scan renewal")
		}
		renewals = append(renewals, r)
	}
	return renewals, eris.Wrap(rows.Err(), "postgres: list renewals iterate")
}

func (s *PostgresStore) listEmails(ctx context.Context) ([]model.EmailMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, date, from_address, to_addresses, cc_addresses, subject, body_preview, account_id
		 FROM emails ORDER BY date`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list emails")
	}
	defer rows.Close()

	var emails []model.EmailMessage
	for rows.Next() {
		var m model.EmailMessage
		var to, cc []byte
		if err := rows.Scan(&m.MessageID, &m.Date, &m.FromAddress, &to, &cc, &m.Subject, &m.BodyPreview, &m.AccountID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email")
		}
		m.ToAddresses = fromJSON[[]string](string(to))
		m.CcAddresses = fromJSON[[]string](string(cc))
		emails = append(emails, m)
	}
	return emails, eris.Wrap(rows.Err(), "postgres: list emails iterate")
}

func (s *PostgresStore) listTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT task_id, state, title, account_id FROM tasks ORDER BY task_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var task model.Task
		var state string
		if err := rows.Scan(&task.TaskID, &state, &task.Title, &task.AccountID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		task.State = model.TaskState(state)
		tasks = append(tasks, task)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s *PostgresStore) listActionItems(ctx context.Context) ([]model.ActionItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recap_id, idx, title, description, priority, external_issue_id FROM action_items ORDER BY recap_id, idx`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list action items")
	}
	defer rows.Close()

	var items []model.ActionItem
	for rows.Next() {
		var item model.ActionItem
		if err := rows.Scan(&item.RecapID, &item.Index, &item.Title, &item.Description, &item.Priority, &item.ExternalIssueID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list action items iterate")
}

func (s *PostgresStore) StartRun(ctx context.Context, job string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_log (id, job, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, job, string(model.RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start run %s", job)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE run_log SET status = $1, completed_at = $2, built = $3, excluded = $4, skipped = $5, errors = $6
		 WHERE id = $7`,
		string(model.RunComplete), time.Now().UTC(),
		counters.Built, counters.Excluded, counters.Skipped, counters.Errors, runID,
	)
	return eris.Wrapf(err, "postgres: complete run %s", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE run_log SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.RunFailed), time.Now().UTC(), errMsg, runID,
	)
	return eris.Wrapf(err, "postgres: fail run %s", runID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job, status, started_at, completed_at, built, excluded, skipped, errors, error
		 FROM run_log ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var entries []model.RunEntry
	for rows.Next() {
		var e model.RunEntry
		var status string
		if err := rows.Scan(&e.ID, &e.Job, &status, &e.StartedAt, &e.CompletedAt,
			&e.Counters.Built, &e.Counters.Excluded, &e.Counters.Skipped, &e.Counters.Errors, &e.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run entry")
		}
		e.Status = model.RunStatus(status)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
