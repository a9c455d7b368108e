// Package store persists the source tables, derived account views, and run
// log behind a driver-agnostic interface.
package store

import (
	"context"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/reconcile"
)

// PendingActionItem is an action item not yet pushed to the issue tracker,
// joined with the recap and account context the tracker issue body needs.
type PendingActionItem struct {
	Item        model.ActionItem   `json:"item"`
	Recap       model.MeetingRecap `json:"recap"`
	AccountName string             `json:"account_name"`
}

// Store defines the persistence interface for the consolidation pipeline.
//
// Upserts are idempotent on the entity's natural key. InsertRecap is the
// ingestion dedup point: a second insert of the same recap id is a no-op
// reported as created=false. View replacement and match writes are
// transactional so a failed rebuild never leaves partial rows.
type Store interface {
	// Source feeds
	UpsertAccounts(ctx context.Context, accounts []model.Account) (int, error)
	UpsertOpportunities(ctx context.Context, opptys []model.Opportunity) (int, error)
	ReplaceRenewals(ctx context.Context, renewals []model.RenewalRecord) (int, error)
	UpsertEmails(ctx context.Context, emails []model.EmailMessage) (int, error)
	UpsertEvents(ctx context.Context, events []model.CalendarEvent) (int, error)
	UpsertTasks(ctx context.Context, tasks []model.Task) (int, error)

	// Recaps
	InsertRecap(ctx context.Context, recap model.MeetingRecap, items []model.ActionItem) (bool, error)
	GetRecap(ctx context.Context, recapID string) (*model.MeetingRecap, error)
	ListRecaps(ctx context.Context) ([]model.MeetingRecap, error)
	ListEvents(ctx context.Context) ([]model.CalendarEvent, error)

	// Recap/event cross-references (owned by the matcher)
	ClearMatches(ctx context.Context) error
	LinkRecapEvent(ctx context.Context, recapID, eventID string) error

	// Operator domain map
	ReplaceDomainMappings(ctx context.Context, mappings []domainmap.Mapping) (int, error)
	ListDomainMappings(ctx context.Context) ([]domainmap.Mapping, error)

	// Derived views
	ReplaceAccountViews(ctx context.Context, views []model.AccountView, exclusions []model.Exclusion) error
	ListAccountViews(ctx context.Context) ([]model.AccountView, error)
	ListExclusions(ctx context.Context) ([]model.Exclusion, error)

	// Issue-tracker sync
	ListUnsyncedActionItems(ctx context.Context) ([]PendingActionItem, error)
	MarkActionItemSynced(ctx context.Context, recapID string, index int, externalIssueID string) error

	// Rebuild input
	LoadSnapshot(ctx context.Context) (*reconcile.Snapshot, error)

	// Run log
	StartRun(ctx context.Context, job string) (string, error)
	CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]model.RunEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
