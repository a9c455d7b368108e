package reconcile

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/accountsync/internal/model"
)

// Options bounds per-account aggregation during a rebuild.
type Options struct {
	MaxEmailsPerAccount int
	MaxPastEvents       int
	MaxFutureEvents     int
	Workers             int
	Now                 time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxEmailsPerAccount <= 0 {
		o.MaxEmailsPerAccount = 500
	}
	if o.MaxPastEvents <= 0 {
		o.MaxPastEvents = 50
	}
	if o.MaxFutureEvents <= 0 {
		o.MaxFutureEvents = 50
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	return o
}

// survivor is an account that passed both joins, with its resolved renewal.
type survivor struct {
	account model.Account
	oppty   model.Opportunity
	renewal model.RenewalRecord
}

// BuildAccountViews joins every account against the active renewal set and
// aggregates its activity into one denormalized view row. Accounts failing
// either join are returned as explicit exclusions rather than silently
// dropped. Views are ordered by renewal date ascending, undated renewals
// last.
func BuildAccountViews(ctx context.Context, snap *Snapshot, opts Options) ([]model.AccountView, []model.Exclusion, error) {
	opts = opts.withDefaults()

	active := activeSet(snap.Renewals)
	opptyByID := make(map[string]model.Opportunity, len(snap.Opportunities))
	for _, o := range snap.Opportunities {
		opptyByID[o.ID] = o
	}

	var survivors []survivor
	var exclusions []model.Exclusion
	for _, acct := range snap.Accounts {
		if acct.NextRenewalOpportunityID == "" {
			exclusions = append(exclusions, model.Exclusion{
				AccountID:   acct.ID,
				AccountName: acct.Name,
				Reason:      model.ExcludedNoNextRenewal,
			})
			continue
		}
		oppty, ok := opptyByID[acct.NextRenewalOpportunityID]
		if !ok {
			exclusions = append(exclusions, model.Exclusion{
				AccountID:   acct.ID,
				AccountName: acct.Name,
				Reason:      model.ExcludedOpportunityNotFound,
				Detail:      acct.NextRenewalOpportunityID,
			})
			continue
		}
		renewal, ok := active[NormalizeName(oppty.Name)]
		if !ok {
			exclusions = append(exclusions, model.Exclusion{
				AccountID:   acct.ID,
				AccountName: acct.Name,
				Reason:      model.ExcludedNotInActiveSet,
				Detail:      oppty.Name,
			})
			continue
		}
		survivors = append(survivors, survivor{account: acct, oppty: oppty, renewal: renewal})
	}

	agg := groupByAccount(snap)

	// Per-account aggregation is read-only over the shared snapshot, so the
	// fan-out is bounded but otherwise unsynchronized.
	views := make([]model.AccountView, len(survivors))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, s := range survivors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			views[i] = buildView(s, agg, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.SliceStable(views, func(i, j int) bool {
		di, dj := views[i].RenewalDate, views[j].RenewalDate
		switch {
		case di == nil && dj == nil:
			return views[i].AccountName < views[j].AccountName
		case di == nil:
			return false
		case dj == nil:
			return true
		case di.Equal(*dj):
			return views[i].AccountName < views[j].AccountName
		default:
			return di.Before(*dj)
		}
	})

	zap.L().Info("reconcile: views built",
		zap.Int("built", len(views)),
		zap.Int("excluded", len(exclusions)),
	)

	return views, exclusions, nil
}

// accountActivity holds all source rows grouped by resolved account id.
type accountActivity struct {
	emails      map[string][]model.EmailMessage
	events      map[string][]model.CalendarEvent
	tasks       map[string][]model.Task
	recaps      map[string][]model.MeetingRecap
	actionItems map[string][]model.ActionItem // keyed by recap id
}

func groupByAccount(snap *Snapshot) *accountActivity {
	agg := &accountActivity{
		emails:      make(map[string][]model.EmailMessage),
		events:      make(map[string][]model.CalendarEvent),
		tasks:       make(map[string][]model.Task),
		recaps:      make(map[string][]model.MeetingRecap),
		actionItems: make(map[string][]model.ActionItem),
	}
	for _, m := range snap.Emails {
		if m.AccountID != "" {
			agg.emails[m.AccountID] = append(agg.emails[m.AccountID], m)
		}
	}
	for _, ev := range snap.Events {
		if ev.AccountID != "" {
			agg.events[ev.AccountID] = append(agg.events[ev.AccountID], ev)
		}
	}
	for _, task := range snap.Tasks {
		if task.AccountID != "" {
			agg.tasks[task.AccountID] = append(agg.tasks[task.AccountID], task)
		}
	}
	for _, r := range snap.Recaps {
		if r.AccountID != "" {
			agg.recaps[r.AccountID] = append(agg.recaps[r.AccountID], r)
		}
	}
	for _, item := range snap.ActionItems {
		agg.actionItems[item.RecapID] = append(agg.actionItems[item.RecapID], item)
	}
	return agg
}

func buildView(s survivor, agg *accountActivity, opts Options) model.AccountView {
	emails := append([]model.EmailMessage(nil), agg.emails[s.account.ID]...)
	sort.Slice(emails, func(i, j int) bool { return emails[i].Date.After(emails[j].Date) })

	var past, future []model.CalendarEvent
	for _, ev := range agg.events[s.account.ID] {
		if ev.Start.Before(opts.Now) {
			past = append(past, ev)
		} else {
			future = append(future, ev)
		}
	}
	// Past events most recent first, future events soonest first.
	sort.Slice(past, func(i, j int) bool { return past[i].Start.After(past[j].Start) })
	sort.Slice(future, func(i, j int) bool { return future[i].Start.Before(future[j].Start) })

	tasks := agg.tasks[s.account.ID]
	recaps := agg.recaps[s.account.ID]

	var items []model.ActionItem
	for _, r := range recaps {
		items = append(items, agg.actionItems[r.RecapID]...)
	}

	// Metrics are computed over the full per-account activity; the caps only
	// bound what the view row carries.
	engagement := computeEngagement(emails, past, future, tasks, opts.Now)

	view := model.AccountView{
		AccountID:       s.account.ID,
		AccountName:     s.account.Name,
		OpportunityID:   s.oppty.ID,
		OpportunityName: s.oppty.Name,
		RenewalDate:     s.renewal.RenewalDate,
		Stage:           s.renewal.Stage,
		Amount:          s.renewal.Amount,
		CSM:             s.renewal.CSM,
		AE:              s.renewal.AE,
		Emails:          capSlice(emails, opts.MaxEmailsPerAccount),
		PastEvents:      capSlice(past, opts.MaxPastEvents),
		FutureEvents:    capSlice(future, opts.MaxFutureEvents),
		Tasks:           tasks,
		Recaps:          recaps,
		ActionItems:     items,
		Engagement:      engagement,
		BuiltAt:         opts.Now,
	}
	view.ContentHash = ContentHash(view)
	return view
}

func capSlice[T any](s []T, limit int) []T {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
