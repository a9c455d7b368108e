// Package reconcile joins the source tables into the consolidated account
// view: accounts against the active renewal set, plus per-account activity
// aggregates and engagement metrics.
package reconcile

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/accountsync/internal/model"
)

// Snapshot is an immutable in-memory copy of all source tables, taken once
// per rebuild. A missing source table is represented by an empty slice and
// degrades the corresponding aggregate to empty rather than aborting the run.
type Snapshot struct {
	Accounts      []model.Account
	Opportunities []model.Opportunity
	Renewals      []model.RenewalRecord
	Emails        []model.EmailMessage
	Events        []model.CalendarEvent
	Tasks         []model.Task
	Recaps        []model.MeetingRecap
	ActionItems   []model.ActionItem
}

// NormalizeName canonicalizes an opportunity display name for use as a join
// key: NFKC normalization, trimmed, with internal whitespace runs collapsed.
// Applied once at the ingestion boundary; never at query time.
func NormalizeName(name string) string {
	s := norm.NFKC.String(name)
	return strings.Join(strings.Fields(s), " ")
}

// activeSet returns the normalized opportunity names present in the renewal
// feed, each mapped to its renewal record. The first record for a name wins.
func activeSet(renewals []model.RenewalRecord) map[string]model.RenewalRecord {
	set := make(map[string]model.RenewalRecord, len(renewals))
	for _, r := range renewals {
		key := r.NormalizedName
		if key == "" {
			key = NormalizeName(r.OpportunityName)
		}
		if _, ok := set[key]; !ok {
			set[key] = r
		}
	}
	return set
}
