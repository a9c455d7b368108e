// Package feed ingests source tables: CRM registry feeds, the renewal
// tracking sheet, and activity exports.
package feed

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/store"
	"github.com/sells-group/accountsync/pkg/salesforce"
)

// SyncSalesforce pulls the account and opportunity registry feeds and upserts
// them. Feeds are authoritative for identity fields only; derived views are
// rebuilt separately.
func SyncSalesforce(ctx context.Context, client salesforce.Client, st store.Store) (model.RunCounters, error) {
	var counters model.RunCounters

	sfAccounts, err := salesforce.FetchAccounts(ctx, client)
	if err != nil {
		return counters, err
	}
	accounts := make([]model.Account, 0, len(sfAccounts))
	for _, a := range sfAccounts {
		accounts = append(accounts, model.Account{
			ID:                       a.ID,
			Name:                     a.Name,
			NextRenewalOpportunityID: a.NextRenewalOpportunityID,
		})
	}
	n, err := st.UpsertAccounts(ctx, accounts)
	if err != nil {
		return counters, eris.Wrap(err, "feed: store accounts")
	}
	counters.Built += n

	sfOpptys, err := salesforce.FetchOpportunities(ctx, client)
	if err != nil {
		return counters, err
	}
	opptys := make([]model.Opportunity, 0, len(sfOpptys))
	for _, o := range sfOpptys {
		opptys = append(opptys, model.Opportunity{
			ID:        o.ID,
			Name:      o.Name,
			AccountID: o.AccountID,
		})
	}
	n, err = st.UpsertOpportunities(ctx, opptys)
	if err != nil {
		return counters, eris.Wrap(err, "feed: store opportunities")
	}
	counters.Built += n

	zap.L().Info("feed: salesforce sync complete",
		zap.Int("accounts", len(accounts)),
		zap.Int("opportunities", len(opptys)),
	)
	return counters, nil
}
