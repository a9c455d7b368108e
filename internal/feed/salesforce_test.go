package feed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/store"
	"github.com/sells-group/accountsync/pkg/salesforce"
)

type fakeSalesforce struct {
	accounts []salesforce.Account
	opptys   []salesforce.Opportunity
	err      error
}

func (f *fakeSalesforce) Query(_ context.Context, soql string, out any) error {
	if f.err != nil {
		return f.err
	}
	switch {
	case strings.Contains(soql, "FROM Account"):
		*out.(*[]salesforce.Account) = f.accounts
	case strings.Contains(soql, "FROM Opportunity"):
		*out.(*[]salesforce.Opportunity) = f.opptys
	}
	return nil
}

func TestSyncSalesforce(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	client := &fakeSalesforce{
		accounts: []salesforce.Account{
			{ID: "001A", Name: "Acme Corp", NextRenewalOpportunityID: "006A"},
			{ID: "001B", Name: "Globex"},
		},
		opptys: []salesforce.Opportunity{
			{ID: "006A", Name: "Acme Corp - Renewal", AccountID: "001A"},
		},
	}

	counters, err := SyncSalesforce(ctx, client, st)
	require.NoError(t, err)
	assert.Equal(t, 3, counters.Built)

	snap, err := st.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Accounts, 2)
	require.Len(t, snap.Opportunities, 1)
	assert.Equal(t, "006A", snap.Opportunities[0].ID)
}

func TestSyncSalesforceQueryError(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	client := &fakeSalesforce{err: eris.New("api down")}
	_, err = SyncSalesforce(context.Background(), client, st)
	assert.Error(t, err)
}
