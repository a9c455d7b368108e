package feed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/accountsync/internal/store"
)

const renewalCSV = `Opportunity Name,Renewal Date,Stage,Amount,CSM,AE
Acme  Corp - Renewal,2026-10-01,Open,"$12,000.50",Dana,Lee
Globex - Renewal,,Open,8000,,
,2026-01-01,Open,1,x,y
`

func TestParseRenewalsCSV(t *testing.T) {
	renewals, err := ParseRenewalsCSV(strings.NewReader(renewalCSV))
	require.NoError(t, err)
	require.Len(t, renewals, 2)

	first := renewals[0]
	assert.Equal(t, "Acme  Corp - Renewal", first.OpportunityName)
	// normalization collapses runs of whitespace for the join key
	assert.Equal(t, "Acme Corp - Renewal", first.NormalizedName)
	require.NotNil(t, first.RenewalDate)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), *first.RenewalDate)
	assert.Equal(t, "Open", first.Stage)
	assert.Equal(t, 12000.50, first.Amount)
	assert.Equal(t, "Dana", first.CSM)
	assert.Equal(t, "Lee", first.AE)

	second := renewals[1]
	assert.Nil(t, second.RenewalDate)
	assert.Equal(t, float64(8000), second.Amount)
}

func TestParseRenewalsCSVColumnOrderIrrelevant(t *testing.T) {
	csvData := "Stage,Amount,Opportunity Name\nOpen,100,Acme - Renewal\n"
	renewals, err := ParseRenewalsCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, renewals, 1)
	assert.Equal(t, "Acme - Renewal", renewals[0].OpportunityName)
	assert.Equal(t, float64(100), renewals[0].Amount)
}

func TestParseRenewalsCSVMissingNameColumn(t *testing.T) {
	_, err := ParseRenewalsCSV(strings.NewReader("Stage,Amount\nOpen,100\n"))
	assert.Error(t, err)
}

func TestParseRenewalsDateFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want *time.Time
	}{
		{raw: "2026-10-01", want: timePtr(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))},
		{raw: "10/01/2026", want: timePtr(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))},
		{raw: "not a date", want: nil},
		{raw: "", want: nil},
	}
	for _, tt := range tests {
		got := parseRenewalDate(tt.raw)
		if tt.want == nil {
			assert.Nil(t, got, tt.raw)
		} else {
			require.NotNil(t, got, tt.raw)
			assert.Equal(t, *tt.want, *got)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func buildXLSX(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Renewals")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseRenewalsXLSX(t *testing.T) {
	data := buildXLSX(t, [][]string{
		{"Opportunity Name", "Renewal Date", "Stage", "Amount"},
		{"Acme Corp - Renewal", "2026-10-01", "Open", "12000"},
	})

	renewals, err := ParseRenewalsXLSX(data)
	require.NoError(t, err)
	require.Len(t, renewals, 1)
	assert.Equal(t, "Acme Corp - Renewal", renewals[0].OpportunityName)
	require.NotNil(t, renewals[0].RenewalDate)
	assert.Equal(t, float64(12000), renewals[0].Amount)
}

func TestImportRenewalsFromFile(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "feed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	path := filepath.Join(t.TempDir(), "renewals.csv")
	require.NoError(t, os.WriteFile(path, []byte(renewalCSV), 0o644))

	n, err := ImportRenewals(ctx, st, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := st.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Renewals, 2)
}
