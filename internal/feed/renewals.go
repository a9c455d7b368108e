package feed

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/fetcher"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/reconcile"
	"github.com/sells-group/accountsync/internal/store"
)

// renewalColumns maps recognized header names (lower-cased) to field slots.
type renewalColumns struct {
	name   int
	date   int
	stage  int
	amount int
	csm    int
	ae     int
}

func resolveRenewalColumns(header []string) (renewalColumns, error) {
	cols := renewalColumns{name: -1, date: -1, stage: -1, amount: -1, csm: -1, ae: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "opportunity name", "opportunity", "name":
			cols.name = i
		case "renewal date", "close date", "date":
			cols.date = i
		case "stage":
			cols.stage = i
		case "amount", "arr":
			cols.amount = i
		case "csm":
			cols.csm = i
		case "ae", "account executive":
			cols.ae = i
		}
	}
	if cols.name == -1 {
		return cols, eris.New("feed: renewal feed has no opportunity name column")
	}
	return cols, nil
}

var renewalDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
	"1-2-06",
}

func parseRenewalDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range renewalDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func rowsToRenewals(rows [][]string) ([]model.RenewalRecord, error) {
	if len(rows) == 0 {
		return nil, eris.New("feed: empty renewal feed")
	}
	cols, err := resolveRenewalColumns(rows[0])
	if err != nil {
		return nil, err
	}

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var renewals []model.RenewalRecord
	for _, row := range rows[1:] {
		name := cell(row, cols.name)
		if name == "" {
			continue
		}
		renewals = append(renewals, model.RenewalRecord{
			OpportunityName: name,
			NormalizedName:  reconcile.NormalizeName(name),
			RenewalDate:     parseRenewalDate(cell(row, cols.date)),
			Stage:           cell(row, cols.stage),
			Amount:          parseAmount(cell(row, cols.amount)),
			CSM:             cell(row, cols.csm),
			AE:              cell(row, cols.ae),
		})
	}
	return renewals, nil
}

// ParseRenewalsCSV reads the renewal tracking feed from CSV. The first row is
// the header; column order is resolved by name, not position.
func ParseRenewalsCSV(r io.Reader) ([]model.RenewalRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "feed: read renewal csv")
	}
	return rowsToRenewals(rows)
}

// ParseRenewalsXLSX reads the renewal tracking feed from the first sheet of
// an XLSX workbook.
func ParseRenewalsXLSX(data []byte) ([]model.RenewalRecord, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open renewal xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("feed: renewal xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rowsToRenewals(rows)
}

// ImportRenewals fetches the renewal feed from a local path, http(s) URL, or
// ftp URL and replaces the stored snapshot. The format is chosen by file
// extension; anything that is not .xlsx is treated as CSV.
func ImportRenewals(ctx context.Context, st store.Store, source string) (int, error) {
	rc, err := fetcher.Open(ctx, source)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var renewals []model.RenewalRecord
	if strings.HasSuffix(strings.ToLower(strings.TrimSuffix(source, "/")), ".xlsx") {
		data, err := io.ReadAll(rc)
		if err != nil {
			return 0, eris.Wrap(err, "feed: read renewal source")
		}
		renewals, err = ParseRenewalsXLSX(data)
		if err != nil {
			return 0, err
		}
	} else {
		renewals, err = ParseRenewalsCSV(rc)
		if err != nil {
			return 0, err
		}
	}

	n, err := st.ReplaceRenewals(ctx, renewals)
	if err != nil {
		return 0, err
	}
	zap.L().Info("feed: renewal feed imported", zap.String("source", source), zap.Int("rows", n))
	return n, nil
}
