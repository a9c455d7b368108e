package domainmap

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// csvColumns are the header names the CSV loader requires. Column positions
// are resolved once from the header row, never assumed.
var csvColumns = []string{"accountId", "accountName", "domains"}

// LoadCSV reads operator domain mappings from a CSV with columns
// accountId, accountName, domains. The domains cell is a comma-separated
// list; one Mapping is produced per domain. Header matching is
// case-insensitive.
func LoadCSV(r io.Reader) ([]Mapping, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "domainmap: read csv header")
	}

	idx := make(map[string]int, len(csvColumns))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			return nil, eris.Errorf("domainmap: csv missing required column %q", col)
		}
	}
	idID := idx["accountid"]
	idName := idx["accountname"]
	idDomains := idx["domains"]

	var mappings []Mapping
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "domainmap: read csv row")
		}
		if len(row) <= idDomains || len(row) <= idID || len(row) <= idName {
			continue
		}

		accountID := strings.TrimSpace(row[idID])
		accountName := strings.TrimSpace(row[idName])
		if accountID == "" {
			continue
		}

		for _, domain := range strings.Split(row[idDomains], ",") {
			domain = strings.ToLower(strings.TrimSpace(domain))
			if domain == "" {
				continue
			}
			mappings = append(mappings, Mapping{
				Domain:      domain,
				AccountID:   accountID,
				AccountName: accountName,
			})
		}
	}

	return mappings, nil
}

// yamlEntry is one account in the YAML mapping file.
type yamlEntry struct {
	AccountID   string   `yaml:"account_id"`
	AccountName string   `yaml:"account_name"`
	Domains     []string `yaml:"domains"`
}

// LoadYAML reads operator domain mappings from a YAML list of
// {account_id, account_name, domains: [...]} entries.
func LoadYAML(r io.Reader) ([]Mapping, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "domainmap: read yaml")
	}

	var entries []yamlEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "domainmap: parse yaml")
	}

	var mappings []Mapping
	for _, e := range entries {
		if e.AccountID == "" {
			continue
		}
		for _, domain := range e.Domains {
			domain = strings.ToLower(strings.TrimSpace(domain))
			if domain == "" {
				continue
			}
			mappings = append(mappings, Mapping{
				Domain:      domain,
				AccountID:   e.AccountID,
				AccountName: e.AccountName,
			})
		}
	}

	return mappings, nil
}
