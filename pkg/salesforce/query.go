package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account is the registry subset of a Salesforce Account record.
type Account struct {
	ID                       string `json:"Id" salesforce:"Id"`
	Name                     string `json:"Name" salesforce:"Name"`
	NextRenewalOpportunityID string `json:"NextRenewalOpportunity__c" salesforce:"NextRenewalOpportunity__c"`
}

// Opportunity is the registry subset of a Salesforce Opportunity record.
type Opportunity struct {
	ID        string `json:"Id" salesforce:"Id"`
	Name      string `json:"Name" salesforce:"Name"`
	AccountID string `json:"AccountId" salesforce:"AccountId"`
}

var accountFields = []string{"Id", "Name", "NextRenewalOpportunity__c"}

var opportunityFields = []string{"Id", "Name", "AccountId"}

// FetchAccounts queries every Account in the org.
func FetchAccounts(ctx context.Context, c Client) ([]Account, error) {
	soql := fmt.Sprintf("SELECT %s FROM Account", strings.Join(accountFields, ", "))

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, "sf: fetch accounts")
	}
	return accounts, nil
}

// FetchOpportunities queries every Opportunity in the org.
func FetchOpportunities(ctx context.Context, c Client) ([]Opportunity, error) {
	soql := fmt.Sprintf("SELECT %s FROM Opportunity", strings.Join(opportunityFields, ", "))

	var opptys []Opportunity
	if err := c.Query(ctx, soql, &opptys); err != nil {
		return nil, eris.Wrap(err, "sf: fetch opportunities")
	}
	return opptys, nil
}
