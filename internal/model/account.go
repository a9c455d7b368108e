// Package model defines the core data structures for account consolidation.
package model

import "time"

// Account is a persistent customer entity, independent of any single deal.
// Accounts are refreshed from the external account feed and never deleted.
type Account struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	NextRenewalOpportunityID string `json:"next_renewal_opportunity_id,omitempty"`
}

// Opportunity is an immutable sales/renewal deal snapshot from the external
// opportunity feed. Many opportunities may reference the same account
// historically; only one is the next renewal.
type Opportunity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccountID string `json:"account_id,omitempty"`
}

// RenewalRecord is a row from the renewal tracking feed, keyed by opportunity
// display name. The name key is normalized once at import time; it is never
// used as a raw runtime join key.
type RenewalRecord struct {
	OpportunityName string     `json:"opportunity_name"`
	NormalizedName  string     `json:"normalized_name"`
	RenewalDate     *time.Time `json:"renewal_date,omitempty"`
	Stage           string     `json:"stage,omitempty"`
	Amount          float64    `json:"amount,omitempty"`
	CSM             string     `json:"csm,omitempty"`
	AE              string     `json:"ae,omitempty"`
}

// ExclusionReason explains why an account was dropped from the reconciled view.
type ExclusionReason string

const (
	ExcludedNoNextRenewal       ExclusionReason = "no_next_renewal"
	ExcludedOpportunityNotFound ExclusionReason = "opportunity_not_found"
	ExcludedNotInActiveSet      ExclusionReason = "not_in_active_set"
)

// Exclusion records an account that failed a reconciliation join. Exclusions
// are part of the primary rebuild output, not a separate forensic tool.
type Exclusion struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Reason      ExclusionReason `json:"reason"`
	Detail      string          `json:"detail,omitempty"`
}
