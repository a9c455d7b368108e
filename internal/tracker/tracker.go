// Package tracker pushes meeting action items to an external issue tracker.
package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/accountsync/internal/store"
)

// Issue is a tracker-agnostic issue to create.
type Issue struct {
	Title  string
	Body   string
	Labels []string
}

// Tracker creates issues in a concrete backend. CreateIssue returns the
// backend's external id, which the store records to keep the sync idempotent.
type Tracker interface {
	CreateIssue(ctx context.Context, issue Issue) (string, error)
}

// BuildIssue renders one pending action item as a tracker issue: the item's
// description followed by a meeting context block, labelled with the
// resolved account.
func BuildIssue(p store.PendingActionItem) Issue {
	var b strings.Builder
	if p.Item.Description != "" {
		b.WriteString(p.Item.Description)
		b.WriteString("\n\n")
	}
	if p.Item.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n\n", p.Item.Priority)
	}

	b.WriteString("## Meeting\n\n")
	fmt.Fprintf(&b, "- Title: %s\n", p.Recap.Title)
	if !p.Recap.Start.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", p.Recap.Start.UTC().Format("2006-01-02 15:04 MST"))
	}
	if p.AccountName != "" {
		fmt.Fprintf(&b, "- Account: %s\n", p.AccountName)
	}
	if p.Recap.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Recap.Summary)
	}

	issue := Issue{
		Title: p.Item.Title,
		Body:  b.String(),
	}
	if p.AccountName != "" {
		issue.Labels = append(issue.Labels, "account:"+p.AccountName)
	}
	return issue
}
