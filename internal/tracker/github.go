package tracker

import (
	"context"
	"fmt"

	"github.com/sells-group/accountsync/pkg/github"
)

// GitHubTracker creates issues in a GitHub repository. External ids are
// recorded as "owner/repo#number".
type GitHubTracker struct {
	client github.Client
	owner  string
	repo   string
}

func NewGitHubTracker(client github.Client, owner, repo string) *GitHubTracker {
	return &GitHubTracker{client: client, owner: owner, repo: repo}
}

func (t *GitHubTracker) CreateIssue(ctx context.Context, issue Issue) (string, error) {
	created, err := t.client.CreateIssue(ctx, t.owner, t.repo, github.IssueRequest{
		Title:  issue.Title,
		Body:   issue.Body,
		Labels: issue.Labels,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s#%d", t.owner, t.repo, created.Number), nil
}
