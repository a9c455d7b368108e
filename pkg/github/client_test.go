package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/resilience"
)

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq IssueRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Issue{Number: 42, HTMLURL: "https://github.com/o/r/issues/42"})
	}))
	defer srv.Close()

	c := NewClient("tok-123", WithBaseURL(srv.URL))
	issue, err := c.CreateIssue(context.Background(), "o", "r", IssueRequest{
		Title:  "Send proposal",
		Body:   "details",
		Labels: []string{"account:Acme Corp"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/repos/o/r/issues", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "Send proposal", gotReq.Title)
	assert.Equal(t, []string{"account:Acme Corp"}, gotReq.Labels)
	assert.Equal(t, 42, issue.Number)
}

func TestCreateIssueSecondaryRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"You have exceeded a secondary rate limit"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	_, err := c.CreateIssue(context.Background(), "o", "r", IssueRequest{Title: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestCreateIssueValidationErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	_, err := c.CreateIssue(context.Background(), "o", "r", IssueRequest{Title: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "422")
}

func TestCreateIssueServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	_, err := c.CreateIssue(context.Background(), "o", "r", IssueRequest{Title: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
