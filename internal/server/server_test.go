package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/recap"
	"github.com/sells-group/accountsync/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mapper := domainmap.NewMapper([]domainmap.Mapping{
		{Domain: "acme.com", AccountID: "001A", AccountName: "Acme Corp"},
	}, "sells.example")

	srv := httptest.NewServer(New(recap.NewService(st, mapper)).Router())
	t.Cleanup(srv.Close)
	return srv
}

const recapBody = `{
	"meetingInfo": {
		"meetingLink": "https://meet.example.com/recaps/rec-1",
		"title": "Quarterly Review",
		"startTime": "2026-03-10T15:00:00Z"
	},
	"attendees": {
		"actual": ["jane@acme.com"],
		"invited": ["jane@acme.com", "csm@sells.example"]
	},
	"actionItems": {
		"myItems": [{"title": "Send proposal", "priority": "high"}],
		"othersItems": []
	},
	"summary": "Discussed renewal."
}`

func postRecap(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/recaps?type=meeting_recap", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestRecapWebhookCreated(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postRecap(t, srv, recapBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "created", body["action"])
	assert.Equal(t, "rec-1", body["meetingRecapId"])
}

func TestRecapWebhookDuplicateSkipped(t *testing.T) {
	srv := newTestServer(t)

	_, first := postRecap(t, srv, recapBody)
	require.Equal(t, "created", first["action"])

	resp, second := postRecap(t, srv, recapBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["success"])
	assert.Equal(t, "skipped", second["action"])
	assert.Equal(t, "rec-1", second["meetingRecapId"])
}

func TestRecapWebhookMalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postRecap(t, srv, `{"meetingInfo": `)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestRecapWebhookWrongType(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/recaps?type=call_summary", "application/json", strings.NewReader(recapBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecapWebhookMissingLink(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postRecap(t, srv, `{"meetingInfo": {"title": "No Link"}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}
