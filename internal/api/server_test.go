package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronflow/internal/domain"
	"cronflow/internal/engine"
	"cronflow/internal/executor"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(executor.Stub{Result: "ok"}, nil)
	srv := httptest.NewServer(NewServer(eng))
	t.Cleanup(srv.Close)
	return srv, eng
}

func postJob(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/jobs", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAddAndGetJob(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJob(t, srv, `{"name":"backup","schedule":"*/5 * * * *","command":"pg_dump mydb","timeout_ms":2000}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created addJobResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Empty(t, created.LintWarning)
	assert.Equal(t, "backup", created.Job.Name)
	assert.Equal(t, domain.StatusIdle, created.Job.Status)

	get, err := http.Get(srv.URL + "/api/jobs/" + created.Job.ID)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, 200, get.StatusCode)

	var got domain.Job
	require.NoError(t, json.NewDecoder(get.Body).Decode(&got))
	assert.Equal(t, created.Job.ID, got.ID)
}

func TestAddJobRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	for name, body := range map[string]string{
		"missing name":     `{"schedule":"* * * * *","command":"true"}`,
		"missing command":  `{"name":"a","schedule":"* * * * *"}`,
		"four fields":      `{"name":"a","schedule":"* * * *","command":"true"}`,
		"not json":         `{`,
		"missing schedule": `{"name":"a","command":"true"}`,
	} {
		resp := postJob(t, srv, body)
		assert.Equal(t, 400, resp.StatusCode, name)
	}
}

func TestAddJobLintWarning(t *testing.T) {
	srv, _ := newTestServer(t)

	// Accepted by the lenient grammar, invalid as standard cron.
	resp := postJob(t, srv, `{"name":"odd","schedule":"99 * * * *","command":"true"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created addJobResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Contains(t, created.LintWarning, "not standard cron")
}

func TestListToggleDelete(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJob(t, srv, `{"name":"a","schedule":"* * * * *","command":"true"}`)
	var created addJobResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	id := created.Job.ID

	list, err := http.Get(srv.URL + "/api/jobs")
	require.NoError(t, err)
	defer list.Body.Close()
	var jobs []domain.Job
	require.NoError(t, json.NewDecoder(list.Body).Decode(&jobs))
	require.Len(t, jobs, 1)

	tog, err := http.Post(srv.URL+"/api/jobs/"+id+"/toggle", "application/json", nil)
	require.NoError(t, err)
	defer tog.Body.Close()
	var toggled domain.Job
	require.NoError(t, json.NewDecoder(tog.Body).Decode(&toggled))
	assert.False(t, toggled.Enabled)
	assert.Equal(t, domain.StatusDisabled, toggled.Status)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/jobs/"+id, nil)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing, err := http.Get(srv.URL + "/api/jobs/" + id)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, 404, missing.StatusCode)
}

func TestJobHistoryEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJob(t, srv, `{"name":"a","schedule":"* * * * *","command":"true"}`)
	var created addJobResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	hist, err := http.Get(srv.URL + "/api/jobs/" + created.Job.ID + "/history")
	require.NoError(t, err)
	defer hist.Body.Close()
	require.Equal(t, 200, hist.StatusCode)

	var recs []domain.ExecutionRecord
	require.NoError(t, json.NewDecoder(hist.Body).Decode(&recs))
	assert.Empty(t, recs)
}

func TestEventsStream(t *testing.T) {
	srv, eng := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap struct {
		Type string       `json:"type"`
		Jobs []domain.Job `json:"jobs"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "snapshot", snap.Type)
	assert.Empty(t, snap.Jobs)

	j, err := eng.AddJob("a", "* * * * *", "true", 1000)
	require.NoError(t, err)

	var ev engine.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, engine.EventJobAdded, ev.Type)
	assert.Equal(t, j.ID, ev.Job.ID)

	// A dispatch pushes the running transition, then the settle record.
	eng.Tick(time.Date(2026, time.August, 3, 10, 30, 0, 0, time.UTC))

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, engine.EventJobUpdated, ev.Type)
	assert.Equal(t, domain.StatusRunning, ev.Job.Status)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, engine.EventRunRecorded, ev.Type)
	require.NotNil(t, ev.Record)
	assert.Equal(t, domain.OutcomeSuccess, ev.Record.Outcome)
	assert.Equal(t, "ok", ev.Record.Result)
}
