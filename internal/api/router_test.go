package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/api/handlers"
	"github.com/dvloznov/fidoo-extractor/internal/catalog"
	"github.com/dvloznov/fidoo-extractor/internal/jobs"
	jobsmem "github.com/dvloznov/fidoo-extractor/internal/jobs/inmemory"
	statemem "github.com/dvloznov/fidoo-extractor/internal/state/inmemory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	jobs    *jobsmem.Store
	state   *statemem.Store
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	cat := catalog.New()
	jobStore := jobsmem.NewStore()
	queue := jobsmem.NewQueue(jobsmem.QueueOptions{BufferSize: 10}, jobStore)
	t.Cleanup(func() { queue.Close() })
	stateStore := statemem.NewStore()

	h := NewRouter(Server{
		Runs:     handlers.NewRunsHandler(queue, jobStore, cat, handlers.RunDefaults{Objects: catalog.DefaultObjects}),
		Objects:  handlers.NewObjectsHandler(cat),
		State:    handlers.NewStateHandler(stateStore, cat),
		APIToken: token,
		Log:      zerolog.Nop(),
	})
	return &testServer{handler: h, jobs: jobStore, state: stateStore}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateRun(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodPost, "/api/runs", `{"objects":["expense","user"],"incremental":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID   string   `json:"job_id"`
		Objects []string `json:"objects"`
		Status  string   `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, []string{"expense", "user"}, resp.Objects)
	assert.Equal(t, "pending", resp.Status)

	job, err := s.jobs.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.True(t, job.Incremental)
	assert.False(t, job.Dependents)
}

func TestCreateRun_DefaultsAndErrors(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transaction"`)

	rec = s.do(http.MethodPost, "/api/runs", `{"objects":["invoice"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invoice")

	rec = s.do(http.MethodPost, "/api/runs", `{"objects":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/runs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetAndListRuns(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	require.NoError(t, s.jobs.SaveJob(ctx, &jobs.ExtractionJob{JobID: "r1", Objects: []string{"card"}, Status: jobs.JobStatusCompleted, CreatedAt: time.Now()}))

	rec := s.do(http.MethodGet, "/api/runs/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = s.do(http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/runs?object=card", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestObjectsAndState(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	rec := s.do(http.MethodGet, "/api/objects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":17`)
	assert.Contains(t, rec.Body.String(), `"expense_item"`)

	wm := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.state.Set(ctx, "expense", wm))

	rec = s.do(http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"expense":"2026-08-01T00:00:00Z"`)

	rec = s.do(http.MethodDelete, "/api/state/expense", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok, _ := s.state.Get(ctx, "expense")
	assert.False(t, ok)

	rec = s.do(http.MethodDelete, "/api/state/invoice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthToken(t *testing.T) {
	s := newTestServer(t, "tok")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/objects", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/objects", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
