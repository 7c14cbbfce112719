package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"leadscout/internal/config"
	"leadscout/internal/models"
	"leadscout/internal/storage/memory"
	"leadscout/internal/workflows"
)

type counts struct{ embed, llm int }

func (c counts) EmbedCount() int { return c.embed }
func (c counts) LLMCount() int   { return c.llm }

var fixedNow = time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *mocks.Client, *memory.Store) {
	t.Helper()
	tc := &mocks.Client{}
	store := memory.New()
	cfg := config.Config{TemporalTaskQueue: "leadscout", RunMaxConcurrent: 3, BriefsEnabled: true, BriefMaxLeads: 5, ProviderCooldownSecs: 60}
	s := NewServer(cfg, store, counts{embed: 2, llm: 1}, tc, nil)
	s.now = func() time.Time { return fixedNow }
	return s, tc, store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Routes()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", nil).Code)
}

func TestStartRunUsesStableWorkflowID(t *testing.T) {
	s, tc, _ := newTestServer(t)
	until := fixedNow.Truncate(time.Minute)
	wantID := RunWorkflowID("acme", until)

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(wantID)
	run.On("GetRunID").Return("temporal-run-1")
	tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o tclient.StartWorkflowOptions) bool {
		return o.ID == wantID && o.TaskQueue == "leadscout"
	}), mock.Anything, mock.MatchedBy(func(in workflows.RunInput) bool {
		return in.TenantID == "acme" &&
			in.RunID == wantID &&
			in.Window.Until.Equal(until) &&
			in.Window.Since.Equal(until.Add(-24*time.Hour)) &&
			in.MaxConcurrent == 3 &&
			in.Briefs &&
			in.EmbedProviders == 2 &&
			in.LLMProviders == 1
	})).Return(run, nil).Once()

	rec := do(t, s.Routes(), http.MethodPost, "/tenants/acme/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, wantID, out["workflow_id"])
	tc.AssertExpectations(t)
}

func TestStartRunRejectsInvertedWindow(t *testing.T) {
	s, tc, _ := newTestServer(t)
	since := fixedNow
	until := fixedNow.Add(-time.Hour)
	rec := do(t, s.Routes(), http.MethodPost, "/tenants/acme/runs", map[string]any{"since": since, "until": until})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "since must be before until")
	tc.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartRunAlreadyRunning(t *testing.T) {
	s, tc, _ := newTestServer(t)
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("workflow execution already started", "", "temporal-run-1"))
	briefs := false
	rec := do(t, s.Routes(), http.MethodPost, "/tenants/acme/runs", map[string]any{"briefs": briefs})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "LS-API-4090")
}

func TestStartRunTemporalUnavailable(t *testing.T) {
	s, tc, _ := newTestServer(t)
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp 127.0.0.1:7233: connect: connection refused"))
	rec := do(t, s.Routes(), http.MethodPost, "/tenants/acme/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "LS-API-5030")
	require.NotContains(t, rec.Body.String(), "LS-API-409")
}

func TestGetRunQueriesLiveWorkflow(t *testing.T) {
	s, tc, _ := newTestServer(t)
	wfID := "run-acme-1772452800"
	val := &mocks.Value{}
	val.On("Get", mock.Anything).Run(func(args mock.Arguments) {
		p := args.Get(0).(*workflows.RunProgress)
		*p = workflows.RunProgress{RunID: wfID, TenantID: "acme", Stage: "scoring", Items: 4}
	}).Return(nil)
	tc.On("QueryWorkflow", mock.Anything, wfID, "", workflows.QueryGetRunProgress).Return(val, nil)

	rec := do(t, s.Routes(), http.MethodGet, "/tenants/acme/runs/"+wfID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prog workflows.RunProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
	require.Equal(t, "scoring", prog.Stage)
	require.Equal(t, 4, prog.Items)
}

func TestGetRunScopesWorkflowIDToExactTenant(t *testing.T) {
	s, tc, _ := newTestServer(t)
	wfID := "run-acme-law-1772452800"
	val := &mocks.Value{}
	val.On("Get", mock.Anything).Run(func(args mock.Arguments) {
		p := args.Get(0).(*workflows.RunProgress)
		*p = workflows.RunProgress{RunID: wfID, TenantID: "acme-law", Stage: "scoring"}
	}).Return(nil)
	tc.On("QueryWorkflow", mock.Anything, wfID, "", workflows.QueryGetRunProgress).Return(val, nil)

	rec := do(t, s.Routes(), http.MethodGet, "/tenants/acme/runs/"+wfID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotContains(t, rec.Body.String(), "acme-law")
	tc.AssertNotCalled(t, "QueryWorkflow", mock.Anything, wfID, "", workflows.QueryGetRunProgress)

	rec = do(t, s.Routes(), http.MethodGet, "/tenants/acme-law/runs/"+wfID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "acme-law")

	for _, id := range []string{"run-acme-", "run-acme-12x", "acme-1772452800", "run--1772452800"} {
		tenant, ok := runWorkflowTenant(id)
		require.False(t, ok, "%s parsed as tenant %q", id, tenant)
	}
	tenant, ok := runWorkflowTenant(RunWorkflowID("acme-law", fixedNow))
	require.True(t, ok)
	require.Equal(t, "acme-law", tenant)
}

func TestGetRunRejectsProgressOfAnotherTenant(t *testing.T) {
	s, tc, _ := newTestServer(t)
	wfID := "run-acme-1772452800"
	val := &mocks.Value{}
	val.On("Get", mock.Anything).Run(func(args mock.Arguments) {
		p := args.Get(0).(*workflows.RunProgress)
		*p = workflows.RunProgress{RunID: wfID, TenantID: "harbor-legal", Stage: "scoring"}
	}).Return(nil)
	tc.On("QueryWorkflow", mock.Anything, wfID, "", workflows.QueryGetRunProgress).Return(val, nil)

	rec := do(t, s.Routes(), http.MethodGet, "/tenants/acme/runs/"+wfID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunFallsBackToStoredSummary(t *testing.T) {
	s, tc, store := newTestServer(t)
	ctx := context.Background()
	wfID := "run-acme-1772452800"
	window := models.RunWindow{Since: fixedNow.Add(-24 * time.Hour), Until: fixedNow}
	require.NoError(t, store.StartRun(ctx, "acme", wfID, window))
	require.NoError(t, store.FinishRun(ctx, models.RunSummary{RunID: wfID, TenantID: "acme", Window: window, Processed: 7, Errors: []string{}}, models.RunStatusCompleted))
	tc.On("QueryWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("workflow not found"))

	rec := do(t, s.Routes(), http.MethodGet, "/tenants/acme/runs/"+wfID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prog workflows.RunProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
	require.Equal(t, models.RunStatusCompleted, prog.Stage)
	require.Equal(t, 7, prog.Summary.Processed)

	// another tenant's workflow id is never queried
	rec = do(t, s.Routes(), http.MethodGet, "/tenants/other/runs/"+wfID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s.Routes(), http.MethodGet, "/tenants/acme/runs/run-acme-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeadReviewFlow(t *testing.T) {
	s, _, store := newTestServer(t)
	ctx := context.Background()
	h := s.Routes()
	up, err := store.UpsertLead(ctx, "acme", models.LeadCandidate{
		PracticeArea: "ada_accessibility",
		Title:        "Doe v. Retail Co.",
		Confidence:   0.8,
		SourceIDs:    []string{"doc-1"},
	})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/tenants/acme/leads?status=new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Leads []models.Lead `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Leads, 1)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/tenants/acme/leads?status=bogus", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/tenants/other/leads/"+up.LeadID, nil).Code)

	rec = do(t, h, http.MethodPost, "/tenants/acme/leads/"+up.LeadID+"/status", map[string]any{"status": "dismissed"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/tenants/acme/leads/"+up.LeadID+"/status", map[string]any{"status": "reviewed"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/tenants/acme/leads/"+up.LeadID+"/feedback", map[string]any{"user_id": "u1", "label": "useful"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/tenants/acme/leads/"+up.LeadID+"/feedback", map[string]any{"user_id": "u1", "label": "meh"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/tenants/acme/feedback/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum struct {
		PracticeAreas []models.FeedbackSummary `json:"practice_areas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.Equal(t, []models.FeedbackSummary{{PracticeArea: "ada_accessibility", Useful: 1}}, sum.PracticeAreas)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/tenants/acme/leads/"+up.LeadID+"/brief", nil).Code)
}
