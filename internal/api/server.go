package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"leadscout/internal/config"
	"leadscout/internal/logger"
	"leadscout/internal/metrics"
	"leadscout/internal/models"
	"leadscout/internal/workflows"
)

// WorkflowClient is the part of the Temporal client the API uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Store interface {
	GetRun(ctx context.Context, tenantID, runID string) (models.RunSummary, string, error)
	ListLeads(ctx context.Context, tenantID string, status models.LeadStatus, limit int) ([]models.Lead, error)
	GetLead(ctx context.Context, tenantID, leadID string) (models.Lead, error)
	Transition(ctx context.Context, tenantID, leadID string, to models.LeadStatus) (models.Lead, error)
	GetBrief(ctx context.Context, tenantID, leadID string) (models.Brief, error)
	AddFeedback(ctx context.Context, f models.Feedback) (models.Feedback, error)
	FeedbackSummary(ctx context.Context, tenantID string) ([]models.FeedbackSummary, error)
}

// ProviderCounts reports how many providers the worker will fail over across.
type ProviderCounts interface {
	EmbedCount() int
	LLMCount() int
}

type Server struct {
	cfg       config.Config
	store     Store
	providers ProviderCounts
	temporal  WorkflowClient
	log       *zap.Logger
	now       func() time.Time
}

func NewServer(cfg config.Config, store Store, pm ProviderCounts, tc WorkflowClient, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, store: store, providers: pm, temporal: tc, log: log, now: time.Now}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(metrics.Middleware())
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/{workflowID}", s.handleGetRun)
		r.Get("/leads", s.handleListLeads)
		r.Get("/leads/{leadID}", s.handleGetLead)
		r.Post("/leads/{leadID}/status", s.handleTransition)
		r.Get("/leads/{leadID}/brief", s.handleGetBrief)
		r.Post("/leads/{leadID}/feedback", s.handleAddFeedback)
		r.Get("/feedback/summary", s.handleFeedbackSummary)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type startRunRequest struct {
	Since         *time.Time `json:"since"`
	Until         *time.Time `json:"until"`
	MaxConcurrent int        `json:"max_concurrent"`
	Briefs        *bool      `json:"briefs"`
}

// RunWorkflowID is stable for a tenant and window end, so retrying a trigger
// for the same window joins the existing run instead of starting another.
func RunWorkflowID(tenantID string, until time.Time) string {
	return fmt.Sprintf("run-%s-%d", tenantID, until.Unix())
}

// runWorkflowTenant extracts the tenant from an id built by RunWorkflowID.
// Tenant ids may contain dashes, so the window end is split off the right.
func runWorkflowTenant(wfID string) (string, bool) {
	rest, ok := strings.CutPrefix(wfID, "run-")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", false
	}
	digits := rest[i+1:]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return "", false
	}
	return rest[:i], true
}

var errRunAlreadyStarted = errors.New("a run for this tenant and window is already started")

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req startRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	window, err := resolveWindow(req, s.now())
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = s.cfg.RunMaxConcurrent
	}
	briefs := s.cfg.BriefsEnabled
	if req.Briefs != nil {
		briefs = *req.Briefs
	}

	wfID := RunWorkflowID(tenantID, window.Until)
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.TenantRunWorkflow, workflows.RunInput{
		TenantID:        tenantID,
		RunID:           wfID,
		Window:          window,
		MaxConcurrent:   maxConcurrent,
		Briefs:          briefs,
		BriefMaxLeads:   s.cfg.BriefMaxLeads,
		EmbedProviders:  s.providers.EmbedCount(),
		LLMProviders:    s.providers.LLMCount(),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			writeErr(w, http.StatusConflict, errRunAlreadyStarted)
			return
		}
		logger.FromContext(r.Context()).Error("start run", zap.String("tenant_id", tenantID), zap.Error(err))
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}
	logger.FromContext(r.Context()).Info("run started", zap.String("tenant_id", tenantID), zap.String("workflow_id", we.GetID()))
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID(), "window": window})
}

func resolveWindow(req startRunRequest, now time.Time) (models.RunWindow, error) {
	until := now.UTC().Truncate(time.Minute)
	if req.Until != nil {
		until = req.Until.UTC()
	}
	since := until.Add(-24 * time.Hour)
	if req.Since != nil {
		since = req.Since.UTC()
	}
	if !since.Before(until) {
		return models.RunWindow{}, fmt.Errorf("since must be before until")
	}
	return models.RunWindow{Since: since, Until: until}, nil
}

// handleGetRun answers from the live workflow when it can and from the stored
// run record otherwise.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	wfID := chi.URLParam(r, "workflowID")
	if owner, ok := runWorkflowTenant(wfID); !ok || owner != tenantID {
		writeErr(w, http.StatusNotFound, fmt.Errorf("run not found"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), wfID, "", workflows.QueryGetRunProgress)
	if err == nil {
		var prog workflows.RunProgress
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if prog.TenantID != tenantID {
			writeErr(w, http.StatusNotFound, fmt.Errorf("run not found"))
			return
		}
		writeJSON(w, http.StatusOK, prog)
		return
	}
	summary, status, serr := s.store.GetRun(r.Context(), tenantID, wfID)
	if serr != nil {
		if errors.Is(serr, models.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("run not found"))
			return
		}
		writeErr(w, http.StatusInternalServerError, serr)
		return
	}
	writeJSON(w, http.StatusOK, workflows.RunProgress{RunID: summary.RunID, TenantID: tenantID, Stage: status, Summary: summary})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	status := models.LeadStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	leads, err := s.store.ListLeads(r.Context(), tenantID, status, limit)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.store.GetLead(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "leadID"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.LeadStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	lead, err := s.store.Transition(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "leadID"), req.Status)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleGetBrief(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBrief(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "leadID"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAddFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string               `json:"user_id"`
		Label  models.FeedbackLabel `json:"label"`
		Note   string               `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if !req.Label.Valid() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("label must be useful or not_useful"))
		return
	}
	fb, err := s.store.AddFeedback(r.Context(), models.Feedback{
		TenantID: chi.URLParam(r, "tenantID"),
		LeadID:   chi.URLParam(r, "leadID"),
		UserID:   strings.TrimSpace(req.UserID),
		Label:    req.Label,
		Note:     req.Note,
	})
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (s *Server) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.FeedbackSummary(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"practice_areas": rows})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrTenantRequired), errors.Is(err, models.ErrConfig):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
			ww := &metrics.StatusWriter{ResponseWriter: w, Status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(logger.ContextWithLogger(r.Context(), l)))
			l.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}
	switch {
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "LS-API-5030", Message: "Workflow service is unavailable. Check the Temporal server and retry."}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "LS-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "LS-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "LS-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		// 4xx messages come from validation and are safe to echo.
		if err != nil {
			return apiError{Code: "LS-API-4001", Message: err.Error()}
		}
		return apiError{Code: "LS-API-4001", Message: "Invalid request. Check inputs and retry."}
	case status == http.StatusNotFound:
		return apiError{Code: "LS-API-4004", Message: "Requested resource was not found."}
	case status == http.StatusConflict:
		if errors.Is(err, errRunAlreadyStarted) {
			return apiError{Code: "LS-API-4090", Message: "A run for this tenant and window is already in progress."}
		}
		return apiError{Code: "LS-API-4009", Message: "Operation conflicts with current state. Retry after checking status."}
	}
	return apiError{Code: "LS-API-4000", Message: "Request failed."}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
