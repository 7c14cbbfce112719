package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadscout/internal/metrics"
	"leadscout/internal/models"
	"leadscout/internal/scoring"
	"leadscout/internal/sources"
	"leadscout/internal/tenant"
	"leadscout/internal/util"
)

type RunRequest struct {
	TenantID      string           `json:"tenant_id"`
	RunID         string           `json:"run_id,omitempty"`
	Window        models.RunWindow `json:"window"`
	MaxConcurrent int              `json:"max_concurrent"`
	Briefs        bool             `json:"briefs"`
	BriefMaxLeads int              `json:"brief_max_leads,omitempty"`
}

// SourceFactory returns the adapters to poll for a tenant.
type SourceFactory func(tenantID string) []sources.Adapter

type Runner struct {
	svc      *Service
	store    Store
	profiles tenant.Provider
	sources  SourceFactory
	outRoot  string
	log      *zap.Logger
}

func NewRunner(svc *Service, profiles tenant.Provider, src SourceFactory, outRoot string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{svc: svc, store: svc.store, profiles: profiles, sources: src, outRoot: outRoot, log: log}
}

// ResolveProfile loads and checks a tenant's profile. Any failure here is a
// configuration error: the run must not start.
func ResolveProfile(ctx context.Context, profiles tenant.Provider, scorer *scoring.Scorer, tenantID string) (models.TenantProfile, error) {
	if strings.TrimSpace(tenantID) == "" {
		return models.TenantProfile{}, &models.ConfigError{Field: "tenant_id", Reason: models.ErrTenantRequired.Error()}
	}
	p, err := profiles.Profile(ctx, tenantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.TenantProfile{}, &models.ConfigError{Field: "tenant", Reason: err.Error()}
		}
		return models.TenantProfile{}, fmt.Errorf("resolve profile for %s: %w", tenantID, err)
	}
	p.TenantID = tenantID
	if err := scorer.ValidateProfile(p); err != nil {
		return models.TenantProfile{}, err
	}
	return p, nil
}

// Run executes one ingestion+scoring pass over the window. Configuration
// errors return before anything is fetched. Cancellation returns the partial
// summary together with the context error; everything stored so far is valid
// and a re-run of the same window resumes through the dedup invariants.
func (r *Runner) Run(ctx context.Context, req RunRequest) (models.RunSummary, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = 4
	}
	summary := models.RunSummary{RunID: req.RunID, TenantID: req.TenantID, Window: req.Window, Errors: []string{}}
	log := r.log.With(zap.String("tenant_id", req.TenantID), zap.String("run_id", req.RunID))

	profile, err := ResolveProfile(ctx, r.profiles, r.svc.scorer, req.TenantID)
	if err != nil {
		log.Error("run rejected", zap.Error(err))
		metrics.RunsTotal.WithLabelValues(models.RunStatusFailed).Inc()
		return summary, err
	}
	if req.Briefs && !r.svc.BriefsEnabled() {
		err := &models.ConfigError{Field: "llm_providers", Reason: "briefs requested but no model is configured"}
		metrics.RunsTotal.WithLabelValues(models.RunStatusFailed).Inc()
		return summary, err
	}
	if err := r.store.StartRun(ctx, req.TenantID, req.RunID, req.Window); err != nil {
		return summary, fmt.Errorf("start run: %w", err)
	}

	err = r.run(ctx, log, req, profile, &summary)
	status := models.RunStatusCompleted
	if err != nil {
		status = models.RunStatusFailed
		summary.AddError("run aborted: %v", err)
	}
	r.finish(context.WithoutCancel(ctx), log, summary, status)
	return summary, err
}

func (r *Runner) run(ctx context.Context, log *zap.Logger, req RunRequest, profile models.TenantProfile, summary *models.RunSummary) error {
	var adapters []sources.Adapter
	if r.sources != nil {
		adapters = r.sources(req.TenantID)
	}
	fetched := sources.FetchAll(ctx, adapters, req.Window, req.MaxConcurrent, log)
	summary.Errors = append(summary.Errors, fetched.Notes...)
	if err := ctx.Err(); err != nil {
		return err
	}

	docs, err := r.ingest(ctx, log, req, fetched.Items, summary)
	if err != nil {
		return err
	}

	failedDocs := map[string]bool{}
	for _, docID := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.svc.Embed(ctx, req.TenantID, docID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("embedding incomplete", zap.String("document_id", docID), zap.Error(err))
			summary.AddError("embed: %v", err)
			failedDocs[docID] = true
		}
	}

	now := req.Window.Until
	if now.IsZero() {
		now = time.Now().UTC()
	}
	candidates, err := r.score(ctx, log, req, docs, profile, now, summary, failedDocs)
	if err != nil {
		return err
	}

	scoring.Rank(candidates)
	var touched []string
	for _, c := range candidates {
		res, err := r.svc.Upsert(ctx, req.TenantID, c)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.AddError("lead %q: %v", c.Title, err)
			for _, id := range c.SourceIDs {
				failedDocs[id] = true
			}
			continue
		}
		if res.Created {
			summary.LeadsCreated++
		}
		if res.Updated {
			summary.LeadsUpdated++
		}
		if res.Created || res.Updated {
			touched = append(touched, res.LeadID)
		}
	}

	if req.Briefs {
		r.briefs(ctx, log, req, touched, summary)
	}

	for _, docID := range docs {
		if failedDocs[docID] {
			continue
		}
		if err := r.svc.Finish(ctx, req.TenantID, docID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.AddError("finish %s: %v", docID, err)
		}
	}
	return nil
}

// ingest runs items in parallel and returns the ids of documents that still
// owe downstream work, in first-seen order.
func (r *Runner) ingest(ctx context.Context, log *zap.Logger, req RunRequest, items []models.IngestedItem, summary *models.RunSummary) ([]string, error) {
	results := make([]IngestResult, len(items))
	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(req.MaxConcurrent)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = r.svc.Ingest(ctx, req.TenantID, item)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []string
	seen := map[string]bool{}
	for i, res := range results {
		switch {
		case errs[i] != nil:
			summary.Failed++
			summary.AddError("%s: %v", items[i].Source, errs[i])
			log.Warn("item failed", zap.String("source", items[i].Source), zap.Error(errs[i]))
		case res.Skipped:
			summary.Skipped++
			summary.AddError("%s: %s", items[i].Source, res.Note)
		default:
			summary.Processed++
			if res.Created {
				summary.DocumentsCreated++
			}
			if res.NeedsWork && !seen[res.DocumentID] {
				seen[res.DocumentID] = true
				docs = append(docs, res.DocumentID)
			}
		}
	}
	return docs, nil
}

func (r *Runner) score(ctx context.Context, log *zap.Logger, req RunRequest, docs []string, profile models.TenantProfile, now time.Time, summary *models.RunSummary, failedDocs map[string]bool) ([]models.LeadCandidate, error) {
	outcomes := make([]ScoreOutcome, len(docs))
	errs := make([]error, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, docID := range docs {
		g.Go(func() error {
			outcomes[i], errs[i] = r.svc.Score(gctx, req.TenantID, docID, profile, now)
			var cfgErr *models.ConfigError
			if errors.As(errs[i], &cfgErr) {
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.LeadCandidate
	for i, o := range outcomes {
		if errs[i] != nil {
			summary.AddError("score %s: %v", docs[i], errs[i])
			failedDocs[docs[i]] = true
			continue
		}
		log.Debug("scored", zap.String("document_id", o.DocumentID), zap.String("reason", o.Result.Reason), zap.Float64("confidence", o.Result.Confidence))
		if o.Candidate != nil {
			out = append(out, *o.Candidate)
		}
	}
	return out, nil
}

func (r *Runner) briefs(ctx context.Context, log *zap.Logger, req RunRequest, leadIDs []string, summary *models.RunSummary) {
	if req.BriefMaxLeads > 0 && len(leadIDs) > req.BriefMaxLeads {
		leadIDs = leadIDs[:req.BriefMaxLeads]
	}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(req.MaxConcurrent)
	for _, leadID := range leadIDs {
		g.Go(func() error {
			b, err := r.svc.Brief(ctx, req.TenantID, leadID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("brief failed", zap.String("lead_id", leadID), zap.Error(err))
				summary.AddError("brief %s: %v", leadID, err)
				return nil
			}
			summary.BriefsGenerated++
			if r.outRoot == "" {
				return nil
			}
			md, err := r.svc.RenderBrief(ctx, req.TenantID, b)
			if err == nil {
				err = util.WriteTextAtomic(filepath.Join(r.runDir(req.TenantID, req.RunID), "briefs", leadID+".md"), md)
			}
			if err != nil {
				summary.AddError("brief artifact %s: %v", leadID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) runDir(tenantID, runID string) string {
	return filepath.Join(util.SafeJoin(r.outRoot, tenantID), runID)
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, summary models.RunSummary, status string) {
	metrics.RunsTotal.WithLabelValues(status).Inc()
	if err := r.store.FinishRun(ctx, summary, status); err != nil {
		log.Error("persist run summary failed", zap.Error(err))
	}
	if r.outRoot != "" {
		if err := util.WriteJSONAtomic(filepath.Join(r.runDir(summary.TenantID, summary.RunID), "summary.json"), summary); err != nil {
			log.Error("write run summary failed", zap.Error(err))
		}
	}
	log.Info("run finished",
		zap.String("status", status),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("leads_created", summary.LeadsCreated),
		zap.Int("leads_updated", summary.LeadsUpdated),
		zap.Int("errors", len(summary.Errors)))
}
