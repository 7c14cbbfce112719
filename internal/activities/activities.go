package activities

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"leadscout/internal/config"
	"leadscout/internal/embedder"
	"leadscout/internal/metrics"
	"leadscout/internal/models"
	"leadscout/internal/pipeline"
	"leadscout/internal/providers"
	"leadscout/internal/sources"
	"leadscout/internal/tenant"
	"leadscout/internal/util"
)

type Activities struct {
	cfg       config.Config
	svc       *pipeline.Service
	store     pipeline.Store
	profiles  tenant.Provider
	sources   pipeline.SourceFactory
	providers *providers.Manager
	log       *zap.Logger

	mu        sync.Mutex
	embedders map[int]*embedder.Embedder
}

func New(cfg config.Config, svc *pipeline.Service, store pipeline.Store, profiles tenant.Provider, src pipeline.SourceFactory, pm *providers.Manager, log *zap.Logger) *Activities {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activities{
		cfg:       cfg,
		svc:       svc,
		store:     store,
		profiles:  profiles,
		sources:   src,
		providers: pm,
		log:       log,
		embedders: map[int]*embedder.Embedder{},
	}
}

// nonRetryable stops Temporal from retrying errors a retry cannot fix.
func nonRetryable(err error) error {
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeConfig, err)
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrTenantRequired) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "NotFound", err)
	}
	return err
}

func (a *Activities) ResolveProfileActivity(ctx context.Context, in ResolveProfileInput) (ResolveProfileOutput, error) {
	p, err := pipeline.ResolveProfile(ctx, a.profiles, a.svc.Scorer(), in.TenantID)
	if err != nil {
		return ResolveProfileOutput{}, nonRetryable(err)
	}
	return ResolveProfileOutput{Profile: p}, nil
}

func (a *Activities) StartRunActivity(ctx context.Context, in StartRunInput) error {
	return a.store.StartRun(ctx, in.TenantID, in.RunID, in.Window)
}

// FetchSourcesActivity pulls every adapter for the window and stages each
// item as a JSON file under the run directory.
func (a *Activities) FetchSourcesActivity(ctx context.Context, in FetchSourcesInput) (FetchSourcesOutput, error) {
	var adapters []sources.Adapter
	if a.sources != nil {
		adapters = a.sources(in.TenantID)
	}
	fetched := sources.FetchAll(ctx, adapters, in.Window, in.MaxConcurrent, a.log.With(zap.String("tenant_id", in.TenantID), zap.String("run_id", in.RunID)))
	if err := ctx.Err(); err != nil {
		return FetchSourcesOutput{}, err
	}
	out := FetchSourcesOutput{Notes: fetched.Notes}
	itemsDir := filepath.Join(a.runDir(in.TenantID, in.RunID), "items")
	for i, item := range fetched.Items {
		ref := filepath.Join(itemsDir, fmt.Sprintf("%05d.json", i))
		if err := util.WriteJSONAtomic(ref, item); err != nil {
			return FetchSourcesOutput{}, fmt.Errorf("stage item %d: %w", i, err)
		}
		out.ItemRefs = append(out.ItemRefs, ref)
		out.Sources = append(out.Sources, item.Source)
	}
	return out, nil
}

func (a *Activities) IngestItemActivity(ctx context.Context, in IngestItemInput) (pipeline.IngestResult, error) {
	var item models.IngestedItem
	if err := util.ReadJSON(in.ItemRef, &item); err != nil {
		return pipeline.IngestResult{}, temporal.NewNonRetryableApplicationError(fmt.Sprintf("read staged item: %v", err), "StagedItem", err)
	}
	return a.svc.Ingest(ctx, in.TenantID, item)
}

func (a *Activities) EmbedDocumentActivity(ctx context.Context, in EmbedDocumentInput) (EmbedDocumentOutput, error) {
	e, ref := a.embedderFor(in.ProviderIndex)
	sum, err := a.svc.EmbedWith(ctx, e, in.TenantID, in.DocumentID)
	if err != nil {
		return EmbedDocumentOutput{}, nonRetryable(err)
	}
	return EmbedDocumentOutput{Summary: sum, ProviderName: ref.Name, Model: e.ModelID()}, nil
}

// embedderFor keeps one embedder per provider so its rate limiter spans
// activity invocations.
func (a *Activities) embedderFor(idx int) (*embedder.Embedder, providers.ProviderRef) {
	p, ref := a.providers.EmbedProviderByIndex(idx)
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.embedders[idx]
	if !ok {
		e = a.svc.NewEmbedder(p)
		a.embedders[idx] = e
	}
	return e, ref
}

func (a *Activities) ScoreDocumentActivity(ctx context.Context, in ScoreDocumentInput) (pipeline.ScoreOutcome, error) {
	out, err := a.svc.Score(ctx, in.TenantID, in.DocumentID, in.Profile, in.Now)
	if err != nil {
		return out, nonRetryable(err)
	}
	return out, nil
}

func (a *Activities) UpsertLeadActivity(ctx context.Context, in UpsertLeadInput) (models.UpsertResult, error) {
	return a.svc.Upsert(ctx, in.TenantID, in.Candidate)
}

// GenerateBriefActivity writes the brief for one lead with the provider at
// ProviderIndex and renders it to the run directory.
func (a *Activities) GenerateBriefActivity(ctx context.Context, in GenerateBriefInput) (GenerateBriefOutput, error) {
	llm, ref := a.providers.LLMProviderByIndex(in.ProviderIndex)
	b, err := a.svc.BriefWith(ctx, llm, in.TenantID, in.LeadID)
	if err != nil {
		return GenerateBriefOutput{}, nonRetryable(err)
	}
	out := GenerateBriefOutput{LeadID: in.LeadID, ProviderName: ref.Name, Model: b.Model}
	for _, bullet := range b.Bullets {
		if bullet.Abstained {
			out.Abstained++
		}
	}
	md, err := a.svc.RenderBrief(ctx, in.TenantID, b)
	if err != nil {
		return out, err
	}
	out.Path = filepath.Join(a.runDir(in.TenantID, in.RunID), "briefs", in.LeadID+".md")
	if err := util.WriteTextAtomic(out.Path, md); err != nil {
		return out, err
	}
	return out, nil
}

func (a *Activities) FinishDocumentActivity(ctx context.Context, in FinishDocumentInput) error {
	return a.svc.Finish(ctx, in.TenantID, in.DocumentID)
}

func (a *Activities) WriteRunSummaryActivity(ctx context.Context, in WriteRunSummaryInput) (WriteRunSummaryOutput, error) {
	metrics.RunsTotal.WithLabelValues(in.Status).Inc()
	if err := a.store.FinishRun(ctx, in.Summary, in.Status); err != nil {
		return WriteRunSummaryOutput{}, err
	}
	path := filepath.Join(a.runDir(in.Summary.TenantID, in.Summary.RunID), "summary.json")
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteRunSummaryOutput{}, err
	}
	a.log.Info("run finished",
		zap.String("tenant_id", in.Summary.TenantID),
		zap.String("run_id", in.Summary.RunID),
		zap.String("status", in.Status),
		zap.Int("processed", in.Summary.Processed),
		zap.Int("leads_created", in.Summary.LeadsCreated),
		zap.Int("leads_updated", in.Summary.LeadsUpdated),
		zap.Int("errors", len(in.Summary.Errors)))
	return WriteRunSummaryOutput{Path: path}, nil
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	metrics.LLMCallsTotal.WithLabelValues(in.ProviderName, in.Operation, in.Status).Inc()
	return a.store.RecordLLMCall(ctx, models.LLMCall{
		TenantID:     in.TenantID,
		RunID:        in.RunID,
		Operation:    in.Operation,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
	})
}

func (a *Activities) runDir(tenantID, runID string) string {
	return filepath.Join(util.SafeJoin(a.cfg.DataOutRoot, tenantID), runID)
}
