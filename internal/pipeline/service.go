// Package pipeline holds the per-stage operations of a tenant run. Both the
// in-process Runner and the Temporal activities call the same Service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/brief"
	"leadscout/internal/chunker"
	"leadscout/internal/embedder"
	"leadscout/internal/metrics"
	"leadscout/internal/models"
	"leadscout/internal/normalize"
	"leadscout/internal/providers"
	"leadscout/internal/scoring"
	"leadscout/internal/util"
)

// Store is the persistence a run needs. storage.Store and memory.Store both
// satisfy it.
type Store interface {
	embedder.Store
	brief.ChunkSource
	brief.Auditor

	StoreIfNew(ctx context.Context, tenantID string, item models.IngestedItem, n models.Normalized) (models.StoreResult, error)
	GetDocument(ctx context.Context, tenantID, documentID string) (models.Document, error)
	GetText(ctx context.Context, tenantID, documentID string) (models.DocText, error)
	MarkProcessed(ctx context.Context, tenantID, documentID string) error
	SaveChunks(ctx context.Context, tenantID string, chunks []models.Chunk) (int, error)

	UpsertLead(ctx context.Context, tenantID string, c models.LeadCandidate) (models.UpsertResult, error)
	GetLead(ctx context.Context, tenantID, leadID string) (models.Lead, error)
	SaveBrief(ctx context.Context, tenantID string, b models.Brief) error

	StartRun(ctx context.Context, tenantID, runID string, window models.RunWindow) error
	FinishRun(ctx context.Context, summary models.RunSummary, status string) error
}

type Deps struct {
	Store          Store
	Scorer         *scoring.Scorer
	EmbedProvider  providers.EmbeddingProvider
	LLM            providers.LLMProvider
	EmbedConfig    embedder.Config
	Cache          embedder.VectorCache
	ChunkMaxTokens int
	CharsPerToken  int
	BriefTopK      int
	Logger         *zap.Logger
}

type Service struct {
	store      Store
	scorer     *scoring.Scorer
	normalizer *normalize.Normalizer
	chunker    *chunker.Chunker
	embedder   *embedder.Embedder
	embedCfg   embedder.Config
	cache      embedder.VectorCache
	llm        providers.LLMProvider
	retriever  *brief.Retriever
	log        *zap.Logger
}

func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:      d.Store,
		scorer:     d.Scorer,
		normalizer: normalize.New(d.CharsPerToken),
		chunker:    chunker.New(d.ChunkMaxTokens, d.CharsPerToken, d.Scorer),
		embedCfg:   d.EmbedConfig,
		cache:      d.Cache,
		llm:        d.LLM,
		log:        log,
	}
	if d.EmbedProvider != nil {
		s.embedder = s.NewEmbedder(d.EmbedProvider)
	}
	s.retriever = brief.NewRetriever(d.Store, d.EmbedProvider, d.BriefTopK)
	return s
}

func (s *Service) Scorer() *scoring.Scorer { return s.scorer }

func (s *Service) BriefsEnabled() bool { return s.llm != nil }

// NewEmbedder builds an embedder over p that shares this service's store,
// cache and retry settings. Used for provider failover.
func (s *Service) NewEmbedder(p providers.EmbeddingProvider) *embedder.Embedder {
	opts := []embedder.Option{embedder.WithLogger(s.log)}
	if s.cache != nil {
		opts = append(opts, embedder.WithCache(s.cache))
	}
	return embedder.New(p, s.store, s.embedCfg, opts...)
}

type IngestResult struct {
	DocumentID string `json:"document_id,omitempty"`
	Source     string `json:"source"`
	Created    bool   `json:"created"`
	// NeedsWork is false when an earlier run already finished this document.
	NeedsWork bool   `json:"needs_work"`
	Skipped   bool   `json:"skipped"`
	Chunks    int    `json:"chunks"`
	Note      string `json:"note,omitempty"`
}

// Ingest normalizes and stores one item and, when downstream work is still
// owed, chunks it. Unusable content is reported as Skipped, not as an error.
func (s *Service) Ingest(ctx context.Context, tenantID string, item models.IngestedItem) (IngestResult, error) {
	res := IngestResult{Source: item.Source}
	n, err := s.normalizer.Normalize(item)
	if err != nil {
		if errors.Is(err, models.ErrEmptyContent) {
			metrics.ItemsTotal.WithLabelValues(item.Source, "skipped").Inc()
			res.Skipped = true
			res.Note = err.Error()
			return res, nil
		}
		metrics.ItemsTotal.WithLabelValues(item.Source, "failed").Inc()
		return res, fmt.Errorf("normalize %s item %q: %w", item.Source, item.Title, err)
	}

	stored, err := s.store.StoreIfNew(ctx, tenantID, item, n)
	if err != nil {
		metrics.ItemsTotal.WithLabelValues(item.Source, "failed").Inc()
		return res, fmt.Errorf("store %s item %q: %w", item.Source, item.Title, err)
	}
	res.DocumentID = stored.DocumentID
	res.Created = stored.Created
	res.NeedsWork = stored.Created || !stored.Processed
	if stored.Created {
		metrics.ItemsTotal.WithLabelValues(item.Source, "created").Inc()
	} else {
		metrics.ItemsTotal.WithLabelValues(item.Source, "deduped").Inc()
	}
	if !res.NeedsWork {
		return res, nil
	}

	doc := models.Document{
		ID:           stored.DocumentID,
		TenantID:     tenantID,
		Source:       item.Source,
		Jurisdiction: item.Jurisdiction,
		PublishedAt:  item.PublishedAt,
	}
	chunks := s.chunker.Build(tenantID, doc, n.Text)
	if _, err := s.store.SaveChunks(ctx, tenantID, chunks); err != nil {
		return res, fmt.Errorf("save chunks for %s: %w", stored.DocumentID, err)
	}
	res.Chunks = len(chunks)
	return res, nil
}

// Embed embeds every chunk of a document with the default provider.
func (s *Service) Embed(ctx context.Context, tenantID, documentID string) (embedder.Summary, error) {
	if s.embedder == nil {
		return embedder.Summary{}, nil
	}
	return s.EmbedWith(ctx, s.embedder, tenantID, documentID)
}

func (s *Service) EmbedWith(ctx context.Context, e *embedder.Embedder, tenantID, documentID string) (embedder.Summary, error) {
	chunks, err := s.store.ListChunks(ctx, tenantID, documentID)
	if err != nil {
		return embedder.Summary{}, fmt.Errorf("list chunks for %s: %w", documentID, err)
	}
	results, err := e.EmbedBatch(ctx, tenantID, chunks, e.ModelID())
	if err != nil {
		return embedder.Summary{}, err
	}
	sum := embedder.Summarize(results)
	if sum.Failed > 0 {
		return sum, fmt.Errorf("document %s: %d of %d chunks failed to embed: %w", documentID, sum.Failed, len(chunks), embedder.Failed(results))
	}
	return sum, nil
}

type ScoreOutcome struct {
	DocumentID string                `json:"document_id"`
	Result     scoring.Result        `json:"result"`
	Candidate  *models.LeadCandidate `json:"candidate,omitempty"`
}

// Score classifies a stored document for the tenant. Chunk hints are metadata
// only: every document runs the full pattern classifier.
func (s *Service) Score(ctx context.Context, tenantID, documentID string, profile models.TenantProfile, now time.Time) (ScoreOutcome, error) {
	out := ScoreOutcome{DocumentID: documentID}
	doc, err := s.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return out, err
	}
	text, err := s.store.GetText(ctx, tenantID, documentID)
	if err != nil {
		return out, err
	}

	res, err := s.scorer.Score(text.Text, profile, scoring.ScoreInput{
		Source:       doc.Source,
		Jurisdiction: doc.Jurisdiction,
		PublishedAt:  doc.PublishedAt,
		Now:          now,
	})
	if err != nil {
		return out, err
	}
	out.Result = res
	if res.Matches {
		metrics.ScoreConfidence.WithLabelValues(res.PracticeArea).Observe(res.Confidence)
	}
	if !res.Qualified {
		return out, nil
	}
	out.Candidate = &models.LeadCandidate{
		PracticeArea: res.PracticeArea,
		Title:        leadTitle(doc, text.Text),
		Summary:      util.DisplayEvidenceSnippet(text.Text, s.scorer.Label(res.PracticeArea)+" "+doc.Title, 320),
		Jurisdiction: doc.Jurisdiction,
		Confidence:   res.Confidence,
		SourceIDs:    []string{documentID},
		Source:       doc.Source,
		PublishedAt:  doc.PublishedAt,
	}
	return out, nil
}

func leadTitle(doc models.Document, text string) string {
	if t := strings.TrimSpace(doc.Title); t != "" {
		return t
	}
	first, _, _ := strings.Cut(text, "\n")
	return util.DisplaySnippet(first, 160)
}

// Upsert records a candidate. Terminal leads come back untouched.
func (s *Service) Upsert(ctx context.Context, tenantID string, c models.LeadCandidate) (models.UpsertResult, error) {
	res, err := s.store.UpsertLead(ctx, tenantID, c)
	if err != nil {
		return res, fmt.Errorf("upsert lead: %w", err)
	}
	switch {
	case res.Created:
		metrics.LeadsTotal.WithLabelValues(c.PracticeArea, "created").Inc()
	case res.Updated:
		metrics.LeadsTotal.WithLabelValues(c.PracticeArea, "updated").Inc()
	default:
		metrics.LeadsTotal.WithLabelValues(c.PracticeArea, "kept").Inc()
	}
	return res, nil
}

// Brief generates and stores the brief for a lead with the default model.
func (s *Service) Brief(ctx context.Context, tenantID, leadID string) (models.Brief, error) {
	if s.llm == nil {
		return models.Brief{}, &models.ConfigError{Field: "llm_providers", Reason: "briefs requested but no model is configured"}
	}
	return s.BriefWith(ctx, s.llm, tenantID, leadID)
}

func (s *Service) BriefWith(ctx context.Context, llm providers.LLMProvider, tenantID, leadID string) (models.Brief, error) {
	lead, err := s.store.GetLead(ctx, tenantID, leadID)
	if err != nil {
		return models.Brief{}, err
	}
	label := s.scorer.Label(lead.PracticeArea)
	chunks, err := s.retriever.Supporting(ctx, lead, label)
	if err != nil {
		return models.Brief{}, err
	}
	b, err := brief.NewGenerator(llm, s.store, s.log).Generate(ctx, lead, label, chunks)
	if err != nil {
		return models.Brief{}, err
	}
	if err := s.store.SaveBrief(ctx, tenantID, b); err != nil {
		return models.Brief{}, fmt.Errorf("save brief for %s: %w", leadID, err)
	}
	return b, nil
}

// RenderBrief loads a lead and formats its brief as markdown.
func (s *Service) RenderBrief(ctx context.Context, tenantID string, b models.Brief) (string, error) {
	lead, err := s.store.GetLead(ctx, tenantID, b.LeadID)
	if err != nil {
		return "", err
	}
	return brief.Render(lead, b), nil
}

// Finish marks a document as fully processed so re-runs skip it.
func (s *Service) Finish(ctx context.Context, tenantID, documentID string) error {
	return s.store.MarkProcessed(ctx, tenantID, documentID)
}
