package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"leadscout/internal/metrics"
	"leadscout/internal/models"
	"leadscout/internal/providers"
)

type Status string

const (
	StatusEmbedded Status = "embedded"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Result is the per-chunk outcome, in input order.
type Result struct {
	ChunkID     string `json:"chunk_id"`
	ContentHash string `json:"content_hash"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
}

type Summary struct {
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusEmbedded:
			s.Embedded++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Store is the persistence the embedder needs. The (tenant, hash, model)
// uniqueness of the store is the backstop against concurrent writers.
type Store interface {
	ExistingHashes(ctx context.Context, tenantID, modelID string, hashes []string) (map[string]bool, error)
	InsertEmbeddings(ctx context.Context, tenantID string, embs []models.Embedding) (int, error)
}

// VectorCache shares vectors across tenants, keyed by content hash.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

type Config struct {
	BatchSize         int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
	Dimension         int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

type Option func(*Embedder)

func WithCache(c VectorCache) Option {
	return func(e *Embedder) { e.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Embedder) { e.log = l }
}

type Embedder struct {
	provider providers.EmbeddingProvider
	store    Store
	cache    VectorCache
	cfg      Config
	limiter  *rate.Limiter
	log      *zap.Logger
}

func New(p providers.EmbeddingProvider, store Store, cfg Config, opts ...Option) *Embedder {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	e := &Embedder{
		provider: p,
		store:    store,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Embedder) ModelID() string { return e.provider.Model() }

type pending struct {
	hash    string
	text    string
	chunkID string
	vec     []float32
	err     error
}

// EmbedBatch embeds the chunks that have no vector yet for modelID. Chunks
// already stored, or repeated inside the batch, are skipped without a provider
// call. A sub-batch that exhausts its retries marks its chunks failed and the
// remaining sub-batches still run. Only store errors and cancellation abort.
func (e *Embedder) EmbedBatch(ctx context.Context, tenantID string, chunks []models.Chunk, modelID string) ([]Result, error) {
	if modelID == "" {
		modelID = e.ModelID()
	}
	if modelID != e.ModelID() {
		return nil, &models.ConfigError{Field: "embed model", Reason: fmt.Sprintf("provider serves %q, asked for %q", e.ModelID(), modelID)}
	}
	results := make([]Result, len(chunks))
	if len(chunks) == 0 {
		return results, nil
	}

	byHash := map[string]*pending{}
	var order []*pending
	hashes := make([]string, 0, len(chunks))
	for i, c := range chunks {
		h := models.EmbeddingHash(c.Text, modelID)
		results[i] = Result{ChunkID: c.ID, ContentHash: h}
		if _, ok := byHash[h]; ok {
			continue
		}
		p := &pending{hash: h, text: c.Text, chunkID: c.ID}
		byHash[h] = p
		order = append(order, p)
		hashes = append(hashes, h)
	}

	existing, err := e.store.ExistingHashes(ctx, tenantID, modelID, hashes)
	if err != nil {
		return nil, fmt.Errorf("lookup existing embeddings: %w", err)
	}

	var todo []*pending
	for _, p := range order {
		if existing[p.hash] {
			continue
		}
		if e.cache != nil {
			vec, ok, err := e.cache.Get(ctx, p.hash)
			if err != nil {
				e.log.Warn("embedding cache get failed", zap.String("hash", p.hash), zap.Error(err))
			}
			if ok && len(vec) > 0 {
				metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
				p.vec = vec
				continue
			}
			metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		}
		todo = append(todo, p)
	}

	for start := 0; start < len(todo); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(todo))
		batch := todo[start:end]
		vecs, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.log.Warn("embedding sub-batch failed",
				zap.String("tenant_id", tenantID), zap.String("model", modelID),
				zap.Int("size", len(batch)), zap.Error(err))
			for _, p := range batch {
				p.err = err
			}
			continue
		}
		for i, p := range batch {
			p.vec = vecs[i]
			if e.cache != nil {
				if err := e.cache.Set(ctx, p.hash, p.vec); err != nil {
					e.log.Warn("embedding cache set failed", zap.String("hash", p.hash), zap.Error(err))
				}
			}
		}
	}

	var rows []models.Embedding
	for _, p := range order {
		if p.vec != nil {
			rows = append(rows, models.Embedding{TenantID: tenantID, ChunkID: p.chunkID, ModelID: modelID, ContentHash: p.hash, Vector: p.vec})
		}
	}
	if _, err := e.store.InsertEmbeddings(ctx, tenantID, rows); err != nil {
		return nil, fmt.Errorf("insert embeddings: %w", err)
	}

	first := map[string]bool{}
	for i := range results {
		p := byHash[results[i].ContentHash]
		switch {
		case p.err != nil:
			results[i].Status = StatusFailed
			results[i].Error = p.err.Error()
		case existing[p.hash] || first[p.hash]:
			results[i].Status = StatusSkipped
		default:
			results[i].Status = StatusEmbedded
		}
		first[p.hash] = true
	}
	s := Summarize(results)
	metrics.EmbeddingChunksTotal.WithLabelValues(string(StatusEmbedded)).Add(float64(s.Embedded))
	metrics.EmbeddingChunksTotal.WithLabelValues(string(StatusSkipped)).Add(float64(s.Skipped))
	metrics.EmbeddingChunksTotal.WithLabelValues(string(StatusFailed)).Add(float64(s.Failed))
	return results, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, batch []*pending) ([][]float32, error) {
	inputs := make([]string, len(batch))
	for i, p := range batch {
		inputs[i] = p.text
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.MaxInterval = e.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5

	attempt := 0
	return backoff.Retry(ctx, func() ([][]float32, error) {
		attempt++
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		start := time.Now()
		vecs, info, err := e.provider.Embed(ctx, providers.EmbedRequest{Operation: "embed_chunks", Inputs: inputs, Dimension: e.cfg.Dimension})
		metrics.EmbeddingRequestDuration.WithLabelValues(info.Name, e.ModelID()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(info.Name, e.ModelID(), "error").Inc()
			if !providers.Retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(vecs) != len(inputs) {
			metrics.EmbeddingRequestsTotal.WithLabelValues(info.Name, e.ModelID(), "error").Inc()
			return nil, backoff.Permanent(fmt.Errorf("provider %s returned %d vectors for %d inputs", info.Name, len(vecs), len(inputs)))
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(info.Name, e.ModelID(), "success").Inc()
		return vecs, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.log.Info("retrying embedding call", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
}

// Failed reports whether any result failed, as a single error listing the first cause.
func Failed(results []Result) error {
	for _, r := range results {
		if r.Status == StatusFailed {
			return errors.New("embedding failed for chunk " + r.ChunkID + ": " + r.Error)
		}
	}
	return nil
}
