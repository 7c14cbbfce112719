// Package app builds the shared object graph for the api, worker and leadrun
// binaries from a config.Config.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/activities"
	"leadscout/internal/api"
	"leadscout/internal/config"
	"leadscout/internal/embedder"
	"leadscout/internal/models"
	"leadscout/internal/pipeline"
	"leadscout/internal/providers"
	"leadscout/internal/scoring"
	"leadscout/internal/sources"
	"leadscout/internal/sources/dropdir"
	"leadscout/internal/storage"
	"leadscout/internal/storage/memory"
	"leadscout/internal/tenant"
)

// Store is everything the binaries need from persistence. *storage.Store and
// *memory.Store both implement it.
type Store interface {
	pipeline.Store
	api.Store
	ListFeedback(ctx context.Context, tenantID, leadID string) ([]models.Feedback, error)
	Profile(ctx context.Context, tenantID string) (models.TenantProfile, error)
	SaveProfile(ctx context.Context, p models.TenantProfile) error
	DeleteTenantData(ctx context.Context, tenantID string) error
}

var (
	_ Store = (*storage.Store)(nil)
	_ Store = (*memory.Store)(nil)
)

type Options struct {
	// Memory swaps Postgres for the in-process store.
	Memory bool
}

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	DB        *storage.DB
	Store     Store
	Providers *providers.Manager
	Profiles  tenant.Provider
	Scorer    *scoring.Scorer
	Service   *pipeline.Service

	redis *embedder.RedisCache
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rubric, err := config.LoadRubric(cfg.RubricPath)
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.Compile(rubric)
	if err != nil {
		return nil, err
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, &models.ConfigError{Field: "providers", Reason: err.Error()}
	}

	a := &App{Config: cfg, Logger: log, Providers: pm, Scorer: scorer}
	if opts.Memory {
		a.Store = memory.New()
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := storage.NewDB(dialCtx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Store = storage.NewStore(db)
	}

	a.Profiles = a.Store
	if cfg.TenantsPath != "" {
		fp, err := tenant.LoadFile(cfg.TenantsPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Profiles = fp
	}

	var cache embedder.VectorCache = embedder.NewMapCache()
	if len(cfg.RedisAddrs) > 0 {
		rc, err := embedder.NewRedisCache(embedder.RedisConfig{Addrs: cfg.RedisAddrs, Password: cfg.RedisPassword, TTL: cfg.EmbedCacheTTL})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.redis = rc
		cache = rc
	}

	embed, _ := pm.EmbedProviderByIndex(0)
	var llm providers.LLMProvider
	if cfg.BriefsEnabled {
		llm, _ = pm.LLMProviderByIndex(0)
	}
	a.Service = pipeline.NewService(pipeline.Deps{
		Store:         a.Store,
		Scorer:        scorer,
		EmbedProvider: embed,
		LLM:           llm,
		EmbedConfig: embedder.Config{
			BatchSize:         cfg.EmbedBatchSize,
			MaxRetries:        cfg.EmbedMaxRetries,
			InitialBackoff:    cfg.EmbedInitialBackoff,
			MaxBackoff:        cfg.EmbedMaxBackoff,
			RequestsPerSecond: cfg.EmbedRequestsPerSec,
			Dimension:         cfg.EmbedDim,
		},
		Cache:          cache,
		ChunkMaxTokens: cfg.ChunkMaxTokens,
		CharsPerToken:  cfg.CharsPerToken,
		BriefTopK:      cfg.BriefTopK,
		Logger:         log,
	})
	return a, nil
}

// Sources returns the adapters wired in-process for a tenant. Feed-specific
// fetchers live outside this module and drop their items into the data root.
func (a *App) Sources(tenantID string) []sources.Adapter {
	return []sources.Adapter{dropdir.New(a.Config.DataInRoot, tenantID)}
}

func (a *App) Runner() *pipeline.Runner {
	return pipeline.NewRunner(a.Service, a.Profiles, a.Sources, a.Config.DataOutRoot, a.Logger)
}

func (a *App) Activities() *activities.Activities {
	return activities.New(a.Config, a.Service, a.Store, a.Profiles, a.Sources, a.Providers, a.Logger)
}

// Ping checks the optional backing services.
func (a *App) Ping(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.DB.Close()
}
