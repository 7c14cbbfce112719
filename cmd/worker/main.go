package main

import (
	"context"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"leadscout/internal/activities"
	"leadscout/internal/app"
	"leadscout/internal/config"
	"leadscout/internal/logger"
	"leadscout/internal/metrics"
	"leadscout/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	metrics.Register()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal("init app", zap.Error(err))
	}
	defer a.Close()
	if err := a.DB.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Namespace: cfg.TemporalNamespace})
	if err != nil {
		log.Fatal("dial temporal", zap.Error(err))
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{MaxConcurrentActivityExecutionSize: cfg.RunMaxConcurrent * 4})
	workflows.Register(w)
	activities.Register(w, a.Activities())

	log.Info("leadscout worker listening",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("queue", cfg.TemporalTaskQueue),
		zap.Int("llm_providers", a.Providers.LLMCount()),
		zap.Int("embed_providers", a.Providers.EmbedCount()))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}
