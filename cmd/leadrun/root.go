package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"leadscout/internal/app"
	"leadscout/internal/config"
	"leadscout/internal/logger"
	"leadscout/internal/models"
)

type globalFlags struct {
	memory bool
	tenant string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "leadrun",
		Short: "Run and review the legal lead pipeline without a Temporal cluster",
		Long: `leadrun drives the lead pipeline in-process against Postgres, or against
an in-memory store with --memory, and exposes the lead review operations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&g.memory, "memory", false, "use the in-memory store instead of Postgres")
	root.PersistentFlags().StringVarP(&g.tenant, "tenant", "t", "", "tenant id")

	root.AddCommand(
		newRunCmd(g),
		newMigrateCmd(g),
		newLeadCmd(g),
		newFeedbackCmd(g),
		newTenantCmd(g),
	)
	return root
}

func openApp(ctx context.Context, g *globalFlags) (*app.App, error) {
	cfg := config.Load()
	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log, app.Options{Memory: g.memory})
}

func requireTenant(g *globalFlags) error {
	if g.tenant == "" {
		return models.ErrTenantRequired
	}
	return nil
}

func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = a.Logger.Sync() }()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
