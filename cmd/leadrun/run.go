package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"leadscout/internal/app"
	"leadscout/internal/models"
	"leadscout/internal/pipeline"
)

type runFlags struct {
	since         string
	until         string
	lookback      time.Duration
	runID         string
	maxConcurrent int
	briefs        bool
	briefMaxLeads int
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest, score and brief one tenant window",
		Long: `Fetches every configured source for the tenant, stores new documents,
embeds and scores them, upserts leads and optionally drafts briefs. The run
summary is printed as JSON; an interrupted run prints the partial summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireTenant(g); err != nil {
				return err
			}
			window, err := parseWindow(f.since, f.until, f.lookback, time.Now())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			cmd.SetContext(ctx)
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				maxConcurrent := f.maxConcurrent
				if maxConcurrent <= 0 {
					maxConcurrent = a.Config.RunMaxConcurrent
				}
				briefMax := f.briefMaxLeads
				if briefMax <= 0 {
					briefMax = a.Config.BriefMaxLeads
				}
				summary, runErr := a.Runner().Run(ctx, pipeline.RunRequest{
					TenantID:      g.tenant,
					RunID:         f.runID,
					Window:        window,
					MaxConcurrent: maxConcurrent,
					Briefs:        f.briefs,
					BriefMaxLeads: briefMax,
				})
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&f.since, "since", "", "window start (RFC3339); defaults to until minus --lookback")
	cmd.Flags().StringVar(&f.until, "until", "", "window end (RFC3339); defaults to now")
	cmd.Flags().DurationVar(&f.lookback, "lookback", 24*time.Hour, "window length when --since is omitted")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id; generated when empty")
	cmd.Flags().IntVar(&f.maxConcurrent, "max-concurrent", 0, "per-stage concurrency (default from config)")
	cmd.Flags().BoolVar(&f.briefs, "briefs", false, "draft briefs for created or updated leads")
	cmd.Flags().IntVar(&f.briefMaxLeads, "brief-max-leads", 0, "cap on briefs per run (default from config)")
	return cmd
}

func parseWindow(since, until string, lookback time.Duration, now time.Time) (models.RunWindow, error) {
	w := models.RunWindow{Until: now.UTC()}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return w, fmt.Errorf("--until: %w", err)
		}
		w.Until = t.UTC()
	}
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return w, fmt.Errorf("--since: %w", err)
		}
		w.Since = t.UTC()
	} else {
		w.Since = w.Until.Add(-lookback)
	}
	if !w.Since.Before(w.Until) {
		return w, fmt.Errorf("window since %s must be before until %s", w.Since.Format(time.RFC3339), w.Until.Format(time.RFC3339))
	}
	return w, nil
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.memory {
				return fmt.Errorf("migrate needs Postgres; drop --memory")
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				if err := a.DB.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
