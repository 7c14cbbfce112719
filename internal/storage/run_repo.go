package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) StartRun(ctx context.Context, tenantID, runID string, window models.RunWindow) error {
	return r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO pipeline_runs (run_id, tenant_id, window_since, window_until, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id) DO UPDATE SET status=EXCLUDED.status, started_at=NOW(), finished_at=NULL`,
			runID, tenantID, window.Since, window.Until, models.RunStatusRunning)
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		return nil
	})
}

func (r *RunRepo) FinishRun(ctx context.Context, summary models.RunSummary, status string) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	return r.db.InTenant(ctx, summary.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
UPDATE pipeline_runs SET status=$3, summary=$4::jsonb, finished_at=NOW()
WHERE tenant_id=$1 AND run_id=$2`, summary.TenantID, summary.RunID, status, string(body))
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		return nil
	})
}

func (r *RunRepo) GetRun(ctx context.Context, tenantID, runID string) (models.RunSummary, string, error) {
	var (
		body   []byte
		status string
	)
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT status, summary FROM pipeline_runs WHERE tenant_id=$1 AND run_id=$2`, tenantID, runID).Scan(&status, &body)
	})
	if err != nil {
		return models.RunSummary{}, "", notFound(err, "run", runID)
	}
	var s models.RunSummary
	if len(body) > 2 {
		if err := json.Unmarshal(body, &s); err != nil {
			return models.RunSummary{}, "", fmt.Errorf("decode run summary: %w", err)
		}
	}
	s.RunID, s.TenantID = runID, tenantID
	return s, status, nil
}
