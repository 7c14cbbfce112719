package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) RecordLLMCall(ctx context.Context, rec models.LLMCall) error {
	if rec.CallID == "" {
		rec.CallID = uuid.NewString()
	}
	return r.db.InTenant(ctx, rec.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO llm_calls(call_id, tenant_id, run_id, lead_id, operation, provider_name, model, request_id, status, error_type)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, $7, NULLIF($8,''), $9, NULLIF($10,''))
ON CONFLICT (call_id) DO NOTHING`,
			rec.CallID, rec.TenantID, rec.RunID, rec.LeadID, rec.Operation, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType)
		if err != nil {
			return fmt.Errorf("insert llm call: %w", err)
		}
		return nil
	})
}
