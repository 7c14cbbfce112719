package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type FeedbackRepo struct {
	db *DB
}

func NewFeedbackRepo(db *DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// AddFeedback appends a label. Feedback rows are never updated or deleted
// except by tenant data deletion.
func (r *FeedbackRepo) AddFeedback(ctx context.Context, f models.Feedback) (models.Feedback, error) {
	if !f.Label.Valid() {
		return models.Feedback{}, fmt.Errorf("feedback label %q: %w", f.Label, models.ErrConfig)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	err := r.db.InTenant(ctx, f.TenantID, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE tenant_id=$1 AND id=$2)`, f.TenantID, f.LeadID).Scan(&exists); err != nil {
			return fmt.Errorf("check lead: %w", err)
		}
		if !exists {
			return fmt.Errorf("lead %s: %w", f.LeadID, models.ErrNotFound)
		}
		return tx.QueryRow(ctx, `
INSERT INTO feedback (id, tenant_id, lead_id, user_id, label, note)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''))
RETURNING created_at`, f.ID, f.TenantID, f.LeadID, f.UserID, string(f.Label), f.Note).Scan(&f.CreatedAt)
	})
	if err != nil {
		return models.Feedback{}, fmt.Errorf("add feedback: %w", err)
	}
	return f, nil
}

func (r *FeedbackRepo) ListFeedback(ctx context.Context, tenantID, leadID string) ([]models.Feedback, error) {
	out := make([]models.Feedback, 0)
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, tenant_id, lead_id, user_id, label, COALESCE(note,''), created_at
FROM feedback WHERE tenant_id=$1 AND lead_id=$2
ORDER BY created_at ASC, id ASC`, tenantID, leadID)
		if err != nil {
			return fmt.Errorf("list feedback: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var f models.Feedback
			if err := rows.Scan(&f.ID, &f.TenantID, &f.LeadID, &f.UserID, &f.Label, &f.Note, &f.CreatedAt); err != nil {
				return fmt.Errorf("scan feedback: %w", err)
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FeedbackSummary counts labels per practice area.
func (r *FeedbackRepo) FeedbackSummary(ctx context.Context, tenantID string) ([]models.FeedbackSummary, error) {
	out := make([]models.FeedbackSummary, 0)
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT l.practice_area,
       COUNT(*) FILTER (WHERE f.label = 'useful'),
       COUNT(*) FILTER (WHERE f.label = 'not_useful')
FROM feedback f
JOIN leads l ON l.id = f.lead_id AND l.tenant_id = f.tenant_id
WHERE f.tenant_id=$1
GROUP BY l.practice_area
ORDER BY l.practice_area`, tenantID)
		if err != nil {
			return fmt.Errorf("summarize feedback: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var s models.FeedbackSummary
			if err := rows.Scan(&s.PracticeArea, &s.Useful, &s.NotUseful); err != nil {
				return fmt.Errorf("scan feedback summary: %w", err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
