package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type LeadRepo struct {
	db *DB
}

func NewLeadRepo(db *DB) *LeadRepo {
	return &LeadRepo{db: db}
}

const leadColumns = `id, tenant_id, practice_area, title, summary, confidence, COALESCE(jurisdiction,''),
       source_ids, provenance_key, status, created_at, updated_at`

func scanLead(row pgx.Row) (models.Lead, error) {
	var l models.Lead
	err := row.Scan(&l.ID, &l.TenantID, &l.PracticeArea, &l.Title, &l.Summary, &l.Confidence, &l.Jurisdiction,
		&l.SourceIDs, &l.ProvenanceKey, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// UpsertLead creates a lead for a new provenance key, refreshes an open lead in
// place, and leaves contacted or dismissed leads untouched. Writers of the same
// key serialize on a transaction-scoped advisory lock; the unique constraint
// remains the backstop.
func (r *LeadRepo) UpsertLead(ctx context.Context, tenantID string, c models.LeadCandidate) (models.UpsertResult, error) {
	sourceIDs := models.SortedSourceIDs(c.SourceIDs)
	key := models.ProvenanceKey(tenantID, c.PracticeArea, sourceIDs)

	var (
		res models.UpsertResult
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		res, err = r.upsertOnce(ctx, tenantID, key, sourceIDs, c)
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return models.UpsertResult{}, fmt.Errorf("upsert lead: %w", err)
	}
	return res, nil
}

func (r *LeadRepo) upsertOnce(ctx context.Context, tenantID, key string, sourceIDs []string, c models.LeadCandidate) (models.UpsertResult, error) {
	var res models.UpsertResult
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID+"|"+key); err != nil {
			return fmt.Errorf("lock provenance: %w", err)
		}
		var (
			id     string
			status models.LeadStatus
		)
		err := tx.QueryRow(ctx, `
SELECT id, status FROM leads WHERE tenant_id=$1 AND provenance_key=$2 FOR UPDATE`, tenantID, key).Scan(&id, &status)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			id = uuid.NewString()
			if _, err := tx.Exec(ctx, `
INSERT INTO leads (id, tenant_id, practice_area, title, summary, confidence, jurisdiction, source_ids, provenance_key, status)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, $9, 'new')`,
				id, tenantID, c.PracticeArea, c.Title, c.Summary, c.Confidence, c.Jurisdiction, sourceIDs, key); err != nil {
				return err
			}
			res = models.UpsertResult{LeadID: id, Created: true, Status: models.LeadNew}
			return nil
		case err != nil:
			return fmt.Errorf("select lead: %w", err)
		}
		res = models.UpsertResult{LeadID: id, Status: status}
		if status.Terminal() {
			return nil
		}
		if _, err := tx.Exec(ctx, `
UPDATE leads SET confidence=$3, summary=$4, title=$5, jurisdiction=NULLIF($6,''), updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, id, c.Confidence, c.Summary, c.Title, c.Jurisdiction); err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
		res.Updated = true
		return nil
	})
	return res, err
}

// Transition applies a user-driven status change.
func (r *LeadRepo) Transition(ctx context.Context, tenantID, leadID string, to models.LeadStatus) (models.Lead, error) {
	if !to.Valid() {
		return models.Lead{}, fmt.Errorf("status %q: %w", to, models.ErrInvalidTransition)
	}
	var out models.Lead
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var from models.LeadStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM leads WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, leadID).Scan(&from); err != nil {
			return notFound(err, "lead", leadID)
		}
		if !models.CanTransition(from, to) {
			return fmt.Errorf("lead %s %s -> %s: %w", leadID, from, to, models.ErrInvalidTransition)
		}
		l, err := scanLead(tx.QueryRow(ctx, `
UPDATE leads SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2
RETURNING `+leadColumns, tenantID, leadID, to))
		if err != nil {
			return fmt.Errorf("update lead status: %w", err)
		}
		out = l
		return nil
	})
	if err != nil {
		return models.Lead{}, err
	}
	return out, nil
}

func (r *LeadRepo) GetLead(ctx context.Context, tenantID, leadID string) (models.Lead, error) {
	var l models.Lead
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		l, err = scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE tenant_id=$1 AND id=$2`, tenantID, leadID))
		return err
	})
	if err != nil {
		return models.Lead{}, notFound(err, "lead", leadID)
	}
	return l, nil
}

// ListLeads returns a tenant's leads best first, optionally filtered by status.
func (r *LeadRepo) ListLeads(ctx context.Context, tenantID string, status models.LeadStatus, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]models.Lead, 0)
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT `+leadColumns+`
FROM leads
WHERE tenant_id=$1 AND ($2 = '' OR status = $2)
ORDER BY confidence DESC, updated_at DESC, id ASC
LIMIT $3`, tenantID, string(status), limit)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			l, err := scanLead(rows)
			if err != nil {
				return fmt.Errorf("scan lead: %w", err)
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LeadRepo) SaveBrief(ctx context.Context, tenantID string, b models.Brief) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode brief: %w", err)
	}
	return r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO lead_briefs (lead_id, tenant_id, brief, model, generated_at)
VALUES ($1, $2, $3::jsonb, NULLIF($4,''), $5)
ON CONFLICT (lead_id)
DO UPDATE SET brief=EXCLUDED.brief, model=EXCLUDED.model, generated_at=EXCLUDED.generated_at`,
			b.LeadID, tenantID, string(body), b.Model, b.GeneratedAt)
		if err != nil {
			return fmt.Errorf("save brief: %w", err)
		}
		return nil
	})
}

func (r *LeadRepo) GetBrief(ctx context.Context, tenantID, leadID string) (models.Brief, error) {
	var body []byte
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT brief FROM lead_briefs WHERE tenant_id=$1 AND lead_id=$2`, tenantID, leadID).Scan(&body)
	})
	if err != nil {
		return models.Brief{}, notFound(err, "brief", leadID)
	}
	var b models.Brief
	if err := json.Unmarshal(body, &b); err != nil {
		return models.Brief{}, fmt.Errorf("decode brief: %w", err)
	}
	return b, nil
}
