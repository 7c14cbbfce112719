package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// StoreIfNew inserts the Document and its first DocText atomically unless the
// tenant already holds the same content hash, in which case the existing id is
// returned with Created=false.
func (r *DocumentRepo) StoreIfNew(ctx context.Context, tenantID string, item models.IngestedItem, n models.Normalized) (models.StoreResult, error) {
	var res models.StoreResult
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		id := uuid.NewString()
		var inserted string
		err := tx.QueryRow(ctx, `
INSERT INTO documents (id, tenant_id, source, source_ref, object_key, mime_type, content_hash, title, url, jurisdiction, published_at)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), $7, NULLIF($8,''), NULLIF($9,''), NULLIF($10,''), $11)
ON CONFLICT (tenant_id, content_hash) DO NOTHING
RETURNING id`,
			id, tenantID, item.Source, item.SourceRef, item.ObjectKey, item.MIMEType, n.ContentHash,
			item.Title, item.URL, item.Jurisdiction, item.PublishedAt,
		).Scan(&inserted)
		switch {
		case err == nil:
			if _, err := tx.Exec(ctx, `
INSERT INTO doc_texts (document_id, tenant_id, version, text, token_count) VALUES ($1, $2, 1, $3, $4)`,
				inserted, tenantID, n.Text, n.TokenCount); err != nil {
				return fmt.Errorf("insert doc text: %w", err)
			}
			res = models.StoreResult{DocumentID: inserted, Created: true}
			return nil
		case errors.Is(err, pgx.ErrNoRows):
			var processed bool
			if err := tx.QueryRow(ctx, `
SELECT id, processed_at IS NOT NULL FROM documents WHERE tenant_id=$1 AND content_hash=$2`,
				tenantID, n.ContentHash).Scan(&res.DocumentID, &processed); err != nil {
				return fmt.Errorf("select existing document: %w", err)
			}
			res.Processed = processed
			return nil
		default:
			return fmt.Errorf("insert document: %w", err)
		}
	})
	if err != nil {
		return models.StoreResult{}, err
	}
	return res, nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, tenantID, documentID string) (models.Document, error) {
	var d models.Document
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
SELECT id, tenant_id, source, COALESCE(source_ref,''), COALESCE(object_key,''), COALESCE(mime_type,''), content_hash,
       COALESCE(title,''), COALESCE(url,''), COALESCE(jurisdiction,''), published_at, ingested_at, processed_at
FROM documents WHERE tenant_id=$1 AND id=$2`, tenantID, documentID).Scan(
			&d.ID, &d.TenantID, &d.Source, &d.SourceRef, &d.ObjectKey, &d.MIMEType, &d.ContentHash,
			&d.Title, &d.URL, &d.Jurisdiction, &d.PublishedAt, &d.IngestedAt, &d.ProcessedAt)
	})
	if err != nil {
		return models.Document{}, notFound(err, "document", documentID)
	}
	return d, nil
}

// GetText returns the latest DocText version.
func (r *DocumentRepo) GetText(ctx context.Context, tenantID, documentID string) (models.DocText, error) {
	var t models.DocText
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
SELECT document_id, version, text, token_count
FROM doc_texts WHERE tenant_id=$1 AND document_id=$2
ORDER BY version DESC LIMIT 1`, tenantID, documentID).Scan(&t.DocumentID, &t.Version, &t.Text, &t.TokenCount)
	})
	if err != nil {
		return models.DocText{}, notFound(err, "doc text", documentID)
	}
	return t, nil
}

func (r *DocumentRepo) MarkProcessed(ctx context.Context, tenantID, documentID string) error {
	return r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE documents SET processed_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, documentID)
		if err != nil {
			return fmt.Errorf("mark document processed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
		}
		return nil
	})
}

// DeleteTenantData removes every row owned by the tenant. Child tables cascade
// from documents and leads.
func (r *DocumentRepo) DeleteTenantData(ctx context.Context, tenantID string) error {
	return r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		for _, table := range []string{"llm_calls", "pipeline_runs", "embeddings", "leads", "documents", "tenant_profiles"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE tenant_id=$1`, tenantID); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		return nil
	})
}
