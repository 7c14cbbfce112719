package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
	"leadscout/internal/vector"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// SaveChunks is idempotent on (document_id, chunk_index) and returns the number
// of rows actually inserted.
func (r *ChunkRepo) SaveChunks(ctx context.Context, tenantID string, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	inserted := 0
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		for _, c := range chunks {
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("encode chunk metadata: %w", err)
			}
			tag, err := tx.Exec(ctx, `
INSERT INTO chunks (id, tenant_id, document_id, chunk_index, text, token_count, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
ON CONFLICT (document_id, chunk_index) DO NOTHING`,
				c.ID, tenantID, c.DocumentID, c.Index, c.Text, c.TokenCount, string(meta))
			if err != nil {
				return fmt.Errorf("insert chunk %s: %w", c.ID, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *ChunkRepo) ListChunks(ctx context.Context, tenantID, documentID string) ([]models.Chunk, error) {
	out := make([]models.Chunk, 0, 16)
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, tenant_id, document_id, chunk_index, text, token_count, metadata
FROM chunks
WHERE tenant_id=$1 AND document_id=$2
ORDER BY chunk_index ASC`, tenantID, documentID)
		if err != nil {
			return fmt.Errorf("list chunks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c    models.Chunk
				meta []byte
			)
			if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.Index, &c.Text, &c.TokenCount, &meta); err != nil {
				return fmt.Errorf("scan chunk: %w", err)
			}
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return fmt.Errorf("decode chunk metadata: %w", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SupportingChunks returns the topK chunks of documentIDs closest to query.
func (r *ChunkRepo) SupportingChunks(ctx context.Context, tenantID string, documentIDs []string, modelID string, query []float32, topK int) ([]models.ScoredChunk, error) {
	var out []models.ScoredChunk
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		res, err := vector.NewSearcher(tx).SearchChunks(ctx, tenantID, query, topK, vector.SearchFilters{
			DocumentIDs: documentIDs,
			ModelID:     modelID,
		})
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
