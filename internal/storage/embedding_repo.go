package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
	"leadscout/internal/vector"
)

type EmbeddingRepo struct {
	db *DB
}

func NewEmbeddingRepo(db *DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// ExistingHashes returns the subset of hashes already embedded for modelID.
func (r *EmbeddingRepo) ExistingHashes(ctx context.Context, tenantID, modelID string, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT content_hash FROM embeddings
WHERE tenant_id=$1 AND model_id=$2 AND content_hash = ANY($3)`, tenantID, modelID, hashes)
		if err != nil {
			return fmt.Errorf("query existing embeddings: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				return fmt.Errorf("scan embedding hash: %w", err)
			}
			out[h] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertEmbeddings writes vectors, relying on the (tenant, hash, model) key to
// drop rows a concurrent writer already inserted. Returns rows inserted.
func (r *EmbeddingRepo) InsertEmbeddings(ctx context.Context, tenantID string, embs []models.Embedding) (int, error) {
	if len(embs) == 0 {
		return 0, nil
	}
	inserted := 0
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		for _, e := range embs {
			tag, err := tx.Exec(ctx, `
INSERT INTO embeddings (tenant_id, content_hash, model_id, chunk_id, embedding)
VALUES ($1, $2, $3, NULLIF($4,''), $5::vector)
ON CONFLICT (tenant_id, content_hash, model_id) DO NOTHING`,
				tenantID, e.ContentHash, e.ModelID, e.ChunkID, vector.ToLiteral(e.Vector))
			if err != nil {
				return fmt.Errorf("insert embedding %s: %w", e.ContentHash, err)
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

// CountEmbeddings reports how many rows exist for a (hash, model) pair.
func (r *EmbeddingRepo) CountEmbeddings(ctx context.Context, tenantID, contentHash, modelID string) (int, error) {
	var n int
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
SELECT COUNT(*) FROM embeddings WHERE tenant_id=$1 AND content_hash=$2 AND model_id=$3`,
			tenantID, contentHash, modelID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}
