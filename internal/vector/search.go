package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type SearchFilters struct {
	DocumentIDs []string
	ModelID     string
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchChunks ranks a tenant's chunks by cosine similarity to queryVec. The
// chunk to embedding join recomputes the embedding content hash in SQL, so the
// same vector serves every chunk with identical text.
func (s *Searcher) SearchChunks(ctx context.Context, tenantID string, queryVec []float32, topK int, filters SearchFilters) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = 8
	}
	if strings.TrimSpace(filters.ModelID) == "" {
		return nil, fmt.Errorf("vector search: model id is required")
	}
	args := []any{tenantID, ToLiteral(queryVec), topK, filters.ModelID}
	filterSQL := ""
	if len(filters.DocumentIDs) > 0 {
		filterSQL = " AND c.document_id = ANY($5)"
		args = append(args, filters.DocumentIDs)
	}

	query := `
SELECT c.id, c.tenant_id, c.document_id, c.chunk_index, c.text, c.token_count, c.metadata,
       1 - (e.embedding <=> $2::vector) AS score
FROM chunks c
JOIN embeddings e
  ON e.tenant_id = c.tenant_id
 AND e.model_id = $4
 AND e.content_hash = encode(sha256(convert_to(c.text || $4, 'UTF8')), 'hex')
WHERE c.tenant_id = $1` + filterSQL + `
ORDER BY e.embedding <=> $2::vector, c.id
LIMIT $3`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredChunk, 0, topK)
	for rows.Next() {
		var (
			r    models.ScoredChunk
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.DocumentID, &r.Index, &r.Text, &r.TokenCount, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// ToLiteral renders a pgvector text literal.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
