package brief

import (
	"context"
	"fmt"
	"strings"

	"leadscout/internal/models"
	"leadscout/internal/providers"
)

type ChunkSource interface {
	SupportingChunks(ctx context.Context, tenantID string, documentIDs []string, modelID string, query []float32, topK int) ([]models.ScoredChunk, error)
	ListChunks(ctx context.Context, tenantID, documentID string) ([]models.Chunk, error)
}

// Retriever picks the chunks a brief may cite: the lead's own source
// documents ranked by similarity to the practice area and lead title.
type Retriever struct {
	chunks ChunkSource
	embed  providers.EmbeddingProvider
	topK   int
}

func NewRetriever(chunks ChunkSource, embed providers.EmbeddingProvider, topK int) *Retriever {
	if topK <= 0 {
		topK = 6
	}
	return &Retriever{chunks: chunks, embed: embed, topK: topK}
}

func (r *Retriever) Supporting(ctx context.Context, lead models.Lead, practiceLabel string) ([]models.Chunk, error) {
	if len(lead.SourceIDs) == 0 {
		return nil, nil
	}
	if r.embed != nil {
		query := strings.TrimSpace(practiceLabel + " " + lead.Title)
		vecs, _, err := r.embed.Embed(ctx, providers.EmbedRequest{Operation: "brief_query", Inputs: []string{query}})
		if err == nil && len(vecs) == 1 {
			scored, err := r.chunks.SupportingChunks(ctx, lead.TenantID, lead.SourceIDs, r.embed.Model(), vecs[0], r.topK)
			if err != nil {
				return nil, fmt.Errorf("search supporting chunks: %w", err)
			}
			if len(scored) > 0 {
				out := make([]models.Chunk, len(scored))
				for i, s := range scored {
					out[i] = s.Chunk
				}
				return out, nil
			}
		}
	}
	// no usable vectors: take the leading chunks of each source document
	var out []models.Chunk
	for _, docID := range lead.SourceIDs {
		cs, err := r.chunks.ListChunks(ctx, lead.TenantID, docID)
		if err != nil {
			return nil, fmt.Errorf("list chunks for %s: %w", docID, err)
		}
		for _, c := range cs {
			if len(out) >= r.topK {
				return out, nil
			}
			out = append(out, c)
		}
	}
	return out, nil
}
