package brief

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"leadscout/internal/models"
	"leadscout/internal/providers"
)

type fakeChunkSource struct {
	scored   []models.ScoredChunk
	byDoc    map[string][]models.Chunk
	searched []string
}

func (f *fakeChunkSource) SupportingChunks(_ context.Context, _ string, documentIDs []string, modelID string, _ []float32, topK int) ([]models.ScoredChunk, error) {
	f.searched = append(f.searched, modelID)
	if len(f.scored) > topK {
		return f.scored[:topK], nil
	}
	return f.scored, nil
}

func (f *fakeChunkSource) ListChunks(_ context.Context, _ string, documentID string) ([]models.Chunk, error) {
	return f.byDoc[documentID], nil
}

func TestRetrieverUsesVectorSearch(t *testing.T) {
	chunks := testChunks()
	src := &fakeChunkSource{scored: []models.ScoredChunk{{Chunk: chunks[1], Score: 0.9}, {Chunk: chunks[0], Score: 0.4}}}
	r := NewRetriever(src, providers.NewMockProvider(8), 1)

	got, err := r.Supporting(context.Background(), testLead(), "ADA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ch-2", got[0].ID)
	require.Equal(t, []string{"mock-embed-8"}, src.searched)
}

func TestRetrieverFallsBackToListing(t *testing.T) {
	chunks := testChunks()
	src := &fakeChunkSource{byDoc: map[string][]models.Chunk{"doc-1": chunks}}
	r := NewRetriever(src, providers.NewMockProvider(8), 5)

	got, err := r.Supporting(context.Background(), testLead(), "ADA")
	require.NoError(t, err)
	require.Equal(t, chunks, got)
}

func TestRetrieverNoSources(t *testing.T) {
	r := NewRetriever(&fakeChunkSource{}, nil, 5)
	lead := testLead()
	lead.SourceIDs = nil
	got, err := r.Supporting(context.Background(), lead, "ADA")
	require.NoError(t, err)
	require.Empty(t, got)
}
