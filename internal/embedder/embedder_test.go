package embedder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadscout/internal/models"
	"leadscout/internal/providers"
	"leadscout/internal/storage/memory"
)

type scriptedProvider struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	inputs [][]string
}

func (p *scriptedProvider) Model() string { return "test-embed" }

func (p *scriptedProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := providers.ProviderInfo{Name: "scripted", Model: p.Model()}
	p.calls++
	p.inputs = append(p.inputs, append([]string(nil), req.Inputs...))
	if p.calls <= len(p.errs) && p.errs[p.calls-1] != nil {
		return nil, info, p.errs[p.calls-1]
	}
	out := make([][]float32, len(req.Inputs))
	for i, in := range req.Inputs {
		out[i] = []float32{float32(len(in)), 1, 0}
	}
	return out, info, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testConfig() Config {
	return Config{BatchSize: 2, MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func chunk(id, doc, text string) models.Chunk {
	return models.Chunk{ID: id, TenantID: "t1", DocumentID: doc, Text: text}
}

func TestEmbedBatchSharedTextAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := &scriptedProvider{}
	e := New(p, store, testConfig())

	results, err := e.EmbedBatch(ctx, "t1", []models.Chunk{
		chunk("c1", "d1", "Plaintiff alleges the ramp is missing."),
		chunk("c2", "d2", "Plaintiff alleges the ramp is missing."),
	}, "test-embed")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, StatusEmbedded, results[0].Status)
	require.Equal(t, StatusSkipped, results[1].Status)
	require.Equal(t, results[0].ContentHash, results[1].ContentHash)
	require.Equal(t, 1, p.callCount())
	require.Equal(t, []string{"Plaintiff alleges the ramp is missing."}, p.inputs[0])

	n, err := store.CountEmbeddings(ctx, "t1", results[0].ContentHash, "test-embed")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	again, err := e.EmbedBatch(ctx, "t1", []models.Chunk{chunk("c3", "d3", "Plaintiff alleges the ramp is missing.")}, "")
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, again[0].Status)
	require.Equal(t, 1, p.callCount())
}

func TestEmbedBatchRetriesTransientErrors(t *testing.T) {
	store := memory.New()
	p := &scriptedProvider{errs: []error{providers.ErrRateLimited, fmt.Errorf("upstream: %w", providers.ErrTransient)}}
	e := New(p, store, testConfig())

	results, err := e.EmbedBatch(context.Background(), "t1", []models.Chunk{chunk("c1", "d1", "alpha")}, "")
	require.NoError(t, err)
	require.Equal(t, StatusEmbedded, results[0].Status)
	require.Equal(t, 3, p.callCount())
}

func TestEmbedBatchStopsOnPermanentError(t *testing.T) {
	store := memory.New()
	p := &scriptedProvider{errs: []error{providers.ErrPermanent}}
	e := New(p, store, testConfig())

	results, err := e.EmbedBatch(context.Background(), "t1", []models.Chunk{chunk("c1", "d1", "alpha")}, "")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, results[0].Status)
	require.Contains(t, results[0].Error, "permanent")
	require.Equal(t, 1, p.callCount())
	require.Error(t, Failed(results))
}

func TestEmbedBatchFailedSubBatchIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cfg := testConfig()
	cfg.MaxRetries = 0
	// first sub-batch fails once and has no retries left; second succeeds
	p := &scriptedProvider{errs: []error{providers.ErrTransient}}
	e := New(p, store, cfg)

	results, err := e.EmbedBatch(ctx, "t1", []models.Chunk{
		chunk("c1", "d1", "one"),
		chunk("c2", "d1", "two"),
		chunk("c3", "d1", "three"),
		chunk("c4", "d1", "one"),
	}, "")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, results[0].Status)
	require.Equal(t, StatusFailed, results[1].Status)
	require.Equal(t, StatusEmbedded, results[2].Status)
	require.Equal(t, StatusFailed, results[3].Status, "duplicate of a failed chunk fails with it")
	require.Equal(t, Summary{Embedded: 1, Failed: 3}, Summarize(results))

	retry, err := e.EmbedBatch(ctx, "t1", []models.Chunk{chunk("c1", "d1", "one")}, "")
	require.NoError(t, err)
	require.Equal(t, StatusEmbedded, retry[0].Status)
}

func TestEmbedBatchUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMapCache()
	p := &scriptedProvider{}

	first := New(p, memory.New(), testConfig(), WithCache(cache))
	_, err := first.EmbedBatch(ctx, "t1", []models.Chunk{chunk("c1", "d1", "shared text")}, "")
	require.NoError(t, err)
	require.Equal(t, 1, p.callCount())

	otherTenant := memory.New()
	second := New(p, otherTenant, testConfig(), WithCache(cache))
	results, err := second.EmbedBatch(ctx, "t2", []models.Chunk{{ID: "x1", TenantID: "t2", DocumentID: "d9", Text: "shared text"}}, "")
	require.NoError(t, err)
	require.Equal(t, StatusEmbedded, results[0].Status)
	require.Equal(t, 1, p.callCount())

	n, err := otherTenant.CountEmbeddings(ctx, "t2", results[0].ContentHash, "test-embed")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEmbedBatchRejectsForeignModel(t *testing.T) {
	e := New(&scriptedProvider{}, memory.New(), testConfig())
	_, err := e.EmbedBatch(context.Background(), "t1", []models.Chunk{chunk("c1", "d1", "x")}, "other-model")
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEmbedBatchEmpty(t *testing.T) {
	p := &scriptedProvider{}
	e := New(p, memory.New(), testConfig())
	results, err := e.EmbedBatch(context.Background(), "t1", nil, "")
	require.NoError(t, err)
	require.Empty(t, results)
	require.Zero(t, p.callCount())
}

func TestEmbedBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(&scriptedProvider{}, memory.New(), testConfig())
	_, err := e.EmbedBatch(ctx, "t1", []models.Chunk{chunk("c1", "d1", "x")}, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := DecodeVector(EncodeVector(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
