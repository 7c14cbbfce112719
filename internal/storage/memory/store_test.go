package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadscout/internal/models"
	"leadscout/internal/util"
)

func normalized(text string) models.Normalized {
	return models.Normalized{Text: text, TokenCount: len(text) / 4, ContentHash: util.SHA256Hex([]byte(text))}
}

func TestStoreIfNewDedupesOnContentHash(t *testing.T) {
	ctx := context.Background()
	s := New()
	n := normalized("Retailer sued over website accessibility.")

	first, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "rss", URL: "https://a.example/1"}, n)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "caselaw", URL: "https://b.example/2"}, n)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.False(t, second.Processed)
	require.Equal(t, first.DocumentID, second.DocumentID)

	other, err := s.StoreIfNew(ctx, "t2", models.IngestedItem{Source: "rss"}, n)
	require.NoError(t, err)
	require.True(t, other.Created)
	require.NotEqual(t, first.DocumentID, other.DocumentID)

	require.NoError(t, s.MarkProcessed(ctx, "t1", first.DocumentID))
	third, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "rss"}, n)
	require.NoError(t, err)
	require.True(t, third.Processed)

	txt, err := s.GetText(ctx, "t1", first.DocumentID)
	require.NoError(t, err)
	require.Equal(t, 1, txt.Version)
	require.Equal(t, n.Text, txt.Text)

	_, err = s.GetDocument(ctx, "t2", first.DocumentID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.StoreIfNew(ctx, " ", models.IngestedItem{}, n)
	require.ErrorIs(t, err, models.ErrTenantRequired)
}

func TestChunksAreIdempotentPerIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	res, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "rss"}, normalized("doc"))
	require.NoError(t, err)

	chunks := []models.Chunk{
		{ID: "c1", DocumentID: res.DocumentID, Index: 1, Text: "second"},
		{ID: "c0", DocumentID: res.DocumentID, Index: 0, Text: "first"},
	}
	n, err := s.SaveChunks(ctx, "t1", chunks)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.SaveChunks(ctx, "t1", chunks)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := s.ListChunks(ctx, "t1", res.DocumentID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c0", got[0].ID)

	_, err = s.SaveChunks(ctx, "t2", chunks)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestEmbeddingsUniquePerHashAndModel(t *testing.T) {
	ctx := context.Background()
	s := New()
	h := models.EmbeddingHash("same text", "m1")
	emb := models.Embedding{ChunkID: "a", ModelID: "m1", ContentHash: h, Vector: []float32{1, 0}}

	n, err := s.InsertEmbeddings(ctx, "t1", []models.Embedding{emb, emb})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	emb.ChunkID = "b"
	n, err = s.InsertEmbeddings(ctx, "t1", []models.Embedding{emb})
	require.NoError(t, err)
	require.Zero(t, n)

	count, err := s.CountEmbeddings(ctx, "t1", h, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	existing, err := s.ExistingHashes(ctx, "t1", "m1", []string{h, "other"})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{h: true}, existing)
	existing, err = s.ExistingHashes(ctx, "t1", "m2", []string{h})
	require.NoError(t, err)
	require.Empty(t, existing)
}

func TestSupportingChunksRankByCosine(t *testing.T) {
	ctx := context.Background()
	s := New()
	res, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "rss"}, normalized("doc"))
	require.NoError(t, err)
	_, err = s.SaveChunks(ctx, "t1", []models.Chunk{
		{ID: "near", DocumentID: res.DocumentID, Index: 0, Text: "near"},
		{ID: "far", DocumentID: res.DocumentID, Index: 1, Text: "far"},
		{ID: "none", DocumentID: res.DocumentID, Index: 2, Text: "not embedded"},
	})
	require.NoError(t, err)
	_, err = s.InsertEmbeddings(ctx, "t1", []models.Embedding{
		{ModelID: "m", ContentHash: models.EmbeddingHash("near", "m"), Vector: []float32{1, 0.1}},
		{ModelID: "m", ContentHash: models.EmbeddingHash("far", "m"), Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	got, err := s.SupportingChunks(ctx, "t1", []string{res.DocumentID}, "m", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "near", got[0].ID)
	require.Greater(t, got[0].Score, got[1].Score)

	got, err = s.SupportingChunks(ctx, "t2", []string{res.DocumentID}, "m", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUpsertLeadLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	cand := models.LeadCandidate{
		PracticeArea: "ada_accessibility",
		Title:        "Retailer accessibility suit",
		Summary:      "first summary",
		Confidence:   0.6,
		SourceIDs:    []string{"d2", "d1"},
	}
	created, err := s.UpsertLead(ctx, "t1", cand)
	require.NoError(t, err)
	require.True(t, created.Created)
	require.Equal(t, models.LeadNew, created.Status)

	// same provenance regardless of source id order
	cand.SourceIDs = []string{"d1", "d2", "d1"}
	cand.Confidence = 0.7
	cand.Summary = "second summary"
	updated, err := s.UpsertLead(ctx, "t1", cand)
	require.NoError(t, err)
	require.False(t, updated.Created)
	require.True(t, updated.Updated)
	require.Equal(t, created.LeadID, updated.LeadID)

	l, err := s.GetLead(ctx, "t1", created.LeadID)
	require.NoError(t, err)
	require.Equal(t, 0.7, l.Confidence)
	require.Equal(t, []string{"d1", "d2"}, l.SourceIDs)

	_, err = s.Transition(ctx, "t1", created.LeadID, models.LeadReviewed)
	require.NoError(t, err)
	_, err = s.UpsertLead(ctx, "t1", cand)
	require.NoError(t, err)

	dismissed, err := s.Transition(ctx, "t1", created.LeadID, models.LeadDismissed)
	require.NoError(t, err)
	require.Equal(t, models.LeadDismissed, dismissed.Status)

	cand.Confidence = 0.95
	cand.Summary = "rescored"
	res, err := s.UpsertLead(ctx, "t1", cand)
	require.NoError(t, err)
	require.False(t, res.Created)
	require.False(t, res.Updated)
	require.Equal(t, models.LeadDismissed, res.Status)

	l, err = s.GetLead(ctx, "t1", created.LeadID)
	require.NoError(t, err)
	require.Equal(t, models.LeadDismissed, l.Status)
	require.Equal(t, 0.7, l.Confidence)
	require.Equal(t, "second summary", l.Summary)

	other, err := s.UpsertLead(ctx, "t2", cand)
	require.NoError(t, err)
	require.True(t, other.Created)
}

func TestTransitionRules(t *testing.T) {
	ctx := context.Background()
	s := New()
	res, err := s.UpsertLead(ctx, "t1", models.LeadCandidate{PracticeArea: "a", Confidence: 0.5, SourceIDs: []string{"d"}})
	require.NoError(t, err)

	_, err = s.Transition(ctx, "t1", res.LeadID, models.LeadNew)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = s.Transition(ctx, "t1", res.LeadID, "archived")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = s.Transition(ctx, "t2", res.LeadID, models.LeadReviewed)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.Transition(ctx, "t1", res.LeadID, models.LeadContacted)
	require.NoError(t, err)
	_, err = s.Transition(ctx, "t1", res.LeadID, models.LeadDismissed)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = s.Transition(ctx, "t1", res.LeadID, models.LeadReviewed)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestListLeadsOrder(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { clock = clock.Add(time.Second); return clock })

	for i, c := range []float64{0.4, 0.9, 0.4} {
		_, err := s.UpsertLead(ctx, "t1", models.LeadCandidate{PracticeArea: "a", Title: string(rune('A' + i)), Confidence: c, SourceIDs: []string{string(rune('a' + i))}})
		require.NoError(t, err)
	}
	leads, err := s.ListLeads(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	require.Equal(t, "B", leads[0].Title)
	require.Equal(t, "C", leads[1].Title)
	require.Equal(t, "A", leads[2].Title)

	_, err = s.Transition(ctx, "t1", leads[0].ID, models.LeadReviewed)
	require.NoError(t, err)
	reviewed, err := s.ListLeads(ctx, "t1", models.LeadReviewed, 10)
	require.NoError(t, err)
	require.Len(t, reviewed, 1)
}

func TestFeedbackAppendOnlyAndSummary(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, err := s.UpsertLead(ctx, "t1", models.LeadCandidate{PracticeArea: "ada_accessibility", Confidence: 0.5, SourceIDs: []string{"d1"}})
	require.NoError(t, err)
	b, err := s.UpsertLead(ctx, "t1", models.LeadCandidate{PracticeArea: "employment", Confidence: 0.5, SourceIDs: []string{"d2"}})
	require.NoError(t, err)

	for _, fb := range []models.Feedback{
		{TenantID: "t1", LeadID: a.LeadID, UserID: "u1", Label: models.FeedbackUseful},
		{TenantID: "t1", LeadID: a.LeadID, UserID: "u1", Label: models.FeedbackNotUseful},
		{TenantID: "t1", LeadID: b.LeadID, UserID: "u2", Label: models.FeedbackUseful, Note: "good"},
	} {
		_, err := s.AddFeedback(ctx, fb)
		require.NoError(t, err)
	}
	_, err = s.AddFeedback(ctx, models.Feedback{TenantID: "t1", LeadID: a.LeadID, Label: "meh"})
	require.ErrorIs(t, err, models.ErrConfig)
	_, err = s.AddFeedback(ctx, models.Feedback{TenantID: "t2", LeadID: a.LeadID, Label: models.FeedbackUseful})
	require.ErrorIs(t, err, models.ErrNotFound)

	list, err := s.ListFeedback(ctx, "t1", a.LeadID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	sum, err := s.FeedbackSummary(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []models.FeedbackSummary{
		{PracticeArea: "ada_accessibility", Useful: 1, NotUseful: 1},
		{PracticeArea: "employment", Useful: 1},
	}, sum)
}

func TestDeleteTenantDataLeavesOthers(t *testing.T) {
	ctx := context.Background()
	s := New()
	n := normalized("shared")
	r1, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "rss"}, n)
	require.NoError(t, err)
	r2, err := s.StoreIfNew(ctx, "t2", models.IngestedItem{Source: "rss"}, n)
	require.NoError(t, err)
	_, err = s.UpsertLead(ctx, "t1", models.LeadCandidate{PracticeArea: "a", Confidence: 0.5, SourceIDs: []string{r1.DocumentID}})
	require.NoError(t, err)
	require.NoError(t, s.RecordLLMCall(ctx, models.LLMCall{TenantID: "t1", Operation: "brief"}))

	require.NoError(t, s.DeleteTenantData(ctx, "t1"))

	_, err = s.GetDocument(ctx, "t1", r1.DocumentID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetDocument(ctx, "t2", r2.DocumentID)
	require.NoError(t, err)
	leads, err := s.ListLeads(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Empty(t, leads)
	require.Empty(t, s.LLMCalls("t1"))

	again, err := s.StoreIfNew(ctx, "t1", models.IngestedItem{Source: "rss"}, n)
	require.NoError(t, err)
	require.True(t, again.Created)
}

func TestRunsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := models.RunWindow{Since: time.Unix(0, 0).UTC(), Until: time.Unix(100, 0).UTC()}
	require.NoError(t, s.StartRun(ctx, "t1", "r1", w))
	_, status, err := s.GetRun(ctx, "t1", "r1")
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRunning, status)

	require.NoError(t, s.FinishRun(ctx, models.RunSummary{RunID: "r1", TenantID: "t1", Window: w, Processed: 3}, models.RunStatusCompleted))
	sum, status, err := s.GetRun(ctx, "t1", "r1")
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, status)
	require.Equal(t, 3, sum.Processed)

	_, _, err = s.GetRun(ctx, "t2", "r1")
	require.ErrorIs(t, err, models.ErrNotFound)
}
