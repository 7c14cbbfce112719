package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadscout/internal/models"
)

func TestRankOrdering(t *testing.T) {
	older := now.AddDate(0, 0, -3)
	cands := []models.LeadCandidate{
		{Title: "low", Confidence: 0.3, Source: "agency", SourceIDs: []string{"d1"}},
		{Title: "tie-undated", Confidence: 0.7, Source: "agency", SourceIDs: []string{"d2"}},
		{Title: "tie-old", Confidence: 0.7, Source: "agency", PublishedAt: &older, SourceIDs: []string{"d3"}},
		{Title: "tie-new-rss", Confidence: 0.7, Source: "rss", PublishedAt: ptrTime(now), SourceIDs: []string{"d4"}},
		{Title: "tie-new-caselaw", Confidence: 0.7, Source: "caselaw", PublishedAt: ptrTime(now), SourceIDs: []string{"d5"}},
		{Title: "top", Confidence: 0.9, Source: "zzz", SourceIDs: []string{"d6"}},
	}
	Rank(cands)

	var titles []string
	for _, c := range cands {
		titles = append(titles, c.Title)
	}
	require.Equal(t, []string{"top", "tie-new-caselaw", "tie-new-rss", "tie-old", "tie-undated", "low"}, titles)
}

func TestRankIsOrderIndependent(t *testing.T) {
	pub := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := models.LeadCandidate{Confidence: 0.5, Source: "rss", PublishedAt: &pub, SourceIDs: []string{"b"}}
	b := models.LeadCandidate{Confidence: 0.5, Source: "rss", PublishedAt: &pub, SourceIDs: []string{"a"}}

	x := []models.LeadCandidate{a, b}
	y := []models.LeadCandidate{b, a}
	Rank(x)
	Rank(y)
	require.Equal(t, x, y)
	require.Equal(t, []string{"a"}, x[0].SourceIDs)
}
