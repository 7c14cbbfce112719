package scoring

import (
	"sort"
	"strings"

	"leadscout/internal/models"
)

// Rank orders lead candidates by confidence descending, then most recent
// publication, then source name, then source ids, so equal inputs always
// produce the same order.
func Rank(cands []models.LeadCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return less(cands[i], cands[j])
	})
}

func less(a, b models.LeadCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	switch {
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return true
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return false
	case a.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.After(*b.PublishedAt)
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return strings.Join(models.SortedSourceIDs(a.SourceIDs), ",") < strings.Join(models.SortedSourceIDs(b.SourceIDs), ",")
}
