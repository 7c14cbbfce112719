package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"leadscout/internal/models"
)

const (
	ReasonNoPracticeArea = "no_practice_area_match"
	ReasonExcluded       = "excluded_keyword"
	ReasonBelowThreshold = "below_threshold"
	ReasonQualified      = "qualified"
)

type area struct {
	name     string
	label    string
	patterns []*regexp.Regexp
	keywords []string
}

// Scorer is an immutable compiled rubric. It is safe for concurrent use.
type Scorer struct {
	weights       Weights
	areas         map[string]*area
	order         []string
	synonyms      map[string][]*regexp.Regexp
	minConfidence float64
}

// ScoreInput carries the item fields the scorer reads. Now is the reference
// instant for recency, normally the end of the run window.
type ScoreInput struct {
	Source       string
	Jurisdiction string
	PublishedAt  *time.Time
	Now          time.Time
}

type Breakdown struct {
	PracticeArea float64 `json:"practice_area"`
	Jurisdiction float64 `json:"jurisdiction"`
	Keyword      float64 `json:"keyword"`
	Recency      float64 `json:"recency"`
}

type Result struct {
	Matches         bool      `json:"matches"`
	Qualified       bool      `json:"qualified"`
	PracticeArea    string    `json:"practice_area,omitempty"`
	Confidence      float64   `json:"confidence"`
	MinConfidence   float64   `json:"min_confidence"`
	MatchedPatterns int       `json:"matched_patterns"`
	ExcludedBy      string    `json:"excluded_by,omitempty"`
	Reason          string    `json:"reason"`
	Breakdown       Breakdown `json:"breakdown"`
}

// Compile validates the rubric and precompiles every pattern.
func Compile(r Rubric) (*Scorer, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{
		weights:       r.Weights,
		areas:         make(map[string]*area, len(r.PracticeAreas)),
		synonyms:      map[string][]*regexp.Regexp{},
		minConfidence: r.MinConfidence,
	}
	for _, key := range r.AreaNames() {
		pa := r.PracticeAreas[key]
		name := normalizeKey(key)
		a := &area{name: name, label: pa.Label}
		if a.label == "" {
			a.label = name
		}
		for _, p := range pa.Patterns {
			a.patterns = append(a.patterns, regexp.MustCompile("(?i)"+p))
		}
		a.keywords = cleanTerms(pa.Keywords)
		s.areas[name] = a
		s.order = append(s.order, name)
	}
	for k, v := range r.RegionalSynonyms {
		key := normalizeKey(k)
		for _, syn := range cleanTerms(v) {
			s.synonyms[key] = append(s.synonyms[key], termPattern(syn))
		}
	}
	return s, nil
}

func (s *Scorer) Weights() Weights { return s.weights }

// Label returns the display label for a practice area, or the name itself.
func (s *Scorer) Label(practiceArea string) string {
	if a, ok := s.areas[normalizeKey(practiceArea)]; ok {
		return a.label
	}
	return practiceArea
}

// MinConfidence resolves the threshold for a profile, preferring the tenant override.
func (s *Scorer) MinConfidence(p models.TenantProfile) float64 {
	if p.MinConfidence != nil {
		return *p.MinConfidence
	}
	return s.minConfidence
}

// ValidateProfile reports configuration errors that make a run impossible.
func (s *Scorer) ValidateProfile(p models.TenantProfile) error {
	if len(s.enabled(p)) == 0 {
		if len(p.PracticeAreas) == 0 {
			return &models.ConfigError{Field: "practice_areas", Reason: fmt.Sprintf("tenant %s has no practice areas enabled", p.TenantID)}
		}
		return &models.ConfigError{Field: "practice_areas", Reason: fmt.Sprintf("tenant %s enables only unknown practice areas %v", p.TenantID, p.PracticeAreas)}
	}
	if p.MinConfidence != nil && (*p.MinConfidence < 0 || *p.MinConfidence > 1) {
		return &models.ConfigError{Field: "min_confidence", Reason: "must be within [0,1]"}
	}
	return nil
}

func (s *Scorer) enabled(p models.TenantProfile) []*area {
	seen := map[string]bool{}
	var out []*area
	for _, name := range p.PracticeAreas {
		key := normalizeKey(name)
		a, ok := s.areas[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// Score classifies one text against a tenant profile. Missing item fields fall
// back to their neutral or unknown values; only configuration problems error.
func (s *Scorer) Score(text string, p models.TenantProfile, in ScoreInput) (Result, error) {
	if err := s.ValidateProfile(p); err != nil {
		return Result{}, err
	}
	lower := normalizeKey(text)
	res := Result{MinConfidence: s.MinConfidence(p)}

	var best *area
	bestScore, bestMatched := 0.0, 0
	for _, a := range s.enabled(p) {
		matched := a.matched(lower)
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(a.patterns))
		// equal scores go to the smaller area name so profile order never changes the lead
		if best == nil || score > bestScore || (score == bestScore && a.name < best.name) {
			best, bestScore, bestMatched = a, score, matched
		}
	}
	if best == nil {
		res.Reason = ReasonNoPracticeArea
		return res, nil
	}
	res.PracticeArea = best.name
	res.MatchedPatterns = bestMatched
	res.Breakdown.PracticeArea = bestScore

	for _, kw := range cleanTerms(p.KeywordsExclude) {
		if strings.Contains(lower, kw) {
			res.ExcludedBy = kw
			res.Reason = ReasonExcluded
			return res, nil
		}
	}

	res.Matches = true
	res.Breakdown.Jurisdiction = s.jurisdictionScore(lower, in.Jurisdiction, p)
	res.Breakdown.Keyword = keywordScore(lower, p.KeywordsInclude)
	res.Breakdown.Recency = RecencyScore(in.PublishedAt, in.Now)

	w := s.weights
	blended := w.PracticeArea*res.Breakdown.PracticeArea +
		w.Jurisdiction*res.Breakdown.Jurisdiction +
		w.Keyword*res.Breakdown.Keyword +
		w.Recency*res.Breakdown.Recency
	res.Confidence = round2(clamp01(blended))

	if res.Confidence > res.MinConfidence {
		res.Qualified = true
		res.Reason = ReasonQualified
	} else {
		res.Reason = ReasonBelowThreshold
	}
	return res, nil
}

func (s *Scorer) jurisdictionScore(lowerText, itemJurisdiction string, p models.TenantProfile) float64 {
	configured := cleanTerms(p.Jurisdictions)
	if len(configured) == 0 {
		return 0.5
	}
	item := normalizeKey(itemJurisdiction)
	if item == "" {
		return 0.3
	}
	for _, j := range configured {
		if termPattern(j).MatchString(item) || termPattern(item).MatchString(j) {
			return 1.0
		}
	}
	for _, j := range configured {
		for _, syn := range s.regionalSynonyms(j, p) {
			if syn.MatchString(item) || syn.MatchString(lowerText) {
				return 0.7
			}
		}
	}
	return 0.2
}

func (s *Scorer) regionalSynonyms(jurisdiction string, p models.TenantProfile) []*regexp.Regexp {
	out := append([]*regexp.Regexp(nil), s.synonyms[jurisdiction]...)
	for k, v := range p.RegionalSynonyms {
		if normalizeKey(k) == jurisdiction {
			for _, syn := range cleanTerms(v) {
				out = append(out, termPattern(syn))
			}
		}
	}
	return out
}

// termPattern matches term only as a whole word or phrase, so "ca" hits
// "Los Angeles, CA" but not "company".
func termPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\pL\pN])` + regexp.QuoteMeta(term) + `(?:[^\pL\pN]|$)`)
}

func keywordScore(lowerText string, include []string) float64 {
	kws := cleanTerms(include)
	if len(kws) == 0 {
		return 0.5
	}
	hit := 0
	for _, kw := range kws {
		if strings.Contains(lowerText, kw) {
			hit++
		}
	}
	return float64(hit) / float64(len(kws))
}

// RecencyScore buckets the age of an item in days relative to now.
func RecencyScore(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil || publishedAt.IsZero() || now.IsZero() {
		return 0.5
	}
	days := now.Sub(*publishedAt).Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.8
	case days <= 30:
		return 0.6
	case days <= 90:
		return 0.4
	default:
		return 0.2
	}
}

// Hints lists the practice areas with a keyword or pattern hit in text. The
// chunker stores them as candidate-area metadata; they never gate scoring.
func (s *Scorer) Hints(text string) []string {
	lower := normalizeKey(text)
	var out []string
	for _, name := range s.order {
		a := s.areas[name]
		if a.hasKeyword(lower) || a.matched(lower) > 0 {
			out = append(out, name)
		}
	}
	return out
}

func (a *area) matched(lower string) int {
	n := 0
	for _, re := range a.patterns {
		if re.MatchString(lower) {
			n++
		}
	}
	return n
}

func (a *area) hasKeyword(lower string) bool {
	for _, kw := range a.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func cleanTerms(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = normalizeKey(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
