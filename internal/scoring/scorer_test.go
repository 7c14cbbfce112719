package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadscout/internal/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrFloat(f float64) *float64    { return &f }

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := Compile(DefaultRubric())
	require.NoError(t, err)
	return s
}

func adaProfile() models.TenantProfile {
	return models.TenantProfile{
		TenantID:        "acme-law",
		PracticeAreas:   []string{"ada_accessibility"},
		Jurisdictions:   []string{"New York"},
		KeywordsExclude: []string{"not a lawsuit"},
	}
}

func TestScoreQualifiesFreshInJurisdictionItem(t *testing.T) {
	s := newScorer(t)
	text := "A retailer was sued under the ADA after its website accessibility failures locked out blind shoppers."

	res, err := s.Score(text, adaProfile(), ScoreInput{
		Source:       "caselaw",
		Jurisdiction: "New York",
		PublishedAt:  ptrTime(now.Add(-2 * time.Hour)),
		Now:          now,
	})
	require.NoError(t, err)
	require.True(t, res.Matches)
	require.True(t, res.Qualified)
	require.Equal(t, "ada_accessibility", res.PracticeArea)
	require.Equal(t, 3, res.MatchedPatterns)
	require.Equal(t, 1.0, res.Breakdown.Jurisdiction)
	require.Equal(t, 0.5, res.Breakdown.Keyword)
	require.Equal(t, 1.0, res.Breakdown.Recency)
	require.GreaterOrEqual(t, res.Confidence, 0.8)
	require.Equal(t, 0.8, res.Confidence)
}

func TestScoreExcludeKeywordVetoes(t *testing.T) {
	s := newScorer(t)
	text := "ADA website accessibility screen reader audit. This is not a lawsuit, just a compliance review."

	res, err := s.Score(text, adaProfile(), ScoreInput{Jurisdiction: "New York", PublishedAt: ptrTime(now), Now: now})
	require.NoError(t, err)
	require.False(t, res.Matches)
	require.False(t, res.Qualified)
	require.Equal(t, ReasonExcluded, res.Reason)
	require.Equal(t, "not a lawsuit", res.ExcludedBy)
	require.Zero(t, res.Confidence)
}

func TestScoreNoPatternMatchIsHardGate(t *testing.T) {
	s := newScorer(t)
	res, err := s.Score("Quarterly earnings rose on strong demand.", adaProfile(), ScoreInput{Now: now})
	require.NoError(t, err)
	require.False(t, res.Matches)
	require.Empty(t, res.PracticeArea)
	require.Equal(t, ReasonNoPracticeArea, res.Reason)
}

func TestScoreBlendFormula(t *testing.T) {
	s := newScorer(t)
	p := models.TenantProfile{TenantID: "t1", PracticeAreas: []string{"ada_accessibility"}, Jurisdictions: []string{"California"}}
	// two of four patterns: "ada" and "accessible"
	text := "The ADA requires accessible entrances."

	res, err := s.Score(text, p, ScoreInput{PublishedAt: ptrTime(now.AddDate(0, 0, -200)), Now: now})
	require.NoError(t, err)
	require.Equal(t, 0.5, res.Breakdown.PracticeArea)
	require.Equal(t, 0.3, res.Breakdown.Jurisdiction)
	require.Equal(t, 0.2, res.Breakdown.Recency)
	require.Equal(t, 0.41, res.Confidence)
	require.True(t, res.Qualified)
}

func TestScoreJurisdictionBranches(t *testing.T) {
	rubric := DefaultRubric()
	rubric.RegionalSynonyms = map[string][]string{"new york": {"Manhattan", "S.D.N.Y"}}
	s, err := Compile(rubric)
	require.NoError(t, err)

	text := "ADA website accessibility claim"
	cases := []struct {
		name      string
		profile   []string
		item      string
		extraText string
		want      float64
	}{
		{"no filter", nil, "Texas", "", 0.5},
		{"unknown item", []string{"New York"}, "", "", 0.3},
		{"exact", []string{"new york"}, "NEW YORK", "", 1.0},
		{"item contains configured", []string{"New York"}, "Southern District of New York", "", 1.0},
		{"configured contains item", []string{"New York State"}, "new york", "", 1.0},
		{"regional via item", []string{"New York"}, "Manhattan Borough", "", 0.7},
		{"regional via text", []string{"New York"}, "Federal", " filed in the S.D.N.Y.", 0.7},
		{"elsewhere", []string{"New York"}, "Texas", "", 0.2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := models.TenantProfile{TenantID: "t", PracticeAreas: []string{"ada_accessibility"}, Jurisdictions: tc.profile}
			res, err := s.Score(text+tc.extraText, p, ScoreInput{Jurisdiction: tc.item, Now: now})
			require.NoError(t, err)
			require.Equal(t, tc.want, res.Breakdown.Jurisdiction)
		})
	}
}

func TestScoreProfileSynonymsMerge(t *testing.T) {
	s := newScorer(t)
	p := adaProfile()
	p.RegionalSynonyms = map[string][]string{"New York": {"Brooklyn"}}
	res, err := s.Score("ADA accessibility suit", p, ScoreInput{Jurisdiction: "Brooklyn, NY", Now: now})
	require.NoError(t, err)
	require.Equal(t, 0.7, res.Breakdown.Jurisdiction)
}

func TestScoreIncludeKeywords(t *testing.T) {
	s := newScorer(t)
	p := adaProfile()
	p.KeywordsInclude = []string{"retailer", "Hotel", "hotel", "restaurant", "  "}
	res, err := s.Score("ADA accessibility suit against a hotel chain", p, ScoreInput{Now: now})
	require.NoError(t, err)
	// retailer, hotel, restaurant after dedup; only hotel present
	require.InDelta(t, 1.0/3.0, res.Breakdown.Keyword, 1e-9)
}

func TestRecencyBuckets(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1.0},
		{24 * time.Hour, 1.0},
		{25 * time.Hour, 0.8},
		{7 * 24 * time.Hour, 0.8},
		{30 * 24 * time.Hour, 0.6},
		{90 * 24 * time.Hour, 0.4},
		{91 * 24 * time.Hour, 0.2},
		{-48 * time.Hour, 1.0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, RecencyScore(ptrTime(now.Add(-tc.age)), now), "age %s", tc.age)
	}
	require.Equal(t, 0.5, RecencyScore(nil, now))
	require.Equal(t, 0.5, RecencyScore(&time.Time{}, now))
}

func TestScoreThresholdIsStrictAndPerTenant(t *testing.T) {
	s := newScorer(t)
	p := models.TenantProfile{TenantID: "t", PracticeAreas: []string{"ada_accessibility"}, Jurisdictions: []string{"California"}}
	text := "The ADA requires accessible entrances."
	in := ScoreInput{PublishedAt: ptrTime(now.AddDate(0, 0, -200)), Now: now}

	p.MinConfidence = ptrFloat(0.41)
	res, err := s.Score(text, p, in)
	require.NoError(t, err)
	require.True(t, res.Matches)
	require.False(t, res.Qualified)
	require.Equal(t, ReasonBelowThreshold, res.Reason)

	p.MinConfidence = ptrFloat(0.4)
	res, err = s.Score(text, p, in)
	require.NoError(t, err)
	require.True(t, res.Qualified)
}

func TestScorePicksStrongestEnabledArea(t *testing.T) {
	s := newScorer(t)
	p := models.TenantProfile{TenantID: "t", PracticeAreas: []string{"ada_accessibility", "product_liability"}}
	text := "The CPSC announced a recall of defective heaters after burns were reported. The label is not accessible."
	res, err := s.Score(text, p, ScoreInput{Now: now})
	require.NoError(t, err)
	require.Equal(t, "product_liability", res.PracticeArea)
	require.Equal(t, 1.0, res.Breakdown.PracticeArea)
}

func TestScoreDeterministic(t *testing.T) {
	s := newScorer(t)
	p := adaProfile()
	p.KeywordsInclude = []string{"retail", "website"}
	in := ScoreInput{Jurisdiction: "new york", PublishedAt: ptrTime(now.AddDate(0, 0, -5)), Now: now}
	text := "Retail website accessibility suit under Title III of the ADA."
	first, err := s.Score(text, p, in)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.Score(text, p, in)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestScoreConfigErrors(t *testing.T) {
	s := newScorer(t)

	_, err := s.Score("ADA", models.TenantProfile{TenantID: "t"}, ScoreInput{})
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrConfig))

	_, err = s.Score("ADA", models.TenantProfile{TenantID: "t", PracticeAreas: []string{"maritime"}}, ScoreInput{})
	require.ErrorIs(t, err, models.ErrConfig)

	_, err = s.Score("ADA", models.TenantProfile{TenantID: "t", PracticeAreas: []string{"ada_accessibility"}, MinConfidence: ptrFloat(2)}, ScoreInput{})
	require.ErrorIs(t, err, models.ErrConfig)
}

func TestCompileRejectsBadRubric(t *testing.T) {
	r := DefaultRubric()
	r.Weights = Weights{PracticeArea: 0.5, Jurisdiction: 0.3, Keyword: 0.2, Recency: 0.1}
	_, err := Compile(r)
	require.ErrorIs(t, err, models.ErrConfig)

	r = DefaultRubric()
	r.Weights = Weights{PracticeArea: 1.2, Jurisdiction: -0.2}
	_, err = Compile(r)
	require.ErrorIs(t, err, models.ErrConfig)

	r = DefaultRubric()
	r.PracticeAreas = map[string]PracticeArea{"empty": {Name: "empty"}}
	_, err = Compile(r)
	require.ErrorIs(t, err, models.ErrConfig)

	r = DefaultRubric()
	r.PracticeAreas = map[string]PracticeArea{"broken": {Patterns: []string{"(unclosed"}}}
	_, err = Compile(r)
	require.ErrorIs(t, err, models.ErrConfig)
}

func TestCustomWeightsChangeBlend(t *testing.T) {
	r := DefaultRubric()
	r.Weights = Weights{PracticeArea: 1}
	s, err := Compile(r)
	require.NoError(t, err)
	res, err := s.Score("The ADA requires accessible entrances.", adaProfile(), ScoreInput{Now: now})
	require.NoError(t, err)
	require.Equal(t, 0.5, res.Confidence)
}

func TestScoreRegionalSynonymsMatchWholeWords(t *testing.T) {
	rubric := DefaultRubric()
	rubric.RegionalSynonyms = map[string][]string{
		"california": {"ca", "cal."},
		"new york":   {"ny", "nyc", "n.y."},
	}
	s, err := Compile(rubric)
	require.NoError(t, err)
	coasts := []string{"California", "New York"}

	cases := []struct {
		name          string
		jurisdictions []string
		item          string
		text          string
		want          float64
	}{
		{"short synonyms inside words", coasts, "Texas", "The company faces an ADA claim in any venue and will appeal.", 0.2},
		{"north carolina is not california", coasts, "North Carolina", "ADA claim", 0.2},
		{"arkansas is not kansas", []string{"Kansas"}, "Arkansas", "ADA claim", 0.2},
		{"synonym in item", coasts, "Los Angeles, CA", "ADA claim", 0.7},
		{"dotted synonym in text", coasts, "Federal", "ADA claim filed in Cal. superior court", 0.7},
		{"abbreviation at end of text", coasts, "Federal", "ADA claim filed in N.Y.", 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := models.TenantProfile{TenantID: "t", PracticeAreas: []string{"ada_accessibility"}, Jurisdictions: tc.jurisdictions}
			res, err := s.Score(tc.text, p, ScoreInput{Jurisdiction: tc.item, Now: now})
			require.NoError(t, err)
			require.Equal(t, tc.want, res.Breakdown.Jurisdiction)
		})
	}
}

func TestScoreExcludeKeywordAcrossLineBreak(t *testing.T) {
	s := newScorer(t)
	p := adaProfile()
	p.KeywordsExclude = []string{"not  a\tlawsuit"}
	text := "ADA website accessibility review. This is not a\nlawsuit, only an audit."

	res, err := s.Score(text, p, ScoreInput{Jurisdiction: "New York", PublishedAt: ptrTime(now), Now: now})
	require.NoError(t, err)
	require.False(t, res.Matches)
	require.Equal(t, ReasonExcluded, res.Reason)
	require.Equal(t, "not a lawsuit", res.ExcludedBy)
}

func TestScoreTieBreakIgnoresProfileOrder(t *testing.T) {
	s := newScorer(t)
	text := "Regulators announced a recall of the product after a data breach."
	for _, areas := range [][]string{
		{"product_liability", "data_privacy"},
		{"data_privacy", "product_liability"},
	} {
		p := models.TenantProfile{TenantID: "t", PracticeAreas: areas}
		res, err := s.Score(text, p, ScoreInput{Now: now})
		require.NoError(t, err)
		require.Equal(t, 0.25, res.Breakdown.PracticeArea)
		require.Equal(t, "data_privacy", res.PracticeArea, "profile order %v", areas)
	}
}

func TestHintsIncludePatternOnlyAreas(t *testing.T) {
	s := newScorer(t)
	require.Equal(t, []string{"product_liability"}, s.Hints("Recall notice: the heater is a fire hazard."))

	// no employment keyword appears, only its patterns
	hints := s.Hints("Former employee alleges wrongful termination and\nretaliation after reporting FLSA violations.")
	require.Equal(t, []string{"employment"}, hints)
	require.Empty(t, s.Hints("Quarterly earnings rose on strong demand."))
}
