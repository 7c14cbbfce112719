package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"leadscout/internal/models"
)

const DefaultMinConfidence = 0.2

// Weights blend the four signals into one confidence. They must be non-negative and sum to 1.
type Weights struct {
	PracticeArea float64 `json:"practice_area" yaml:"practice_area"`
	Jurisdiction float64 `json:"jurisdiction" yaml:"jurisdiction"`
	Keyword      float64 `json:"keyword" yaml:"keyword"`
	Recency      float64 `json:"recency" yaml:"recency"`
}

func DefaultWeights() Weights {
	return Weights{PracticeArea: 0.4, Jurisdiction: 0.3, Keyword: 0.2, Recency: 0.1}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"practice_area": w.PracticeArea,
		"jurisdiction":  w.Jurisdiction,
		"keyword":       w.Keyword,
		"recency":       w.Recency,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.ConfigError{Field: "weights." + name, Reason: fmt.Sprintf("must be a finite non-negative number, got %v", v)}
		}
	}
	sum := w.PracticeArea + w.Jurisdiction + w.Keyword + w.Recency
	if math.Abs(sum-1) > 1e-6 {
		return &models.ConfigError{Field: "weights", Reason: fmt.Sprintf("must sum to 1, got %.6f", sum)}
	}
	return nil
}

// PracticeArea is one data-driven classifier: an ordered pattern list plus cheap
// keywords used for chunk pre-filter hints.
type PracticeArea struct {
	Name     string   `json:"name" yaml:"name"`
	Label    string   `json:"label" yaml:"label"`
	Patterns []string `json:"patterns" yaml:"patterns"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Rubric is the full scoring configuration handed to Compile.
type Rubric struct {
	Weights          Weights                 `json:"weights" yaml:"weights"`
	PracticeAreas    map[string]PracticeArea `json:"practice_areas" yaml:"practice_areas"`
	RegionalSynonyms map[string][]string     `json:"regional_synonyms" yaml:"regional_synonyms"`
	MinConfidence    float64                 `json:"min_confidence" yaml:"min_confidence"`
}

func (r Rubric) Validate() error {
	if err := r.Weights.Validate(); err != nil {
		return err
	}
	if len(r.PracticeAreas) == 0 {
		return &models.ConfigError{Field: "practice_areas", Reason: "at least one practice area is required"}
	}
	for key, area := range r.PracticeAreas {
		if len(area.Patterns) == 0 {
			return &models.ConfigError{Field: "practice_areas." + key, Reason: "no detection patterns"}
		}
		for _, p := range area.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return &models.ConfigError{Field: "practice_areas." + key, Reason: fmt.Sprintf("bad pattern %q: %v", p, err)}
			}
		}
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return &models.ConfigError{Field: "min_confidence", Reason: "must be within [0,1]"}
	}
	return nil
}

// AreaNames returns the rubric's practice area keys in sorted order.
func (r Rubric) AreaNames() []string {
	out := make([]string, 0, len(r.PracticeAreas))
	for k := range r.PracticeAreas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRubric ships the built-in practice areas. Regional synonyms are
// deployment data and come from the rubric file or the tenant profile.
func DefaultRubric() Rubric {
	return Rubric{
		Weights:       DefaultWeights(),
		MinConfidence: DefaultMinConfidence,
		PracticeAreas: map[string]PracticeArea{
			"ada_accessibility": {
				Name:  "ada_accessibility",
				Label: "ADA and digital accessibility",
				Patterns: []string{
					`\bada\b|americans with disabilities act`,
					`(web ?site|web|digital|online|mobile app)\s+accessib`,
					`accessib(le|ility)`,
					`title iii|wcag|screen[- ]reader|disabilit`,
				},
				Keywords: []string{"ada", "accessib", "disabilit", "wcag", "screen reader"},
			},
			"product_liability": {
				Name:  "product_liability",
				Label: "Product liability and recalls",
				Patterns: []string{
					`\brecall(s|ed)?\b`,
					`\bdefect(s|ive)?\b`,
					`\b(injur(y|ies|ed)|burns?|fires?|deaths?)\b`,
					`\bcpsc\b|\bnhtsa\b|\bfda\b|consumer product safety`,
				},
				Keywords: []string{"recall", "defect", "injur", "hazard"},
			},
			"data_privacy": {
				Name:  "data_privacy",
				Label: "Data privacy and breach litigation",
				Patterns: []string{
					`data breach|breach of (personal|customer) (data|information)`,
					`\b(ccpa|cpra|gdpr|bipa|hipaa)\b`,
					`personal (information|data)|biometric`,
					`class action`,
				},
				Keywords: []string{"breach", "privacy", "biometric", "personal data"},
			},
			"employment": {
				Name:  "employment",
				Label: "Employment and wage-and-hour",
				Patterns: []string{
					`wrongful termination|retaliat(ion|ed)`,
					`\b(flsa|eeoc)\b|title vii`,
					`wage[- ]and[- ]hour|overtime|unpaid wages`,
					`discriminat(ion|ory)|harass(ment)?`,
				},
				Keywords: []string{"wage", "overtime", "discriminat", "eeoc", "harass"},
			},
			"securities": {
				Name:  "securities",
				Label: "Securities enforcement and litigation",
				Patterns: []string{
					`\bsec\b|securities and exchange commission`,
					`securities (fraud|class action)|10b-5`,
					`shareholders?|investors?`,
					`restatement|misleading statements`,
				},
				Keywords: []string{"securities", "shareholder", "investor"},
			},
		},
		RegionalSynonyms: map[string][]string{},
	}
}

// normalizeKey lowercases s and collapses every whitespace run to one space,
// so a phrase wrapped across lines still matches.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
