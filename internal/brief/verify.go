package brief

import (
	"strings"

	"leadscout/internal/models"
	"leadscout/internal/util"
)

const quoteRunes = 240

// Verify turns parsed model output into a brief that always has the five
// sections in order. A section survives only with non-empty text and at least
// one citation that resolves to a supplied chunk; anything else abstains.
func Verify(leadID string, parsed []models.BriefBullet, chunks []models.Chunk) models.Brief {
	byRef := make(map[string]models.Chunk, len(chunks))
	for i, c := range chunks {
		byRef[ref(i)] = c
	}
	bySection := map[string]models.BriefBullet{}
	for _, b := range parsed {
		key := strings.ToLower(strings.TrimSpace(b.Section))
		if _, dup := bySection[key]; dup {
			continue
		}
		bySection[key] = b
	}

	out := models.Brief{LeadID: leadID}
	cited := map[string]bool{}
	for _, s := range Sections {
		b, ok := bySection[s.Key]
		text := strings.TrimSpace(b.Text)
		refs := validRefs(b.Citations, byRef)
		if !ok || text == "" || isAbstention(text) || len(refs) == 0 {
			out.Bullets = append(out.Bullets, abstain(s.Key))
			continue
		}
		out.Bullets = append(out.Bullets, models.BriefBullet{Section: s.Key, Text: text, Citations: refs})
		for _, r := range refs {
			if cited[r] {
				continue
			}
			cited[r] = true
			c := byRef[r]
			out.Citations = append(out.Citations, models.Citation{
				Ref:        r,
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Quote:      util.DisplayEvidenceSnippet(c.Text, text, quoteRunes),
			})
		}
	}
	return out
}

// AbstainAll is the brief for a lead with no supporting evidence.
func AbstainAll(leadID string) models.Brief {
	out := models.Brief{LeadID: leadID}
	for _, s := range Sections {
		out.Bullets = append(out.Bullets, abstain(s.Key))
	}
	return out
}

func abstain(section string) models.BriefBullet {
	return models.BriefBullet{Section: section, Text: AbstainMarker, Citations: []string{}, Abstained: true}
}

func isAbstention(text string) bool {
	return strings.Contains(strings.ToUpper(text), AbstainMarker)
}

func validRefs(citations []string, byRef map[string]models.Chunk) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range citations {
		r := strings.ToUpper(strings.Trim(strings.TrimSpace(c), "[]"))
		if _, ok := byRef[r]; !ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// Complete reports whether every bullet is either cited or abstained.
func Complete(b models.Brief) bool {
	if len(b.Bullets) != len(Sections) {
		return false
	}
	for i, bullet := range b.Bullets {
		if bullet.Section != Sections[i].Key {
			return false
		}
		if !bullet.Abstained && len(bullet.Citations) == 0 {
			return false
		}
	}
	return true
}
