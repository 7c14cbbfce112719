package brief

import (
	"fmt"
	"strings"

	"leadscout/internal/models"
	"leadscout/internal/providers"
)

// AbstainMarker is what a bullet says when the evidence does not support it.
const AbstainMarker = "INSUFFICIENT_EVIDENCE"

const PromptVersion = "v1"

const Operation = "lead_brief"

type Section struct {
	Key   string
	Title string
	Ask   string
}

// Sections are the five required bullets, in output order.
var Sections = []Section{
	{Key: "what_happened", Title: "What happened", Ask: "the event or filing, in one sentence"},
	{Key: "parties_statutes", Title: "Parties & statutes", Ask: "named parties and any statutes, regulations or agencies"},
	{Key: "jurisdiction_timing", Title: "Jurisdiction & timing", Ask: "court or region and the relevant dates"},
	{Key: "tenant_fit", Title: "Why it fits", Ask: "why this matters for the practice area named below"},
	{Key: "next_steps", Title: "Next steps", Ask: "a concrete follow-up grounded in the evidence"},
}

const briefPromptTemplate = `You write intake briefs for a law firm.
Use only the evidence blocks [C1]..[Cn] supplied as context. Do not use outside knowledge.

Output STRICT JSON with this schema:
{
  "bullets": [
    {"section": "string", "text": "string", "citations": ["C1"]}
  ]
}

Rules:
- Emit exactly one bullet per section, in this order:
%s
- Every bullet must cite at least one evidence block by its label.
- If the evidence does not support a section, set text to "` + AbstainMarker + `" and citations to [].
- Keep each bullet under 40 words.
`

// BuildPrompt renders the request for one lead. Evidence blocks are labelled
// C1..Cn in chunk order.
func BuildPrompt(lead models.Lead, practiceLabel string, chunks []models.Chunk) providers.GenerateRequest {
	var sections strings.Builder
	for _, s := range Sections {
		fmt.Fprintf(&sections, "  %s: %s\n", s.Key, s.Ask)
	}
	label := strings.TrimSpace(practiceLabel)
	if label == "" {
		label = lead.PracticeArea
	}
	prompt := fmt.Sprintf(briefPromptTemplate, strings.TrimRight(sections.String(), "\n"))
	prompt += "\nPractice area: " + label
	if lead.Jurisdiction != "" {
		prompt += "\nJurisdiction: " + lead.Jurisdiction
	}
	prompt += "\nLead: " + strings.TrimSpace(lead.Title)

	evidence := make([]string, 0, len(chunks))
	for i, c := range chunks {
		evidence = append(evidence, fmt.Sprintf("[%s] %s", ref(i), strings.TrimSpace(c.Text)))
	}
	return providers.GenerateRequest{
		Operation: Operation,
		Prompt:    prompt,
		Context:   evidence,
		MaxTokens: 1024,
	}
}

func ref(i int) string {
	return fmt.Sprintf("C%d", i+1)
}
