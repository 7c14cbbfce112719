package brief

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/metrics"
	"leadscout/internal/models"
	"leadscout/internal/providers"
)

type Auditor interface {
	RecordLLMCall(ctx context.Context, rec models.LLMCall) error
}

type Generator struct {
	llm   providers.LLMProvider
	audit Auditor
	now   func() time.Time
	log   *zap.Logger
}

func NewGenerator(llm providers.LLMProvider, audit Auditor, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{llm: llm, audit: audit, now: time.Now, log: log}
}

// Generate writes the brief for lead from chunks. With no chunks the model is
// not called and every section abstains. Unparseable output also abstains;
// only a provider failure is returned as an error so callers can fail over.
func (g *Generator) Generate(ctx context.Context, lead models.Lead, practiceLabel string, chunks []models.Chunk) (models.Brief, error) {
	if len(chunks) == 0 {
		b := AbstainAll(lead.ID)
		b.GeneratedAt = g.now().UTC()
		return b, nil
	}
	req := BuildPrompt(lead, practiceLabel, chunks)
	resp, info, err := g.llm.Generate(ctx, req)
	g.record(ctx, lead, info, err)
	if err != nil {
		return models.Brief{}, fmt.Errorf("generate brief for lead %s: %w", lead.ID, err)
	}

	parsed, perr := Parse(resp.Text)
	if perr != nil {
		g.log.Warn("brief output rejected", zap.String("lead_id", lead.ID), zap.String("provider", info.Name), zap.Error(perr))
	}
	b := Verify(lead.ID, parsed, chunks)
	b.Model = info.Model
	b.GeneratedAt = g.now().UTC()
	return b, nil
}

func (g *Generator) record(ctx context.Context, lead models.Lead, info providers.ProviderInfo, callErr error) {
	status := "success"
	rec := models.LLMCall{
		TenantID:     lead.TenantID,
		LeadID:       lead.ID,
		Operation:    Operation,
		ProviderName: info.Name,
		Model:        info.Model,
		RequestID:    info.RequestID,
	}
	if callErr != nil {
		status = "error"
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	rec.Status = status
	metrics.LLMCallsTotal.WithLabelValues(info.Name, Operation, status).Inc()
	if g.audit == nil {
		return
	}
	if err := g.audit.RecordLLMCall(ctx, rec); err != nil {
		g.log.Warn("llm call audit failed", zap.String("lead_id", lead.ID), zap.Error(err))
	}
}

// Render formats a brief as markdown for the run artifacts.
func Render(lead models.Lead, b models.Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", strings.TrimSpace(lead.Title))
	fmt.Fprintf(&sb, "- Practice area: %s\n- Confidence: %.2f\n- Status: %s\n", lead.PracticeArea, lead.Confidence, lead.Status)
	if lead.Jurisdiction != "" {
		fmt.Fprintf(&sb, "- Jurisdiction: %s\n", lead.Jurisdiction)
	}
	sb.WriteString("\n")
	titles := map[string]string{}
	for _, s := range Sections {
		titles[s.Key] = s.Title
	}
	for _, bullet := range b.Bullets {
		title := titles[bullet.Section]
		if bullet.Abstained {
			fmt.Fprintf(&sb, "- **%s:** _%s_\n", title, AbstainMarker)
			continue
		}
		refs := make([]string, len(bullet.Citations))
		for i, r := range bullet.Citations {
			refs[i] = "[" + r + "]"
		}
		fmt.Fprintf(&sb, "- **%s:** %s %s\n", title, bullet.Text, strings.Join(refs, ""))
	}
	if len(b.Citations) > 0 {
		sb.WriteString("\n## Evidence\n\n")
		for _, c := range b.Citations {
			fmt.Fprintf(&sb, "- [%s] %q (document %s)\n", c.Ref, c.Quote, c.DocumentID)
		}
	}
	return sb.String()
}
