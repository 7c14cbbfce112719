package workflows

import "leadscout/internal/models"

type RunInput struct {
	TenantID        string           `json:"tenant_id"`
	RunID           string           `json:"run_id"`
	Window          models.RunWindow `json:"window"`
	MaxConcurrent   int              `json:"max_concurrent"`
	Briefs          bool             `json:"briefs"`
	BriefMaxLeads   int              `json:"brief_max_leads,omitempty"`
	EmbedProviders  int              `json:"embed_providers"`
	LLMProviders    int              `json:"llm_providers"`
	CooldownSeconds int              `json:"cooldown_seconds"`
}

// RunProgress is served by the GetRunProgress query while a run is in flight.
type RunProgress struct {
	RunID    string            `json:"run_id"`
	TenantID string            `json:"tenant_id"`
	Stage    string            `json:"stage"`
	Items    int               `json:"items"`
	Ingested int               `json:"ingested"`
	Embedded int               `json:"embedded"`
	Scored   int               `json:"scored"`
	Briefs   map[string]string `json:"briefs,omitempty"`
	Summary  models.RunSummary `json:"summary"`
}

type LeadBriefInput struct {
	TenantID        string `json:"tenant_id"`
	RunID           string `json:"run_id"`
	LeadID          string `json:"lead_id"`
	LLMProviders    int    `json:"llm_providers"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

type LeadBriefResult struct {
	LeadID       string `json:"lead_id"`
	Status       string `json:"status"`
	ProviderName string `json:"provider_name,omitempty"`
	Model        string `json:"model,omitempty"`
	Abstained    int    `json:"abstained"`
	Path         string `json:"path,omitempty"`
	Error        string `json:"error,omitempty"`
}
