package activities

import (
	"time"

	"leadscout/internal/embedder"
	"leadscout/internal/models"
)

// ErrTypeConfig marks application errors that must not be retried.
const ErrTypeConfig = "ConfigError"

type ResolveProfileInput struct {
	TenantID string `json:"tenant_id"`
}

type ResolveProfileOutput struct {
	Profile models.TenantProfile `json:"profile"`
}

type StartRunInput struct {
	TenantID string           `json:"tenant_id"`
	RunID    string           `json:"run_id"`
	Window   models.RunWindow `json:"window"`
}

type FetchSourcesInput struct {
	TenantID      string           `json:"tenant_id"`
	RunID         string           `json:"run_id"`
	Window        models.RunWindow `json:"window"`
	MaxConcurrent int              `json:"max_concurrent"`
}

// FetchSourcesOutput carries file references, not payloads, so raw items
// stay out of workflow history.
type FetchSourcesOutput struct {
	ItemRefs []string `json:"item_refs"`
	Sources  []string `json:"sources"`
	Notes    []string `json:"notes,omitempty"`
}

type IngestItemInput struct {
	TenantID string `json:"tenant_id"`
	ItemRef  string `json:"item_ref"`
}

type EmbedDocumentInput struct {
	TenantID      string `json:"tenant_id"`
	DocumentID    string `json:"document_id"`
	ProviderIndex int    `json:"provider_index"`
}

type EmbedDocumentOutput struct {
	Summary      embedder.Summary `json:"summary"`
	ProviderName string           `json:"provider_name"`
	Model        string           `json:"model"`
}

type ScoreDocumentInput struct {
	TenantID   string               `json:"tenant_id"`
	DocumentID string               `json:"document_id"`
	Profile    models.TenantProfile `json:"profile"`
	Now        time.Time            `json:"now"`
}

type UpsertLeadInput struct {
	TenantID  string               `json:"tenant_id"`
	Candidate models.LeadCandidate `json:"candidate"`
}

type GenerateBriefInput struct {
	TenantID      string `json:"tenant_id"`
	RunID         string `json:"run_id"`
	LeadID        string `json:"lead_id"`
	ProviderIndex int    `json:"provider_index"`
}

type GenerateBriefOutput struct {
	LeadID       string `json:"lead_id"`
	Abstained    int    `json:"abstained"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	Path         string `json:"path,omitempty"`
}

type FinishDocumentInput struct {
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
}

type WriteRunSummaryInput struct {
	Summary models.RunSummary `json:"summary"`
	Status  string            `json:"status"`
}

type WriteRunSummaryOutput struct {
	Path string `json:"path"`
}

type LogLLMCallInput struct {
	TenantID     string `json:"tenant_id"`
	RunID        string `json:"run_id"`
	Operation    string `json:"operation"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type,omitempty"`
}
