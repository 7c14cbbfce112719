package models

import "time"

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadReviewed  LeadStatus = "reviewed"
	LeadContacted LeadStatus = "contacted"
	LeadDismissed LeadStatus = "dismissed"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadReviewed, LeadContacted, LeadDismissed:
		return true
	}
	return false
}

// Terminal reports whether automated runs must leave the lead alone.
func (s LeadStatus) Terminal() bool {
	return s == LeadContacted || s == LeadDismissed
}

// CanTransition encodes new -> reviewed and new|reviewed -> contacted|dismissed.
func CanTransition(from, to LeadStatus) bool {
	switch to {
	case LeadReviewed:
		return from == LeadNew
	case LeadContacted, LeadDismissed:
		return from == LeadNew || from == LeadReviewed
	}
	return false
}

type Lead struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	PracticeArea  string     `json:"practice_area"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	Confidence    float64    `json:"confidence"`
	Jurisdiction  string     `json:"jurisdiction,omitempty"`
	SourceIDs     []string   `json:"source_ids"`
	ProvenanceKey string     `json:"provenance_key"`
	Status        LeadStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LeadCandidate is a qualified scoring result waiting to be upserted.
type LeadCandidate struct {
	PracticeArea string     `json:"practice_area"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
	Confidence   float64    `json:"confidence"`
	SourceIDs    []string   `json:"source_ids"`
	Source       string     `json:"source"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

type UpsertResult struct {
	LeadID  string     `json:"lead_id"`
	Created bool       `json:"created"`
	Updated bool       `json:"updated"`
	Status  LeadStatus `json:"status"`
}

type FeedbackLabel string

const (
	FeedbackUseful    FeedbackLabel = "useful"
	FeedbackNotUseful FeedbackLabel = "not_useful"
)

func (l FeedbackLabel) Valid() bool {
	return l == FeedbackUseful || l == FeedbackNotUseful
}

type Feedback struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenant_id"`
	LeadID    string        `json:"lead_id"`
	UserID    string        `json:"user_id"`
	Label     FeedbackLabel `json:"label"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type FeedbackSummary struct {
	PracticeArea string `json:"practice_area"`
	Useful       int    `json:"useful"`
	NotUseful    int    `json:"not_useful"`
}

type BriefBullet struct {
	Section   string   `json:"section"`
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
	Abstained bool     `json:"abstained"`
}

type Citation struct {
	Ref        string `json:"ref"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Quote      string `json:"quote"`
}

type Brief struct {
	LeadID      string        `json:"lead_id"`
	Bullets     []BriefBullet `json:"bullets"`
	Citations   []Citation    `json:"citations"`
	Model       string        `json:"model,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// LLMCall is one audited request to an external model provider.
type LLMCall struct {
	CallID       string `json:"call_id,omitempty"`
	TenantID     string `json:"tenant_id"`
	RunID        string `json:"run_id,omitempty"`
	LeadID       string `json:"lead_id,omitempty"`
	Operation    string `json:"operation"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	RequestID    string `json:"request_id,omitempty"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type,omitempty"`
}
