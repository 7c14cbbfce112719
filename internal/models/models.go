package models

import (
	"sort"
	"strings"
	"time"

	"leadscout/internal/util"
)

// IngestedItem is what a source adapter yields. It is never persisted as-is.
type IngestedItem struct {
	Source       string            `json:"source"`
	SourceRef    string            `json:"source_ref,omitempty"`
	Title        string            `json:"title"`
	URL          string            `json:"url,omitempty"`
	ObjectKey    string            `json:"object_key,omitempty"`
	Jurisdiction string            `json:"jurisdiction,omitempty"`
	PublishedAt  *time.Time        `json:"published_at,omitempty"`
	MIMEType     string            `json:"mime_type,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	RawPayload   []byte            `json:"raw_payload,omitempty"`
}

type Normalized struct {
	Text        string `json:"text"`
	TokenCount  int    `json:"token_count"`
	ContentHash string `json:"content_hash"`
}

type Document struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Source       string     `json:"source"`
	SourceRef    string     `json:"source_ref,omitempty"`
	ObjectKey    string     `json:"object_key,omitempty"`
	MIMEType     string     `json:"mime_type,omitempty"`
	ContentHash  string     `json:"content_hash"`
	Title        string     `json:"title,omitempty"`
	URL          string     `json:"url,omitempty"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	IngestedAt   time.Time  `json:"ingested_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type DocText struct {
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// StoreResult reports the outcome of an insert-or-get on (tenant, content hash).
// Processed is true when an earlier run already finished downstream work.
type StoreResult struct {
	DocumentID string `json:"document_id"`
	Created    bool   `json:"created"`
	Processed  bool   `json:"processed"`
}

type ChunkMetadata struct {
	Source            string     `json:"source"`
	Jurisdiction      string     `json:"jurisdiction,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	PracticeAreaHints []string   `json:"practice_area_hints,omitempty"`
}

type Chunk struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	DocumentID string        `json:"document_id"`
	Index      int           `json:"index"`
	Text       string        `json:"text"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ScoredChunk is a chunk retrieved by vector similarity.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

type Embedding struct {
	TenantID    string    `json:"tenant_id"`
	ChunkID     string    `json:"chunk_id"`
	ModelID     string    `json:"model_id"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmbeddingHash is the dedup key of an embedding: sha256 over chunk text followed by the model id.
func EmbeddingHash(text, modelID string) string {
	return util.SHA256Hex([]byte(text + modelID))
}

type TenantProfile struct {
	TenantID         string              `json:"tenant_id" yaml:"-"`
	PracticeAreas    []string            `json:"practice_areas" yaml:"practice_areas"`
	Jurisdictions    []string            `json:"jurisdictions" yaml:"jurisdictions"`
	KeywordsInclude  []string            `json:"keywords_include" yaml:"keywords_include"`
	KeywordsExclude  []string            `json:"keywords_exclude" yaml:"keywords_exclude"`
	MinConfidence    *float64            `json:"min_confidence,omitempty" yaml:"min_confidence"`
	RegionalSynonyms map[string][]string `json:"regional_synonyms,omitempty" yaml:"regional_synonyms"`
}

type RunWindow struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

type RunSummary struct {
	RunID            string    `json:"run_id"`
	TenantID         string    `json:"tenant_id"`
	Window           RunWindow `json:"window"`
	Processed        int       `json:"processed"`
	Skipped          int       `json:"skipped"`
	Failed           int       `json:"failed"`
	DocumentsCreated int       `json:"documents_created"`
	LeadsCreated     int       `json:"leads_created"`
	LeadsUpdated     int       `json:"leads_updated"`
	BriefsGenerated  int       `json:"briefs_generated"`
	Errors           []string  `json:"errors"`
}

// AddError appends a human-readable note to the summary.
func (s *RunSummary) AddError(format string, args ...any) {
	s.Errors = append(s.Errors, sprintf(format, args...))
}

// ProvenanceKey identifies "the same opportunity" across runs.
func ProvenanceKey(tenantID, practiceArea string, sourceIDs []string) string {
	ids := SortedSourceIDs(sourceIDs)
	return util.SHA256Hex([]byte(tenantID + "|" + strings.ToLower(strings.TrimSpace(practiceArea)) + "|" + strings.Join(ids, ",")))
}

// SortedSourceIDs returns a sorted, de-duplicated copy.
func SortedSourceIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
