// Package memory is an in-process Store with the same semantics as the
// Postgres repositories. Tenant isolation is enforced by keying every table on
// the tenant id.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadscout/internal/models"
	"leadscout/internal/vector"
)

type embKey struct {
	tenantID, contentHash, modelID string
}

type run struct {
	summary models.RunSummary
	status  string
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	docs     map[string]*models.Document // id -> doc
	docByKey map[string]string           // tenant|hash -> id
	texts    map[string][]models.DocText // doc id -> versions
	chunks   map[string][]models.Chunk   // doc id -> chunks by index
	embs     map[embKey]models.Embedding
	leads    map[string]*models.Lead // id -> lead
	leadKeys map[string]string       // tenant|provenance -> id
	briefs   map[string]models.Brief // lead id -> brief
	feedback []models.Feedback
	profiles map[string]models.TenantProfile
	calls    []models.LLMCall
	runs     map[string]*run
}

func New() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		docs:     map[string]*models.Document{},
		docByKey: map[string]string{},
		texts:    map[string][]models.DocText{},
		chunks:   map[string][]models.Chunk{},
		embs:     map[embKey]models.Embedding{},
		leads:    map[string]*models.Lead{},
		leadKeys: map[string]string{},
		briefs:   map[string]models.Brief{},
		profiles: map[string]models.TenantProfile{},
		runs:     map[string]*run{},
	}
}

// WithClock overrides the timestamp source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return models.ErrTenantRequired
	}
	return nil
}

func (s *Store) StoreIfNew(_ context.Context, tenantID string, item models.IngestedItem, n models.Normalized) (models.StoreResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return models.StoreResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantID + "|" + n.ContentHash
	if id, ok := s.docByKey[key]; ok {
		return models.StoreResult{DocumentID: id, Processed: s.docs[id].ProcessedAt != nil}, nil
	}
	doc := &models.Document{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Source:       item.Source,
		SourceRef:    item.SourceRef,
		ObjectKey:    item.ObjectKey,
		MIMEType:     item.MIMEType,
		ContentHash:  n.ContentHash,
		Title:        item.Title,
		URL:          item.URL,
		Jurisdiction: item.Jurisdiction,
		PublishedAt:  item.PublishedAt,
		IngestedAt:   s.now(),
	}
	s.docs[doc.ID] = doc
	s.docByKey[key] = doc.ID
	s.texts[doc.ID] = []models.DocText{{DocumentID: doc.ID, Version: 1, Text: n.Text, TokenCount: n.TokenCount}}
	return models.StoreResult{DocumentID: doc.ID, Created: true}, nil
}

func (s *Store) doc(tenantID, documentID string) (*models.Document, error) {
	d, ok := s.docs[documentID]
	if !ok || d.TenantID != tenantID {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	return d, nil
}

func (s *Store) GetDocument(_ context.Context, tenantID, documentID string) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.doc(tenantID, documentID)
	if err != nil {
		return models.Document{}, err
	}
	return *d, nil
}

func (s *Store) GetText(_ context.Context, tenantID, documentID string) (models.DocText, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.doc(tenantID, documentID); err != nil {
		return models.DocText{}, err
	}
	versions := s.texts[documentID]
	if len(versions) == 0 {
		return models.DocText{}, fmt.Errorf("doc text %s: %w", documentID, models.ErrNotFound)
	}
	return versions[len(versions)-1], nil
}

func (s *Store) MarkProcessed(_ context.Context, tenantID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.doc(tenantID, documentID)
	if err != nil {
		return err
	}
	now := s.now()
	d.ProcessedAt = &now
	return nil
}

func (s *Store) SaveChunks(_ context.Context, tenantID string, chunks []models.Chunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, c := range chunks {
		if _, err := s.doc(tenantID, c.DocumentID); err != nil {
			return inserted, err
		}
		existing := s.chunks[c.DocumentID]
		dup := false
		for _, e := range existing {
			if e.Index == c.Index {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		c.TenantID = tenantID
		existing = append(existing, c)
		sort.Slice(existing, func(i, j int) bool { return existing[i].Index < existing[j].Index })
		s.chunks[c.DocumentID] = existing
		inserted++
	}
	return inserted, nil
}

func (s *Store) ListChunks(_ context.Context, tenantID, documentID string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.doc(tenantID, documentID); err != nil {
		return nil, err
	}
	return append([]models.Chunk(nil), s.chunks[documentID]...), nil
}

func (s *Store) SupportingChunks(_ context.Context, tenantID string, documentIDs []string, modelID string, query []float32, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = 8
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScoredChunk
	for _, docID := range documentIDs {
		if _, err := s.doc(tenantID, docID); err != nil {
			continue
		}
		for _, c := range s.chunks[docID] {
			e, ok := s.embs[embKey{tenantID, models.EmbeddingHash(c.Text, modelID), modelID}]
			if !ok {
				continue
			}
			out = append(out, models.ScoredChunk{Chunk: c, Score: vector.Cosine(query, e.Vector)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *Store) ExistingHashes(_ context.Context, tenantID, modelID string, hashes []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		if _, ok := s.embs[embKey{tenantID, h, modelID}]; ok {
			out[h] = true
		}
	}
	return out, nil
}

func (s *Store) InsertEmbeddings(_ context.Context, tenantID string, embs []models.Embedding) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, e := range embs {
		k := embKey{tenantID, e.ContentHash, e.ModelID}
		if _, ok := s.embs[k]; ok {
			continue
		}
		e.TenantID = tenantID
		e.CreatedAt = s.now()
		s.embs[k] = e
		inserted++
	}
	return inserted, nil
}

func (s *Store) CountEmbeddings(_ context.Context, tenantID, contentHash, modelID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.embs[embKey{tenantID, contentHash, modelID}]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *Store) UpsertLead(_ context.Context, tenantID string, c models.LeadCandidate) (models.UpsertResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return models.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := models.SortedSourceIDs(c.SourceIDs)
	key := models.ProvenanceKey(tenantID, c.PracticeArea, ids)
	if id, ok := s.leadKeys[tenantID+"|"+key]; ok {
		l := s.leads[id]
		res := models.UpsertResult{LeadID: id, Status: l.Status}
		if l.Status.Terminal() {
			return res, nil
		}
		l.Confidence = c.Confidence
		l.Summary = c.Summary
		l.Title = c.Title
		l.Jurisdiction = c.Jurisdiction
		l.UpdatedAt = s.now()
		res.Updated = true
		return res, nil
	}
	now := s.now()
	l := &models.Lead{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		PracticeArea:  c.PracticeArea,
		Title:         c.Title,
		Summary:       c.Summary,
		Confidence:    c.Confidence,
		Jurisdiction:  c.Jurisdiction,
		SourceIDs:     ids,
		ProvenanceKey: key,
		Status:        models.LeadNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.leads[l.ID] = l
	s.leadKeys[tenantID+"|"+key] = l.ID
	return models.UpsertResult{LeadID: l.ID, Created: true, Status: models.LeadNew}, nil
}

func (s *Store) lead(tenantID, leadID string) (*models.Lead, error) {
	l, ok := s.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return nil, fmt.Errorf("lead %s: %w", leadID, models.ErrNotFound)
	}
	return l, nil
}

func (s *Store) Transition(_ context.Context, tenantID, leadID string, to models.LeadStatus) (models.Lead, error) {
	if !to.Valid() {
		return models.Lead{}, fmt.Errorf("status %q: %w", to, models.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lead(tenantID, leadID)
	if err != nil {
		return models.Lead{}, err
	}
	if !models.CanTransition(l.Status, to) {
		return models.Lead{}, fmt.Errorf("lead %s %s -> %s: %w", leadID, l.Status, to, models.ErrInvalidTransition)
	}
	l.Status = to
	l.UpdatedAt = s.now()
	return cloneLead(l), nil
}

func (s *Store) GetLead(_ context.Context, tenantID, leadID string) (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lead(tenantID, leadID)
	if err != nil {
		return models.Lead{}, err
	}
	return cloneLead(l), nil
}

func (s *Store) ListLeads(_ context.Context, tenantID string, status models.LeadStatus, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Lead, 0)
	for _, l := range s.leads {
		if l.TenantID != tenantID || (status != "" && l.Status != status) {
			continue
		}
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneLead(l *models.Lead) models.Lead {
	c := *l
	c.SourceIDs = append([]string(nil), l.SourceIDs...)
	return c
}

func (s *Store) SaveBrief(_ context.Context, tenantID string, b models.Brief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lead(tenantID, b.LeadID); err != nil {
		return err
	}
	s.briefs[b.LeadID] = b
	return nil
}

func (s *Store) GetBrief(_ context.Context, tenantID, leadID string) (models.Brief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lead(tenantID, leadID); err != nil {
		return models.Brief{}, err
	}
	b, ok := s.briefs[leadID]
	if !ok {
		return models.Brief{}, fmt.Errorf("brief %s: %w", leadID, models.ErrNotFound)
	}
	return b, nil
}

func (s *Store) AddFeedback(_ context.Context, f models.Feedback) (models.Feedback, error) {
	if !f.Label.Valid() {
		return models.Feedback{}, fmt.Errorf("feedback label %q: %w", f.Label, models.ErrConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lead(f.TenantID, f.LeadID); err != nil {
		return models.Feedback{}, fmt.Errorf("add feedback: %w", err)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = s.now()
	s.feedback = append(s.feedback, f)
	return f, nil
}

func (s *Store) ListFeedback(_ context.Context, tenantID, leadID string) ([]models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Feedback, 0)
	for _, f := range s.feedback {
		if f.TenantID == tenantID && f.LeadID == leadID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) FeedbackSummary(_ context.Context, tenantID string) ([]models.FeedbackSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byArea := map[string]*models.FeedbackSummary{}
	for _, f := range s.feedback {
		if f.TenantID != tenantID {
			continue
		}
		l, ok := s.leads[f.LeadID]
		if !ok {
			continue
		}
		sum, ok := byArea[l.PracticeArea]
		if !ok {
			sum = &models.FeedbackSummary{PracticeArea: l.PracticeArea}
			byArea[l.PracticeArea] = sum
		}
		if f.Label == models.FeedbackUseful {
			sum.Useful++
		} else {
			sum.NotUseful++
		}
	}
	out := make([]models.FeedbackSummary, 0, len(byArea))
	for _, v := range byArea {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PracticeArea < out[j].PracticeArea })
	return out, nil
}

func (s *Store) Profile(_ context.Context, tenantID string) (models.TenantProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[tenantID]
	if !ok {
		return models.TenantProfile{}, fmt.Errorf("tenant profile %s: %w", tenantID, models.ErrNotFound)
	}
	return p, nil
}

func (s *Store) SaveProfile(_ context.Context, p models.TenantProfile) error {
	if err := requireTenant(p.TenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.TenantID] = p
	return nil
}

func (s *Store) RecordLLMCall(_ context.Context, rec models.LLMCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CallID == "" {
		rec.CallID = uuid.NewString()
	}
	for _, c := range s.calls {
		if c.CallID == rec.CallID {
			return nil
		}
	}
	s.calls = append(s.calls, rec)
	return nil
}

// Counts is the number of stored rows of a tenant per table.
type Counts struct {
	Documents  int
	Chunks     int
	Embeddings int
	Leads      int
}

func (s *Store) Counts(tenantID string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	for id, d := range s.docs {
		if d.TenantID != tenantID {
			continue
		}
		c.Documents++
		c.Chunks += len(s.chunks[id])
	}
	for k := range s.embs {
		if k.tenantID == tenantID {
			c.Embeddings++
		}
	}
	for _, l := range s.leads {
		if l.TenantID == tenantID {
			c.Leads++
		}
	}
	return c
}

// LLMCalls returns the audited calls of a tenant in insertion order.
func (s *Store) LLMCalls(tenantID string) []models.LLMCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LLMCall
	for _, c := range s.calls {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) StartRun(_ context.Context, tenantID, runID string, window models.RunWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[tenantID+"|"+runID] = &run{
		summary: models.RunSummary{RunID: runID, TenantID: tenantID, Window: window},
		status:  models.RunStatusRunning,
	}
	return nil
}

func (s *Store) FinishRun(_ context.Context, summary models.RunSummary, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[summary.TenantID+"|"+summary.RunID]
	if !ok {
		r = &run{}
		s.runs[summary.TenantID+"|"+summary.RunID] = r
	}
	r.summary = summary
	r.status = status
	return nil
}

func (s *Store) GetRun(_ context.Context, tenantID, runID string) (models.RunSummary, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[tenantID+"|"+runID]
	if !ok {
		return models.RunSummary{}, "", fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	return r.summary, r.status, nil
}

func (s *Store) DeleteTenantData(_ context.Context, tenantID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.docs {
		if d.TenantID != tenantID {
			continue
		}
		delete(s.docByKey, tenantID+"|"+d.ContentHash)
		delete(s.texts, id)
		delete(s.chunks, id)
		delete(s.docs, id)
	}
	for k := range s.embs {
		if k.tenantID == tenantID {
			delete(s.embs, k)
		}
	}
	for id, l := range s.leads {
		if l.TenantID != tenantID {
			continue
		}
		delete(s.leadKeys, tenantID+"|"+l.ProvenanceKey)
		delete(s.briefs, id)
		delete(s.leads, id)
	}
	s.feedback = filter(s.feedback, func(f models.Feedback) bool { return f.TenantID != tenantID })
	s.calls = filter(s.calls, func(c models.LLMCall) bool { return c.TenantID != tenantID })
	delete(s.profiles, tenantID)
	for k, r := range s.runs {
		if r.summary.TenantID == tenantID {
			delete(s.runs, k)
		}
	}
	return nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
