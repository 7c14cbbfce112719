package storage

// Store bundles every Postgres repository behind one value so callers can
// depend on a single interface.
type Store struct {
	*DocumentRepo
	*ChunkRepo
	*EmbeddingRepo
	*LeadRepo
	*FeedbackRepo
	*ProfileRepo
	*LLMAuditRepo
	*RunRepo
}

func NewStore(db *DB) *Store {
	return &Store{
		DocumentRepo:  NewDocumentRepo(db),
		ChunkRepo:     NewChunkRepo(db),
		EmbeddingRepo: NewEmbeddingRepo(db),
		LeadRepo:      NewLeadRepo(db),
		FeedbackRepo:  NewFeedbackRepo(db),
		ProfileRepo:   NewProfileRepo(db),
		LLMAuditRepo:  NewLLMAuditRepo(db),
		RunRepo:       NewRunRepo(db),
	}
}
