package models

// Chunk is a retrieved passage with its identity and retrieval score.
// Metadata completeness (nonempty user, doc, tenant, chunk IDs) is
// enforced at ingest; retrieval assumes it and Validate re-checks it
// where required (before compression).
type Chunk struct {
	VectorID  string    `json:"vector_id"`
	DocID     string    `json:"doc_id"`
	ChunkID   string    `json:"chunk_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	SourceURL string    `json:"source_url,omitempty"`
	Embedding []float32 `json:"-"`
}

// Validate checks the metadata invariant.
func (c *Chunk) Validate() error {
	switch {
	case c.DocID == "":
		return NewValidationError("doc_id", "must not be empty")
	case c.ChunkID == "":
		return NewValidationError("chunk_id", "must not be empty")
	case c.TenantID == "":
		return NewValidationError("tenant_id", "must not be empty")
	case c.UserID == "":
		return NewValidationError("user_id", "must not be empty")
	}
	return nil
}

// Source is the client-facing view of a retrieved chunk.
type Source struct {
	DocID          string  `json:"doc_id"`
	ChunkID        string  `json:"chunk_id"`
	TextSnippet    string  `json:"text_snippet"`
	RelevanceScore float64 `json:"relevance_score"`
	SourceURL      string  `json:"source_url,omitempty"`
}

const sourceSnippetLimit = 280

// SourceFromChunk builds the client view, truncating the snippet.
func SourceFromChunk(c Chunk) Source {
	snippet := c.Text
	if len(snippet) > sourceSnippetLimit {
		snippet = snippet[:sourceSnippetLimit]
	}
	return Source{
		DocID:          c.DocID,
		ChunkID:        c.ChunkID,
		TextSnippet:    snippet,
		RelevanceScore: c.Score,
		SourceURL:      c.SourceURL,
	}
}
