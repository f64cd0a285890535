package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// PgvectorStore serves vector search from the chunks table using the
// pgvector cosine operator.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

// NewPgvectorStore creates a store over an existing pool.
func NewPgvectorStore(pool *pgxpool.Pool) *PgvectorStore {
	return &PgvectorStore{pool: pool}
}

// Search returns up to topK tenant-filtered chunks ordered by cosine
// similarity. The similarity is mapped to [0,1] and reported as the
// retrieval score.
func (s *PgvectorStore) Search(ctx context.Context, embedding []float32, tenantID string, topK int) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT vector_id, doc_id, chunk_id, tenant_id, user_id, content, COALESCE(source_url, ''),
		        1 - (embedding <=> $1) AS score
		 FROM chunks
		 WHERE tenant_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), tenantID, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.VectorID, &c.DocID, &c.ChunkID, &c.TenantID, &c.UserID,
			&c.Text, &c.SourceURL, &c.Score); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}
	return chunks, nil
}

// Upsert inserts or replaces chunks by vector id.
func (s *PgvectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %s: %w", c.VectorID, err)
		}
		batch.Queue(
			`INSERT INTO chunks (vector_id, doc_id, chunk_id, tenant_id, user_id, content, source_url, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
			 ON CONFLICT (vector_id) DO UPDATE SET
			   doc_id = EXCLUDED.doc_id, chunk_id = EXCLUDED.chunk_id,
			   tenant_id = EXCLUDED.tenant_id, user_id = EXCLUDED.user_id,
			   content = EXCLUDED.content, source_url = EXCLUDED.source_url,
			   embedding = EXCLUDED.embedding`,
			c.VectorID, c.DocID, c.ChunkID, c.TenantID, c.UserID, c.Text, c.SourceURL,
			pgvector.NewVector(c.Embedding))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunks: %w", err)
		}
	}
	return nil
}

// DeleteByUser removes all of one user's chunks within a tenant and
// returns the count removed.
func (s *PgvectorStore) DeleteByUser(ctx context.Context, tenantID, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for user %s: %w", userID, err)
	}
	return int(tag.RowsAffected()), nil
}
