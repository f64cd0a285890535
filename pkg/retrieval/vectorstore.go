package retrieval

import (
	"context"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Store is the vector store view the pipeline consumes. Tenant filtering
// is mandatory on every search; returned chunks carry full metadata.
// Upsert serves the external ingestion pipeline and DeleteByUser the
// external compliance service.
type Store interface {
	Search(ctx context.Context, embedding []float32, tenantID string, topK int) ([]models.Chunk, error)
	Upsert(ctx context.Context, chunks []models.Chunk) error
	DeleteByUser(ctx context.Context, tenantID, userID string) (int, error)
}
