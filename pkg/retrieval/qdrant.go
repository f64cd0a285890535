package retrieval

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Payload keys used in Qdrant points.
const (
	payloadDocID     = "doc_id"
	payloadChunkID   = "chunk_id"
	payloadTenantID  = "tenant_id"
	payloadUserID    = "user_id"
	payloadContent   = "content"
	payloadSourceURL = "source_url"
)

// QdrantStore serves vector search from a Qdrant collection. It is the
// deployment alternative to PgvectorStore; both satisfy Store.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a store over an existing client.
func NewQdrantStore(client *qdrant.Client, collection string) *QdrantStore {
	return &QdrantStore{client: client, collection: collection}
}

// Search returns up to topK tenant-filtered chunks with payload metadata.
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, tenantID string, topK int) ([]models.Chunk, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeyword(payloadTenantID, tenantID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.collection, err)
	}

	chunks := make([]models.Chunk, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		chunk := models.Chunk{
			Score:     float64(point.GetScore()),
			DocID:     payload[payloadDocID].GetStringValue(),
			ChunkID:   payload[payloadChunkID].GetStringValue(),
			TenantID:  payload[payloadTenantID].GetStringValue(),
			UserID:    payload[payloadUserID].GetStringValue(),
			Text:      payload[payloadContent].GetStringValue(),
			SourceURL: payload[payloadSourceURL].GetStringValue(),
		}
		if id := point.GetId(); id != nil {
			chunk.VectorID = id.GetUuid()
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Upsert writes chunks as points keyed by vector id.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %s: %w", c.VectorID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(c.VectorID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocID:     c.DocID,
				payloadChunkID:   c.ChunkID,
				payloadTenantID:  c.TenantID,
				payloadUserID:    c.UserID,
				payloadContent:   c.Text,
				payloadSourceURL: c.SourceURL,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points to collection %s: %w", len(points), s.collection, err)
	}
	return nil
}

// DeleteByUser removes a user's points within a tenant. Qdrant does not
// report the deleted count, so -1 is returned.
func (s *QdrantStore) DeleteByUser(ctx context.Context, tenantID, userID string) (int, error) {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeyword(payloadTenantID, tenantID),
				qdrant.NewMatchKeyword(payloadUserID, userID),
			},
		}),
	})
	if err != nil {
		return 0, fmt.Errorf("deleting points for user %s: %w", userID, err)
	}
	return -1, nil
}
