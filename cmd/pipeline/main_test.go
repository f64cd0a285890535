package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/retrieval"
)

func TestNewVectorStoreDefaultsToPgvector(t *testing.T) {
	cfg, err := config.NewForTesting()
	require.NoError(t, err)

	store, err := newVectorStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &retrieval.PgvectorStore{}, store)
}

func TestNewVectorStoreSelectsQdrant(t *testing.T) {
	cfg, err := config.NewForTesting()
	require.NoError(t, err)
	cfg.Retrieval.Backend = config.VectorBackendQdrant
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_COLLECTION", "chunks")

	store, err := newVectorStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &retrieval.QdrantStore{}, store)
}

func TestNewVectorStoreRejectsBadQdrantPort(t *testing.T) {
	cfg, err := config.NewForTesting()
	require.NoError(t, err)
	cfg.Retrieval.Backend = config.VectorBackendQdrant
	t.Setenv("QDRANT_PORT", "not-a-port")

	_, err = newVectorStore(cfg, nil)
	assert.Error(t, err)
}
