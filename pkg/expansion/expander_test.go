package expansion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/llm"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

type stubLLM struct {
	answer string
	err    error
}

func (s stubLLM) Generate(context.Context, llm.Request) (models.Generation, error) {
	if s.err != nil {
		return models.Generation{}, s.err
	}
	return models.Generation{AnswerText: s.answer}, nil
}

func TestExpandReturnsOriginalFirst(t *testing.T) {
	e := New(stubLLM{answer: "how long are records kept\nrecord retention duration"}, "fast-model")

	out, err := e.Expand(context.Background(), "what is the retention policy", 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "what is the retention policy", out[0])
}

func TestExpandDedupsCaseInsensitive(t *testing.T) {
	e := New(stubLLM{answer: "What Is The Retention Policy\nanother phrasing"}, "fast-model")

	out, err := e.Expand(context.Background(), "what is the retention policy", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"what is the retention policy", "another phrasing"}, out)
}

func TestExpandCapsAtN(t *testing.T) {
	e := New(stubLLM{answer: "one\ntwo\nthree\nfour\nfive"}, "fast-model")

	out, err := e.Expand(context.Background(), "query", 2)
	require.NoError(t, err)
	assert.Len(t, out, 3, "original plus at most n paraphrases")
}

func TestExpandStripsListMarkers(t *testing.T) {
	e := New(stubLLM{answer: "1. first variant\n- second variant"}, "fast-model")

	out, err := e.Expand(context.Background(), "query", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"query", "first variant", "second variant"}, out)
}

func TestExpandDegradesToOriginal(t *testing.T) {
	e := New(stubLLM{err: errors.New("provider down")}, "fast-model")

	out, err := e.Expand(context.Background(), "the query", 3)
	assert.Error(t, err)
	assert.Equal(t, []string{"the query"}, out, "original survives any failure")
}

func TestExpandZeroVariants(t *testing.T) {
	e := New(stubLLM{answer: "unused"}, "fast-model")

	out, err := e.Expand(context.Background(), "the query", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"the query"}, out)
}
