package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/audit"
	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/metrics"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
	"github.com/musicofhel/enterprise-pipeline/pkg/trace"
)

type stubHandler struct {
	resp models.Response
}

func (s stubHandler) Handle(context.Context, models.Query) models.Response {
	return s.resp
}

func newTestServer(t *testing.T, resp models.Response) (*Server, *audit.MemorySink, *metrics.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.NewForTesting()
	require.NoError(t, err)

	auditSink := audit.NewMemorySink()
	sink := metrics.NewMemory()
	auditRec := audit.NewRecorder(auditSink, trace.SystemClock{}, trace.UUIDGen{})

	return NewServer(cfg, stubHandler{resp: resp}, nil, auditRec, sink), auditSink, sink
}

func TestHandleQuery(t *testing.T) {
	want := models.Response{
		TraceID: "trace-1",
		Sources: []models.Source{},
		Metadata: models.ResponseMetadata{
			RouteUsed:   "RAG",
			SchemaValid: true,
		},
	}
	server, _, _ := newTestServer(t, want)

	body := `{"text": "what is the policy", "user_id": "u1", "tenant_id": "t1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "trace-1", got.TraceID)
	assert.Equal(t, "RAG", got.Metadata.RouteUsed)
}

func TestHandleQueryRejectsInvalid(t *testing.T) {
	server, _, _ := newTestServer(t, models.Response{})

	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"text": "", "user_id": "u1", "tenant_id": "t1"}`},
		{"missing tenant", `{"text": "q", "user_id": "u1"}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			server.Router().ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleFeedback(t *testing.T) {
	server, auditSink, sink := newTestServer(t, models.Response{})

	body := `{"trace_id": "tr-1", "user_id": "u1", "tenant_id": "t1", "rating": "up"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(body))
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	events := auditSink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditFeedbackWrite, events[0].EventType)
	assert.Equal(t, "t1", events[0].TenantID)

	assert.Equal(t, 1.0, sink.Counter(metrics.FeedbackTotal, map[string]string{"rating": "up"}))
}

func TestHandleFeedbackRejectsBadRating(t *testing.T) {
	server, auditSink, _ := newTestServer(t, models.Response{})

	body := `{"trace_id": "tr-1", "user_id": "u1", "tenant_id": "t1", "rating": "meh"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(body))
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, auditSink.Events())
}

func TestHealthWithoutDatabase(t *testing.T) {
	server, _, _ := newTestServer(t, models.Response{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "healthy", payload["status"])
	assert.NotEmpty(t, payload["config_hash"])
}
