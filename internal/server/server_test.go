package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/tuberag/internal/rag"
)

type MockAnswerer struct {
	Response  *rag.Response
	Err       error
	Question  string
	RequestID string
}

func (m *MockAnswerer) Answer(ctx context.Context, question string) (*rag.Response, error) {
	m.Question = question
	m.RequestID = rag.RequestID(ctx)
	return m.Response, m.Err
}

type MockCounter struct {
	N   int
	Err error
}

func (m *MockCounter) Count(ctx context.Context) (int, error) { return m.N, m.Err }

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.SetupRouter().ServeHTTP(w, req)
	return w
}

func TestQuery_OK(t *testing.T) {
	score := 0.82
	a := &MockAnswerer{Response: &rag.Response{
		Answer:  "Use WHERE.",
		Sources: []rag.Source{{VideoID: "intro_to_sql", Title: "intro to sql", Score: &score}},
	}}
	s := NewServer(a, &MockCounter{})

	w := do(t, s, http.MethodPost, "/rag/query", `{"prompt": "How do I filter rows in SQL?"}`, RequestIDHeader, "req-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-1", a.RequestID)
	assert.Equal(t, "How do I filter rows in SQL?", a.Question)
	assert.JSONEq(t, `{"answer": "Use WHERE.", "sources": [{"video_id": "intro_to_sql", "title": "intro to sql", "score": 0.82}]}`, w.Body.String())
}

func TestQuery_DeclineSerialisesEmptySources(t *testing.T) {
	s := NewServer(&MockAnswerer{Response: rag.Decline()}, &MockCounter{})

	w := do(t, s, http.MethodPost, "/rag/query", `{"prompt": "unknown topic"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, rag.DeclineMessage, body["answer"])
	assert.Equal(t, []any{}, body["sources"])
}

func TestQuery_NullScore(t *testing.T) {
	s := NewServer(&MockAnswerer{Response: &rag.Response{
		Answer:  "x",
		Sources: []rag.Source{{VideoID: "a", Title: "a"}},
	}}, &MockCounter{})

	w := do(t, s, http.MethodPost, "/rag/query", `{"prompt": "q"}`)
	assert.Contains(t, w.Body.String(), `"score":null`)
}

func TestQuery_BadRequest(t *testing.T) {
	a := &MockAnswerer{}
	s := NewServer(a, &MockCounter{})

	for _, body := range []string{`not json`, `{}`, `{"prompt": ""}`} {
		w := do(t, s, http.MethodPost, "/rag/query", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), `"error":"InvalidRequest"`)
	}
	assert.Empty(t, a.Question)
}

func TestQuery_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{&rag.Error{Kind: rag.KindGenerationUpstream, Status: 503, Attempts: 3}, http.StatusBadGateway, "GenerationUpstreamFailure"},
		{&rag.Error{Kind: rag.KindGenerationUpstream, Timeout: true}, http.StatusGatewayTimeout, "GenerationUpstreamFailure"},
		{&rag.Error{Kind: rag.KindEmbeddingFailure}, http.StatusBadGateway, "EmbeddingFailure"},
		{&rag.Error{Kind: rag.KindMalformedOutput}, http.StatusInternalServerError, "MalformedStructuredOutput"},
		{&rag.Error{Kind: rag.KindIndexSchemaMismatch}, http.StatusInternalServerError, "IndexSchemaMismatch"},
		{&rag.Error{Kind: rag.KindInvalidRequest, Message: "prompt is empty"}, http.StatusBadRequest, "InvalidRequest"},
		{errors.New("nil pointer somewhere"), http.StatusInternalServerError, "InternalError"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			s := NewServer(&MockAnswerer{Err: tc.err}, &MockCounter{})
			w := do(t, s, http.MethodPost, "/rag/query", `{"prompt": "q"}`)

			assert.Equal(t, tc.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, body.Message, "nil pointer", "internal details stay in logs")
		})
	}
}

func TestHealth(t *testing.T) {
	w := do(t, NewServer(&MockAnswerer{}, &MockCounter{N: 4}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok", "transcripts": 4}`, w.Body.String())

	w = do(t, NewServer(&MockAnswerer{}, &MockCounter{Err: errors.New("db gone")}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
