package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agenthands/tuberag/internal/rag"
)

const RequestIDHeader = "X-Request-ID"

// Answerer is the question-answering capability the server exposes.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Response, error)
}

// Counter reports how many transcripts are indexed.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Server struct {
	Answerer Answerer
	Index    Counter
}

func NewServer(a Answerer, idx Counter) *Server {
	return &Server{Answerer: a, Index: idx}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	r.POST("/rag/query", s.Query)
	r.GET("/healthz", s.Health)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(rag.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.InfoContext(c.Request.Context(), "request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type QueryRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, &rag.Error{Kind: rag.KindInvalidRequest, Message: "request body must be JSON with a non-empty \"prompt\"", Err: err})
		return
	}

	resp, err := s.Answerer.Answer(c.Request.Context(), req.Prompt)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) Health(c *gin.Context) {
	n, err := s.Index.Count(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "health check failed", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "transcripts": n})
}

func (s *Server) fail(c *gin.Context, err error) {
	id := c.GetString("request_id")

	var rerr *rag.Error
	if !errors.As(err, &rerr) {
		rerr = &rag.Error{Kind: rag.KindInternal, Err: err}
	}
	status := StatusFor(rerr)

	slog.ErrorContext(c.Request.Context(), "query failed",
		"request_id", id,
		"kind", rerr.Kind,
		"status", status,
		"provider", rerr.Provider,
		"model", rerr.Model,
		"upstream_status", rerr.Status,
		"attempts", rerr.Attempts,
		"error", err,
	)

	c.JSON(status, ErrorResponse{
		Error:     string(rerr.Kind),
		Message:   publicMessage(rerr),
		RequestID: id,
	})
}

// StatusFor maps an error kind to the HTTP status returned to callers.
func StatusFor(e *rag.Error) int {
	switch e.Kind {
	case rag.KindInvalidRequest:
		return http.StatusBadRequest
	case rag.KindGenerationUpstream:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case rag.KindEmbeddingFailure:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(e *rag.Error) string {
	switch e.Kind {
	case rag.KindInvalidRequest:
		return e.Message
	case rag.KindGenerationUpstream:
		return "the language model backend failed to produce an answer"
	case rag.KindEmbeddingFailure:
		return "the embedding backend failed to embed the question"
	case rag.KindMalformedOutput:
		return "the language model returned an answer in an unexpected format"
	case rag.KindIndexSchemaMismatch:
		return "the transcript index was built with a different embedding model"
	default:
		return "internal error"
	}
}
