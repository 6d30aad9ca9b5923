package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// UpstreamStatus extracts the HTTP status reported by a provider SDK error,
// or 0 when the error carries none.
func UpstreamStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var claudeReqErr *anthropic.RequestError
	if errors.As(err, &claudeReqErr) {
		return claudeReqErr.StatusCode
	}
	// Anthropic only puts the status in the message of a decoded API error,
	// so it is recovered from the documented error type.
	var claudeErr *anthropic.APIError
	if errors.As(err, &claudeErr) {
		return anthropicStatus[claudeErr.Type]
	}
	return 0
}

var anthropicStatus = map[anthropic.ErrType]int{
	anthropic.ErrTypeInvalidRequest: http.StatusBadRequest,
	anthropic.ErrTypeAuthentication: http.StatusUnauthorized,
	anthropic.ErrTypePermission:     http.StatusForbidden,
	anthropic.ErrTypeNotFound:       http.StatusNotFound,
	anthropic.ErrTypeTooLarge:       http.StatusRequestEntityTooLarge,
	anthropic.ErrTypeRateLimit:      http.StatusTooManyRequests,
	anthropic.ErrTypeApi:            http.StatusInternalServerError,
	anthropic.ErrTypeOverloaded:     529,
}

func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
