package rag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures at the request boundary. "No evidence" is not a
// Kind: it is a normal declined Response.
type Kind string

const (
	KindEmbeddingFailure    Kind = "EmbeddingFailure"
	KindIndexSchemaMismatch Kind = "IndexSchemaMismatch"
	KindGenerationUpstream  Kind = "GenerationUpstreamFailure"
	KindMalformedOutput     Kind = "MalformedStructuredOutput"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindInternal            Kind = "InternalError"
)

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrEmbeddingFailure    = &Error{Kind: KindEmbeddingFailure}
	ErrIndexSchemaMismatch = &Error{Kind: KindIndexSchemaMismatch}
	ErrGenerationUpstream  = &Error{Kind: KindGenerationUpstream}
	ErrMalformedOutput     = &Error{Kind: KindMalformedOutput}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrInternal            = &Error{Kind: KindInternal}
)

type Error struct {
	Kind    Kind
	Message string

	// Upstream diagnostics, set for embedding and generation failures.
	Provider string
	Model    string
	Status   int
	Timeout  bool
	Attempts int

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Provider != "" || e.Model != "" {
		fmt.Fprintf(&b, " (provider=%s model=%s", e.Provider, e.Model)
		if e.Status != 0 {
			fmt.Fprintf(&b, " status=%d", e.Status)
		}
		if e.Attempts != 0 {
			fmt.Fprintf(&b, " attempts=%d", e.Attempts)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
