package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/agenthands/tuberag/internal/llm"
)

type AnswererOptions struct {
	SystemPrompt string
	TopK         int
	Retry        RetryPolicy
	// Timeout bounds each generation attempt. Zero means no extra bound.
	Timeout  time.Duration
	Provider string
	Model    string
}

// Answerer runs retrieve-then-generate: every question is retrieved first,
// and generation only ever sees the Evidence that retrieval produced.
type Answerer struct {
	retriever *Retriever
	llm       llm.LLMClient
	opts      AnswererOptions
}

func NewAnswerer(r *Retriever, client llm.LLMClient, opts AnswererOptions) *Answerer {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 3
	}
	return &Answerer{retriever: r, llm: client, opts: opts}
}

type session struct {
	requestID string
	state     State
}

func (s *session) to(ctx context.Context, next State) {
	if !canTransition(s.state, next) {
		// Programming error; record it and fail closed.
		slog.ErrorContext(ctx, "illegal answer state transition",
			"request_id", s.requestID, "from", s.state, "to", next)
		s.state = Failed
		return
	}
	slog.DebugContext(ctx, "answer state", "request_id", s.requestID, "from", s.state, "to", next)
	s.state = next
}

func (a *Answerer) Answer(ctx context.Context, question string) (*Response, error) {
	resp, _, err := a.answer(ctx, question)
	return resp, err
}

func (a *Answerer) answer(ctx context.Context, question string) (*Response, State, error) {
	s := &session{requestID: RequestID(ctx), state: AwaitingEvidence}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, s.state, &Error{Kind: KindInvalidRequest, Message: "prompt is empty"}
	}

	ev, err := a.retriever.Retrieve(ctx, question, a.opts.TopK)
	if err != nil {
		s.to(ctx, Failed)
		return nil, s.state, err
	}

	if !ev.Found() {
		s.to(ctx, NoEvidence)
		s.to(ctx, DeclinedToAnswer)
		return Decline(), s.state, nil
	}
	s.to(ctx, HasEvidence)

	resp, err := a.generate(ctx, question, ev)
	if err != nil {
		s.to(ctx, Failed)
		return nil, s.state, err
	}

	if resp.Declined() {
		s.to(ctx, DeclinedToAnswer)
	} else {
		s.to(ctx, Answered)
	}
	return resp, s.state, nil
}

// generate asks the model to answer from ev, retrying upstream failures and
// malformed replies with the same prompt.
func (a *Answerer) generate(ctx context.Context, question string, ev Evidence) (*Response, error) {
	if !ev.Found() {
		return nil, &Error{Kind: KindInternal, Message: "generation requires retrieved evidence"}
	}
	prompt := buildPrompt(a.opts.SystemPrompt, question, ev)

	var out *Response
	var last *Error
	attempts := 0

	err := a.opts.Retry.do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if a.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		}
		raw, err := a.llm.Generate(callCtx, prompt)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			last = a.upstreamError("generation request failed", err)
			slog.WarnContext(ctx, "generation attempt failed",
				"request_id", RequestID(ctx),
				"attempt", attempt,
				"status", last.Status,
				"error", err,
			)
			return retry.RetryableError(last)
		}

		resp, err := parseAnswer(raw, ev)
		if err != nil {
			last = &Error{Kind: KindMalformedOutput, Message: "model reply does not match the response schema",
				Provider: a.opts.Provider, Model: a.opts.Model, Err: err}
			slog.WarnContext(ctx, "malformed structured output",
				"request_id", RequestID(ctx),
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(last)
		}

		out = resp
		return nil
	})
	if err == nil {
		return out, nil
	}

	var rerr *Error
	if errors.As(err, &rerr) {
		rerr.Attempts = attempts
		return nil, rerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := a.upstreamError("generation timed out", err)
		e.Attempts = attempts
		return nil, e
	}
	return nil, &Error{Kind: KindInternal, Message: fmt.Sprintf("generation aborted after %d attempts", attempts), Err: err}
}

func (a *Answerer) upstreamError(msg string, err error) *Error {
	return &Error{
		Kind:     KindGenerationUpstream,
		Message:  msg,
		Provider: a.opts.Provider,
		Model:    a.opts.Model,
		Status:   llm.UpstreamStatus(err),
		Timeout:  llm.IsTimeout(err),
		Err:      err,
	}
}
