package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnswerer(t *testing.T, client *MockLLM, docs ...[2]string) *Answerer {
	emb, idx := newTestIndex(t, docs...)
	r := NewRetriever(emb, idx, RetrieverOptions{TopK: 3, Retry: fastRetry})
	return NewAnswerer(r, client, AnswererOptions{Retry: fastRetry, Provider: "mock", Model: "mock-llm"})
}

func TestAnswer_CitesRetrievedTranscript(t *testing.T) {
	client := &MockLLM{
		Response: `{"answer": "Use a WHERE clause to filter rows.", "sources": [{"video_id": "intro_to_sql", "title": "whatever", "score": 0.1}]}`,
	}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	resp, state, err := a.answer(context.Background(), "How do I filter rows in SQL?")
	require.NoError(t, err)
	assert.Equal(t, Answered, state)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "intro_to_sql", resp.Sources[0].VideoID)
	assert.Equal(t, "intro_to_sql", resp.Sources[0].Title, "title comes from the index, not the model")
	require.NotNil(t, resp.Sources[0].Score)
	assert.Greater(t, *resp.Sources[0].Score, 0.0)

	require.Equal(t, 1, client.Calls())
	headers, err := ParseEvidence(client.Prompts[0])
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, "intro_to_sql", headers[0].VideoID)
	assert.Contains(t, client.Prompts[0], "How do I filter rows in SQL?")
}

func TestAnswer_EmptyIndexDeclines(t *testing.T) {
	client := &MockLLM{Response: `{"answer": "made up", "sources": []}`}
	a := newTestAnswerer(t, client)

	resp, state, err := a.answer(context.Background(), "What is a data lake?")
	require.NoError(t, err)
	assert.Equal(t, DeclinedToAnswer, state)
	assert.Equal(t, DeclineMessage, resp.Answer)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, client.Calls(), "no generation without evidence")
}

func TestAnswer_UnrelatedQuestionDeclines(t *testing.T) {
	client := &MockLLM{Response: `{"answer": "Helm charts package apps.", "sources": [{"video_id": "intro_to_sql"}]}`}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	for _, q := range []string{"kubernetes helm charts", "How do you do it?", "?!"} {
		resp, state, err := a.answer(context.Background(), q)
		require.NoError(t, err, q)
		assert.Equal(t, DeclinedToAnswer, state, q)
		assert.Equal(t, DeclineMessage, resp.Answer, q)
		assert.Empty(t, resp.Sources, q)
	}
	assert.Equal(t, 0, client.Calls(), "no generation without matching evidence")
}

func TestAnswer_MalformedOutputRetried(t *testing.T) {
	client := &MockLLM{
		ResponseQueue: []string{
			`I think the answer is WHERE`,
			`{"answer": "WHERE", "sources": [{"video_id": "intro_to_sql"}]`,
			"```json\n{\"answer\": \"Use WHERE.\", \"sources\": [{\"video_id\": \"intro_to_sql\", \"title\": \"intro_to_sql\", \"score\": null}]}\n```",
		},
	}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	resp, err := a.Answer(context.Background(), "How do I filter rows in SQL?")
	require.NoError(t, err)
	assert.Equal(t, "Use WHERE.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 3, client.Calls())
}

func TestAnswer_MalformedOutputExhausted(t *testing.T) {
	client := &MockLLM{Response: `{"reply": "nope"}`}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	_, err := a.Answer(context.Background(), "How do I filter rows in SQL?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 3, rerr.Attempts)
	assert.Equal(t, 3, client.Calls())
}

func TestAnswer_UpstreamFailureExhausted(t *testing.T) {
	client := &MockLLM{Err: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	resp, state, err := a.answer(context.Background(), "How do I filter rows in SQL?")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, Failed, state)
	assert.Equal(t, KindGenerationUpstream, KindOf(err))

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusServiceUnavailable, rerr.Status)
	assert.Equal(t, "mock", rerr.Provider)
	assert.Equal(t, "mock-llm", rerr.Model)
	assert.Equal(t, 3, rerr.Attempts)
	assert.Equal(t, 3, client.Calls())
}

func TestAnswer_UpstreamRecovers(t *testing.T) {
	client := &MockLLM{
		ErrQueue: []error{errors.New("connection reset")},
		Response: `{"answer": "Use WHERE.", "sources": [{"video_id": "intro_to_sql"}]}`,
	}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	resp, err := a.Answer(context.Background(), "How do I filter rows in SQL?")
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 1)
	assert.Equal(t, 2, client.Calls())
}

func TestAnswer_FabricatedSourceRejected(t *testing.T) {
	client := &MockLLM{
		ResponseQueue: []string{
			`{"answer": "See the video.", "sources": [{"video_id": "not_retrieved"}]}`,
		},
		Response: `{"answer": "Use WHERE.", "sources": [{"video_id": "intro_to_sql"}, {"video_id": "intro_to_sql"}]}`,
	}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	resp, err := a.Answer(context.Background(), "How do I filter rows in SQL?")
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1, "duplicate citations collapse")
	assert.Equal(t, "intro_to_sql", resp.Sources[0].VideoID)
	assert.Equal(t, 2, client.Calls())
}

func TestAnswer_ModelDeclinesWithEvidence(t *testing.T) {
	client := &MockLLM{Response: `{"answer": "The videos do not cover this.", "sources": []}`}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	resp, state, err := a.answer(context.Background(), "How do I filter rows in SQL?")
	require.NoError(t, err)
	assert.Equal(t, DeclinedToAnswer, state)
	assert.Equal(t, DeclineMessage, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestAnswer_SourcesFollowEvidenceOrder(t *testing.T) {
	docs := [][2]string{
		{"sql_joins", "SQL joins combine rows from tables."},
		{"sql_filters", "SQL WHERE filters rows."},
		{"spark_intro", "Spark processes data in parallel."},
	}
	client := &MockLLM{}
	a := newTestAnswerer(t, client, docs...)

	ev, err := a.retriever.Retrieve(context.Background(), "SQL rows filter", 3)
	require.NoError(t, err)
	require.Equal(t, 2, ev.Len(), "spark_intro shares no term with the query")
	first, second := ev.results[0].VideoID, ev.results[1].VideoID

	client.Response = fmt.Sprintf(`{"answer": "ok", "sources": [{"video_id": %q}, {"video_id": %q}]}`, second, first)
	resp, err := a.Answer(context.Background(), "SQL rows filter")
	require.NoError(t, err)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, first, resp.Sources[0].VideoID)
	assert.Equal(t, second, resp.Sources[1].VideoID)
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	client := &MockLLM{}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	_, err := a.Answer(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, 0, client.Calls())
}

type slowLLM struct{ calls int }

func (s *slowLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnswer_AttemptTimeout(t *testing.T) {
	emb, idx := newTestIndex(t, [2]string{"intro_to_sql", "SQL SELECT filters rows."})
	r := NewRetriever(emb, idx, RetrieverOptions{Retry: fastRetry})
	client := &slowLLM{}
	a := NewAnswerer(r, client, AnswererOptions{Retry: RetryPolicy{MaxAttempts: 2}, Timeout: 10 * time.Millisecond})

	_, err := a.Answer(context.Background(), "filter rows")
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindGenerationUpstream, rerr.Kind)
	assert.True(t, rerr.Timeout)
	assert.Equal(t, 2, client.calls)
}

func TestAnswer_CanceledCaller(t *testing.T) {
	client := &MockLLM{Err: errors.New("boom")}
	a := newTestAnswerer(t, client, [2]string{"intro_to_sql", "SQL SELECT filters rows."})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Answer(ctx, "filter rows")
	require.Error(t, err)
	assert.NotEqual(t, KindGenerationUpstream, KindOf(err))
}

func TestGenerate_RequiresRetrievedEvidence(t *testing.T) {
	client := &MockLLM{Response: `{"answer": "x", "sources": []}`}
	a := newTestAnswerer(t, client)

	_, err := a.generate(context.Background(), "q", Evidence{})
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Equal(t, 0, client.Calls())
}

func TestBuildPrompt(t *testing.T) {
	emb, idx := newTestIndex(t, [2]string{"intro_to_sql", "SQL SELECT filters rows."})
	q, err := emb.Embed(context.Background(), "filter rows")
	require.NoError(t, err)
	res, err := idx.Search(context.Background(), q, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	ev := Evidence{query: "q", results: res, retrieved: true}

	p := buildPrompt("", "How do I filter?", ev)
	assert.True(t, strings.HasPrefix(p, DefaultSystemPrompt))
	assert.Contains(t, p, "<<<EVIDENCE 1>>>")
	assert.Contains(t, p, "QUESTION:\nHow do I filter?")
	assert.Contains(t, p, `"sources"`)

	custom := buildPrompt("be terse", "q", ev)
	assert.True(t, strings.HasPrefix(custom, "be terse"))
}

// gatedLLM holds every prompt for a "slow:" question until release is closed.
type gatedLLM struct {
	started  chan struct{}
	release  chan struct{}
	response string
}

func (g *gatedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "QUESTION:\nslow:") {
		g.started <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.response, nil
}

func TestAnswer_ConcurrentRequests(t *testing.T) {
	emb, idx := newTestIndex(t,
		[2]string{"intro_to_sql", "SQL SELECT filters rows."},
		[2]string{"kafka_basics", "Kafka brokers replicate partitions."},
	)
	r := NewRetriever(emb, idx, RetrieverOptions{Retry: fastRetry})
	client := &gatedLLM{
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
		response: `{"answer": "Use WHERE.", "sources": [{"video_id": "intro_to_sql"}]}`,
	}
	a := NewAnswerer(r, client, AnswererOptions{Retry: fastRetry})
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() {
		_, err := a.Answer(ctx, "slow: how do I filter rows in SQL?")
		slow <- err
	}()
	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow request never reached generation")
	}

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := a.Answer(ctx, "How do I filter rows in SQL?")
			if err == nil && (len(resp.Sources) != 1 || resp.Sources[0].VideoID != "intro_to_sql") {
				err = fmt.Errorf("unexpected sources %+v", resp.Sources)
			}
			errs <- err
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("requests stalled behind a blocked generation")
	}
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	close(client.release)
	require.NoError(t, <-slow)
}
