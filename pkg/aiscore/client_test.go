package aiscore

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.prompthunter/pkg/content"
)

const goodKey = "AIzaSyA1234567890abcdefghijklmnopqrs"

// scriptedGenerator replays queued results, repeating the last one.
type scriptedGenerator struct {
	mu      sync.Mutex
	results []scripted
	prompts []string
	times   []time.Time
}

type scripted struct {
	resp Response
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, _, prompt string) (Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.times = append(g.times, time.Now())
	if len(g.results) == 0 {
		return Response{}, errors.New("no scripted result")
	}
	r := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return r.resp, r.err
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func text(s string) scripted { return scripted{resp: Response{Text: s}} }

func failure(kind ErrorKind, status int, retryAfter time.Duration) scripted {
	return scripted{err: &Error{Kind: kind, Status: status, RetryAfter: retryAfter}}
}

func fastClient(gen Generator, opts ...Option) *Client {
	base := []Option{
		WithMinInterval(0),
		WithRetry(3, time.Millisecond, 4*time.Millisecond, 0),
	}
	return NewClient(gen, append(base, opts...)...)
}

func scoreReq(answer string) ScoreRequest {
	return ScoreRequest{
		APIKey: goodKey,
		Scheme: SchemeAttack100Once,
		Answer: answer,
		Phase:  &content.Phase{Phase: 1, TaskType: "attack", Prompt: "Break it."},
	}
}

func TestValidateKey(t *testing.T) {
	assert.Equal(t, KindMissingKey, KindOf(ValidateKey("")))
	assert.Equal(t, KindMissingKey, KindOf(ValidateKey("   ")))
	assert.Equal(t, KindInvalidKeyFormat, KindOf(ValidateKey("sk-123456789012345678901234567890")))
	assert.Equal(t, KindInvalidKeyFormat, KindOf(ValidateKey("AIzaShort")))
	assert.NoError(t, ValidateKey(goodKey))

	err := ValidateKey("AIzaShortButSecret")
	assert.NotContains(t, err.Error(), "AIzaShortButSecret")
}

func TestScore_BlankAnswerMakesNoCall(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("100")}}
	res, err := fastClient(gen).Score(context.Background(), scoreReq("  \n\t"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 0, gen.calls())
}

func TestScore_KeyProblemsMakeNoCall(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("100")}}
	c := fastClient(gen)

	req := scoreReq("answer")
	req.APIKey = ""
	_, err := c.Score(context.Background(), req)
	assert.Equal(t, KindMissingKey, KindOf(err))

	req.APIKey = "not-a-key"
	_, err = c.Score(context.Background(), req)
	assert.Equal(t, KindInvalidKeyFormat, KindOf(err))
	assert.Equal(t, 0, gen.calls())
}

func TestScore_InvalidScheme(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("100")}}
	req := scoreReq("answer")
	req.Scheme = "attack_1000"
	_, err := fastClient(gen).Score(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidScheme)
	assert.Equal(t, 0, gen.calls())
}

func TestScore_ParsesAndClamps(t *testing.T) {
	tests := []struct {
		reply string
		want  int
	}{
		{"100", 100},
		{"Score: 60 points", 60},
		{"150", 100},
		{"-5", 0},
		{"99999999999999999999999", 100},
		{"-99999999999999999999999", 0},
	}
	for _, tt := range tests {
		gen := &scriptedGenerator{results: []scripted{text(tt.reply)}}
		res, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
		require.NoError(t, err, tt.reply)
		assert.Equal(t, tt.want, res.Score, tt.reply)
		assert.Equal(t, tt.reply, res.Raw)
	}
}

func TestScore_NoIntegerIsParseError(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("full marks!")}}
	_, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
	assert.Equal(t, KindParseError, KindOf(err))
}

func TestScore_EmptyResponseFailsFast(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("  ")}}
	_, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
	assert.Equal(t, KindEmptyResponse, KindOf(err))
	assert.Equal(t, 1, gen.calls())
}

func TestCall_RetriesRateLimitThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{
		failure(KindRateLimited, http.StatusTooManyRequests, 0),
		failure(KindTransportFailure, http.StatusServiceUnavailable, 0),
		text("100"),
	}}
	res, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 3, gen.calls())
}

func TestCall_RetriesAreBounded(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{
		failure(KindRateLimited, http.StatusTooManyRequests, 0),
	}}
	_, err := fastClient(gen).Score(context.Background(), scoreReq("x"))

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindRateLimited, aerr.Kind)
	assert.Equal(t, 4, gen.calls(), "one attempt plus three retries")
}

func TestCall_UnauthorizedFailsFast(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		gen := &scriptedGenerator{results: []scripted{
			failure(KindUnauthorized, status, 0),
		}}
		_, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
		assert.Equal(t, KindUnauthorized, KindOf(err))
		assert.Equal(t, 1, gen.calls())
	}
}

func TestCall_ClientErrorStatusIsNotRetried(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{
		failure(KindTransportFailure, http.StatusBadRequest, 0),
	}}
	_, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Equal(t, 1, gen.calls())
}

func TestCall_PlainErrorsAreTransportFailures(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{{err: errors.New("dial tcp: refused")}}}
	c := NewClient(gen, WithMinInterval(0), WithRetry(1, time.Millisecond, time.Millisecond, 0))
	_, err := c.Score(context.Background(), scoreReq("x"))
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Equal(t, 2, gen.calls())
}

func TestCall_HonorsServerRetryHint(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{
		failure(KindRateLimited, http.StatusTooManyRequests, 60*time.Millisecond),
		text("100"),
	}}
	_, err := fastClient(gen).Score(context.Background(), scoreReq("x"))
	require.NoError(t, err)
	require.Len(t, gen.times, 2)
	assert.GreaterOrEqual(t, gen.times[1].Sub(gen.times[0]), 50*time.Millisecond)
}

func TestCall_SelfThrottles(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("100")}}
	c := NewClient(gen, WithMinInterval(40*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := c.Score(context.Background(), scoreReq("x"))
		require.NoError(t, err)
	}
	require.Len(t, gen.times, 3)
	assert.GreaterOrEqual(t, gen.times[2].Sub(gen.times[0]), 70*time.Millisecond)
}

func TestCall_ContextCancelledDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{
		failure(KindRateLimited, http.StatusTooManyRequests, time.Hour),
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := fastClient(gen).Score(ctx, scoreReq("x"))
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateSentences(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{
		text("1. First line.\n- Second line.\n\n\"Third line.\"\n4) Fourth.\nFifth.\nSixth."),
	}}
	got, err := fastClient(gen).GenerateSentences(
		context.Background(), goodKey, []string{"Example."}, "calm", 5,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"First line.", "Second line.", "Third line.", "Fourth.", "Fifth."}, got)
	assert.Contains(t, gen.prompts[0], "Generate 5 new sentences")
	assert.Contains(t, gen.prompts[0], "Example.")
}

func TestGenerateSentences_Errors(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{text("-\n*\n")}}
	_, err := fastClient(gen).GenerateSentences(context.Background(), goodKey, nil, "", 5)
	assert.Equal(t, KindParseError, KindOf(err))

	_, err = fastClient(gen).GenerateSentences(context.Background(), "", nil, "", 5)
	assert.Equal(t, KindMissingKey, KindOf(err))
}

func TestChat(t *testing.T) {
	gen := &scriptedGenerator{results: []scripted{{resp: Response{
		Text:  "Try this:\n```js\nreturn true;\n```",
		Usage: &Usage{PromptTokens: 10, CandidateTokens: 5, TotalTokens: 15},
	}}}}
	reply, err := fastClient(gen).Chat(context.Background(), goodKey, "Role: Coder", "help?")
	require.NoError(t, err)
	assert.True(t, reply.LooksLikeCode)
	assert.Equal(t, 15, reply.Usage.TotalTokens)
	assert.Contains(t, gen.prompts[0], "Role: Coder")
	assert.Contains(t, gen.prompts[0], "Player question:\nhelp?")
}
