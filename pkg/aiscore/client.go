// Package aiscore delegates answer judging and sentence generation
// to a remote generative model, with client-side throttling,
// bounded retries and typed errors.
package aiscore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"digital.vasic.prompthunter/pkg/env"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/metrics"
)

// Operation names used in logs and metrics.
const (
	OpScore     = "score"
	OpSentences = "sentences"
	OpChat      = "chat"
)

// Client owns the throttle state for one session. Its methods are
// safe for concurrent use; concurrent callers queue on the
// limiter.
type Client struct {
	gen        Generator
	model      string
	limiter    *rate.Limiter
	maxRetries uint64
	retryBase  time.Duration
	retryCap   time.Duration
	jitter     time.Duration
	logger     logging.Logger
	metrics    metrics.ValidationMetrics
	seq        atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithMinInterval sets the minimum spacing between requests. Zero
// disables throttling.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the retry budget and exponential backoff shape.
func WithRetry(maxRetries int, base, ceiling, jitter time.Duration) Option {
	return func(c *Client) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		c.maxRetries = uint64(maxRetries)
		if base > 0 {
			c.retryBase = base
		}
		if ceiling >= c.retryBase {
			c.retryCap = ceiling
		}
		if jitter >= 0 {
			c.jitter = jitter
		}
	}
}

// WithModelName labels log records with the model in use.
func WithModelName(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNull(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.ValidationMetrics) Option {
	return func(c *Client) { c.metrics = metrics.OrNoop(m) }
}

// NewClient creates a Client over gen with one request per second,
// three retries, a 1s base delay capped at 8s and 250ms jitter.
func NewClient(gen Generator, opts ...Option) *Client {
	c := &Client{
		gen:        gen,
		model:      DefaultModel,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		maxRetries: 3,
		retryBase:  time.Second,
		retryCap:   8 * time.Second,
		jitter:     250 * time.Millisecond,
		logger:     logging.NullLogger{},
		metrics:    metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateKey checks presence and shape of an API key without any
// network traffic.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &Error{Kind: KindMissingKey}
	}
	if !env.ValidateAPIKeyFormat(key) {
		return &Error{
			Kind: KindInvalidKeyFormat,
			Err:  fmt.Errorf("key %s", env.MaskKey(key)),
		}
	}
	return nil
}

// ScoreResult is a clamped score with the text it was read from.
type ScoreResult struct {
	Score int
	Raw   string
	Usage *Usage
}

// Score asks the model to judge req.Answer. A blank answer scores
// 0 without a request.
func (c *Client) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return ScoreResult{}, nil
	}
	if _, err := ParseScheme(string(req.Scheme)); err != nil {
		return ScoreResult{}, err
	}

	resp, err := c.call(ctx, OpScore, req.APIKey, BuildScorePrompt(req))
	if err != nil {
		return ScoreResult{}, err
	}
	score, err := ParseScore(resp.Text)
	if err != nil {
		return ScoreResult{Raw: resp.Text, Usage: resp.Usage}, err
	}
	return ScoreResult{Score: score, Raw: resp.Text, Usage: resp.Usage}, nil
}

// GenerateSentences asks for n sentences shaped like examples.
func (c *Client) GenerateSentences(
	ctx context.Context, apiKey string, examples []string, guidance string, n int,
) ([]string, error) {
	resp, err := c.call(ctx, OpSentences, apiKey, BuildSentencePrompt(examples, guidance, n))
	if err != nil {
		return nil, err
	}
	sentences := ParseSentences(resp.Text, n)
	if len(sentences) == 0 {
		return nil, &Error{Kind: KindParseError, Err: errors.New("no sentences in response")}
	}
	return sentences, nil
}

// ChatReply is a free-form helper answer.
type ChatReply struct {
	Text          string `json:"text"`
	Usage         *Usage `json:"usage,omitempty"`
	LooksLikeCode bool   `json:"looks_like_code"`
}

// Chat sends the phase context followed by the player's question.
func (c *Client) Chat(ctx context.Context, apiKey, contextText, prompt string) (ChatReply, error) {
	var b strings.Builder
	if contextText != "" {
		b.WriteString(contextText)
		b.WriteString("\n\n")
	}
	b.WriteString("Player question:\n")
	b.WriteString(prompt)

	resp, err := c.call(ctx, OpChat, apiKey, b.String())
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{
		Text:          resp.Text,
		Usage:         resp.Usage,
		LooksLikeCode: LooksLikeCode(resp.Text),
	}, nil
}

// call runs one logical request: key check, then attempts that
// each wait on the limiter, retried on rate limits and transient
// failures. Every returned error is an *Error.
func (c *Client) call(ctx context.Context, op, apiKey, prompt string) (Response, error) {
	if err := ValidateKey(apiKey); err != nil {
		c.metrics.RecordAIRequest(op, string(KindOf(err)), 0)
		return Response{}, err
	}

	requestID := fmt.Sprintf("%s-%d", op, c.seq.Add(1))
	var hint time.Duration
	backoff := c.backoff(&hint)

	var out Response
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindTransportFailure, Err: err}
		}

		c.logger.LogAPIRequest(logging.APIRequestLog{
			Timestamp:    time.Now().Format(time.RFC3339Nano),
			RequestID:    requestID,
			Operation:    op,
			Model:        c.model,
			Attempt:      attempt,
			PromptLength: len(prompt),
		})

		start := time.Now()
		resp, err := c.gen.Generate(ctx, apiKey, prompt)
		elapsed := time.Since(start)

		if err == nil && strings.TrimSpace(resp.Text) == "" {
			err = &Error{Kind: KindEmptyResponse, Err: errors.New("no generated text")}
		}
		aerr := asError(err)
		c.logResponse(requestID, resp, aerr, elapsed)

		if aerr != nil {
			c.metrics.RecordAIRequest(op, string(aerr.Kind), elapsed)
			if aerr.Retryable() {
				hint = aerr.RetryAfter
				return retry.RetryableError(aerr)
			}
			return aerr
		}
		c.metrics.RecordAIRequest(op, "ok", elapsed)
		out = resp
		return nil
	})
	if err != nil {
		return Response{}, asError(err)
	}
	return out, nil
}

// backoff builds the retry schedule. A non-zero *hint replaces the
// next computed delay once.
func (c *Client) backoff(hint *time.Duration) retry.Backoff {
	b := retry.NewExponential(c.retryBase)
	if c.jitter > 0 {
		b = retry.WithJitter(c.jitter, b)
	}
	b = retry.WithCappedDuration(c.retryCap, b)
	b = retry.WithMaxRetries(c.maxRetries, b)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := b.Next()
		if stop {
			return 0, true
		}
		if *hint > 0 {
			next = *hint
			*hint = 0
		}
		return next, false
	})
}

func (c *Client) logResponse(requestID string, resp Response, err *Error, elapsed time.Duration) {
	rec := logging.APIResponseLog{
		Timestamp:      time.Now().Format(time.RFC3339Nano),
		RequestID:      requestID,
		Outcome:        "ok",
		TextLength:     len(resp.Text),
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if resp.Usage != nil {
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CandidateTokens = resp.Usage.CandidateTokens
		rec.TotalTokens = resp.Usage.TotalTokens
	}
	if err != nil {
		rec.Outcome = string(err.Kind)
		rec.StatusCode = err.Status
	}
	c.logger.LogAPIResponse(rec)
}

func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr
	}
	return &Error{Kind: KindTransportFailure, Err: err}
}
