package aiscore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// Usage holds the token counters reported with a response.
type Usage struct {
	PromptTokens    int `json:"prompt_tokens"`
	CandidateTokens int `json:"candidate_tokens"`
	TotalTokens     int `json:"total_tokens"`
}

// Response is the generated text of one call.
type Response struct {
	Text  string
	Usage *Usage
}

// Generator is the single text-completion call the client depends
// on. Implementations should return *Error for classified
// failures.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (Response, error)
}

// GeminiGenerator calls the Gemini API through the official SDK.
type GeminiGenerator struct {
	Model       string
	Temperature float32
	// Options are appended to the per-call API key option.
	Options []option.ClientOption
}

// NewGeminiGenerator creates a generator for model at the given
// temperature. An empty model selects DefaultModel.
func NewGeminiGenerator(model string, temperature float64) *GeminiGenerator {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &GeminiGenerator{Model: model, Temperature: float32(temperature)}
}

// Generate sends prompt as a single user turn.
func (g *GeminiGenerator) Generate(
	ctx context.Context, apiKey, prompt string,
) (Response, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.Options...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return Response{}, &Error{Kind: KindTransportFailure, Err: err}
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	temperature := g.Temperature
	m.GenerationConfig = genai.GenerationConfig{Temperature: &temperature}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Response{}, classifyGemini(err, time.Now())
	}

	out := Response{Text: joinText(resp)}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &Usage{
			PromptTokens:    int(u.PromptTokenCount),
			CandidateTokens: int(u.CandidatesTokenCount),
			TotalTokens:     int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// joinText concatenates the text parts of the first candidate.
func joinText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return ""
	}
	var parts []string
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, "\n")
}

func classifyGemini(err error, now time.Time) *Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		var hint time.Duration
		if d, ok := ParseRetryAfter(gerr.Header.Get("Retry-After"), now); ok {
			hint = d
		} else if d, ok := retryDelayFromBody(gerr.Body); ok {
			hint = d
		}
		return FromStatus(gerr.Code, hint, err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &Error{
			Kind: KindEmptyResponse,
			Err:  fmt.Errorf("response blocked: %w", err),
		}
	}

	return &Error{Kind: KindTransportFailure, Err: err}
}
