package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// Endpoint is an OpenAI-compatible chat completions service.
type Endpoint struct {
	BaseURL      string
	DefaultModel string
}

// Endpoints lists the supported OpenAI-compatible providers.
var Endpoints = map[string]Endpoint{
	"openrouter": {BaseURL: "https://openrouter.ai/api/v1", DefaultModel: "tngtech/deepseek-r1t2-chimera:free"},
	"groq":       {BaseURL: "https://api.groq.com/openai/v1", DefaultModel: "llama-3.3-70b-versatile"},
	"cerebras":   {BaseURL: "https://api.cerebras.ai/v1", DefaultModel: "llama-3.3-70b"},
	"mistral":    {BaseURL: "https://api.mistral.ai/v1", DefaultModel: "mistral-large-latest"},
}

const maxAttempts = 3

// OpenAICompatible talks to a chat completions endpoint. Rate limits and server errors are
// retried up to three attempts in total.
type OpenAICompatible struct {
	client    *resty.Client
	maxTokens int

	initialWait   time.Duration
	maxWait       time.Duration
	maxRetryAfter time.Duration
}

// OpenAIOption configures an OpenAICompatible client.
type OpenAIOption func(*OpenAICompatible)

// WithRetryWaits overrides the retry waits: exponential from initial up to ceiling, and the cap
// applied to a server-provided Retry-After.
func WithRetryWaits(initial, ceiling, retryAfterCap time.Duration) OpenAIOption {
	return func(o *OpenAICompatible) {
		o.initialWait = initial
		o.maxWait = ceiling
		o.maxRetryAfter = retryAfterCap
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) OpenAIOption {
	return func(o *OpenAICompatible) { o.client.SetHeader(key, value) }
}

// NewOpenAICompatible creates a client for baseURL authenticated with apiKey.
func NewOpenAICompatible(baseURL, apiKey string, maxTokens int, timeout time.Duration, opts ...OpenAIOption) *OpenAICompatible {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey).
		SetTimeout(timeout)

	o := &OpenAICompatible{
		client:        c,
		maxTokens:     maxTokens,
		initialWait:   500 * time.Millisecond,
		maxWait:       4 * time.Second,
		maxRetryAfter: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message.
func (o *OpenAICompatible) Complete(ctx context.Context, prompt, model string) (string, error) {
	body := chatRequest{
		Model:     model,
		MaxTokens: o.maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	policy := newRetryPolicy(o.initialWait, o.maxWait)
	var resp *resty.Response
	op := func() error {
		r, err := o.client.R().
			SetContext(ctx).
			SetBody(&body).
			Post("/chat/completions")
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(fmt.Errorf("chat request: %w", err))
		}
		resp = r
		if r.IsSuccess() {
			return nil
		}
		apiErr := &APIError{Status: r.StatusCode(), Message: errorMessage(r.Body())}
		if r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500 {
			policy.after(retryAfter(r.Header().Get("Retry-After"), o.maxRetryAfter, time.Now()))
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices for model %s: %w", model, ErrEmptyResponse)
	}
	content := out.Choices[0].Message.Content
	if content == nil || *content == "" {
		return "", fmt.Errorf("empty content from model %s: %w", model, ErrEmptyResponse)
	}
	return *content, nil
}

// retryPolicy is exponential backoff whose next wait can be replaced by a Retry-After value.
type retryPolicy struct {
	exp      *backoff.ExponentialBackOff
	override time.Duration
	has      bool
}

func newRetryPolicy(initial, ceiling time.Duration) *retryPolicy {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = ceiling
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryPolicy{exp: exp}
}

func (p *retryPolicy) after(d time.Duration, ok bool) {
	p.override, p.has = d, ok
}

func (p *retryPolicy) NextBackOff() time.Duration {
	next := p.exp.NextBackOff()
	if p.has {
		next, p.has = p.override, false
	}
	return next
}

func (p *retryPolicy) Reset() {
	p.exp.Reset()
	p.has = false
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date, capped at limit.
func retryAfter(h string, limit time.Duration, now time.Time) (time.Duration, bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(h, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if t, err := http.ParseTime(h); err == nil {
		d = t.Sub(now)
	} else {
		return 0, false
	}
	return min(limit, max(0, d)), true
}

func errorMessage(body []byte) string {
	var e struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != nil && e.Error.Message != "" {
			return e.Error.Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "no details"
	}
	return s
}
