// Package generator asks a generative model for recommendations and title details and turns
// its free-form answers into items.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"animepicker/internal/extract"
	"animepicker/internal/model"
)

// Sentinel errors.
var (
	ErrNoAPIKey        = errors.New("api key is missing")
	ErrEmptyLibrary    = errors.New("library is empty")
	ErrEmptyResponse   = errors.New("model returned an empty response")
	ErrRateLimited     = errors.New("rate limit hit")
	ErrPaymentRequired = errors.New("payment required")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Completer sends one prompt to a model and returns the raw answer text.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// APIError is a non-success response from a model endpoint.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case 429:
		return ErrRateLimited
	case 402:
		return ErrPaymentRequired
	}
	return nil
}

// Generator produces recommendations and title details with one provider and model.
type Generator struct {
	completer Completer
	provider  string
	model     string
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for recommendation ids.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// New creates a Generator that labels its output with provider and model.
func New(c Completer, provider, modelName string, opts ...Option) *Generator {
	g := &Generator{
		completer: c,
		provider:  provider,
		model:     modelName,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Provider returns the provider name.
func (g *Generator) Provider() string { return g.provider }

// Model returns the model name.
func (g *Generator) Model() string { return g.model }

// RecommendRequest describes what to base recommendations on.
type RecommendRequest struct {
	Library      []model.Item
	Avoid        []Avoid
	Instructions []string
	Count        int
	// Known holds normalized titles that must not be returned.
	Known map[string]bool
}

// Recommendations is the outcome of a recommendation request.
type Recommendations struct {
	Items []model.Item
	// Dropped counts returned titles that were already known or repeated.
	Dropped int
}

// Recommend asks for new titles. Returned titles already present in Known are dropped.
func (g *Generator) Recommend(ctx context.Context, req RecommendRequest) (Recommendations, error) {
	if len(req.Library) == 0 {
		return Recommendations{}, ErrEmptyLibrary
	}
	if req.Count <= 0 {
		req.Count = 5
	}

	text, err := g.completer.Complete(ctx, RecommendPrompt(req.Library, req.Avoid, req.Instructions, req.Count), g.model)
	if err != nil {
		return Recommendations{}, err
	}
	// A cancelled request is never parsed.
	if err := ctx.Err(); err != nil {
		return Recommendations{}, err
	}

	records, err := extract.ParseArray(text)
	if err != nil {
		g.log.Warn("unparseable recommendations", "provider", g.provider, "model", g.model, "error", err)
		return Recommendations{}, fmt.Errorf("parse recommendations: %w", err)
	}

	stamp := g.now().UnixMilli()
	seen := make(map[string]bool, len(records))
	var out Recommendations
	for idx, rec := range records {
		var it model.Item
		if err := extract.Decode(rec, &it); err != nil || it.Key() == "" {
			out.Dropped++
			continue
		}
		if req.Known[it.Key()] || seen[it.Key()] {
			out.Dropped++
			continue
		}
		seen[it.Key()] = true
		it.ID = fmt.Sprintf("rec-%d-%d", stamp, idx)
		it.Model = g.model
		it.Provider = g.provider
		if it.Genres == nil {
			it.Genres = []string{}
		}
		out.Items = append(out.Items, it)
	}
	g.log.Info("recommendations generated", "provider", g.provider, "model", g.model,
		"returned", len(records), "kept", len(out.Items))
	return out, nil
}

// Info asks for details about a single title. Only instructions tagged as always-on are sent.
func (g *Generator) Info(ctx context.Context, title string, instructions []string) (model.Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Item{}, errors.New("title is empty")
	}

	text, err := g.completer.Complete(ctx, InfoPrompt(title, AlwaysInstructions(instructions)), g.model)
	if err != nil {
		return model.Item{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Item{}, err
	}

	obj, err := extract.ParseObject(text)
	if err != nil {
		return model.Item{}, fmt.Errorf("parse info for %q: %w", title, err)
	}
	var it model.Item
	if err := extract.Decode(obj, &it); err != nil {
		return model.Item{}, fmt.Errorf("decode info for %q: %w", title, err)
	}
	if it.Title == "" {
		it.Title = title
	}
	if it.Genres == nil {
		it.Genres = []string{}
	}
	return it, nil
}

// ShortMessage turns a generation error into a short user-facing hint.
func ShortMessage(err error) string {
	var pf *extract.ParseFailure
	switch {
	case err == nil:
		return "Something went wrong. Please try again."
	case errors.Is(err, context.Canceled):
		return "Generation cancelled."
	case errors.Is(err, ErrNoAPIKey):
		return "No API key configured for the generator."
	case errors.Is(err, ErrEmptyLibrary):
		return "Add some anime to your library first!"
	case errors.Is(err, ErrRateLimited):
		return "Rate limit hit. Please wait and try again."
	case errors.Is(err, ErrPaymentRequired):
		return "Not enough credits. Use a free model, lower tokens, or add credits."
	case errors.Is(err, ErrEmptyResponse):
		return "Model returned no response. Try another model."
	case errors.As(err, &pf):
		return "Could not read the model's answer. Try again or switch model."
	}
	return "AI request failed. Try again or switch model/provider."
}
