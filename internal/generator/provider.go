package generator

import (
	"fmt"
	"time"
)

// Settings selects and configures a provider.
type Settings struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// NewFromSettings builds a Generator for the configured provider. An empty model selects the
// provider's default.
func NewFromSettings(s Settings, opts ...Option) (*Generator, error) {
	if s.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if s.Provider == "anthropic" {
		m := s.Model
		if m == "" {
			m = AnthropicDefaultModel
		}
		return New(NewAnthropic(s.BaseURL, s.APIKey, s.MaxTokens, s.Timeout), s.Provider, m, opts...), nil
	}

	ep, ok := Endpoints[s.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}
	base := ep.BaseURL
	if s.BaseURL != "" {
		base = s.BaseURL
	}
	m := s.Model
	if m == "" {
		m = ep.DefaultModel
	}

	var copts []OpenAIOption
	if s.Provider == "openrouter" {
		copts = append(copts, WithHeader("X-Title", "Anime Picker"))
	}
	c := NewOpenAICompatible(base, s.APIKey, s.MaxTokens, s.Timeout, copts...)
	return New(c, s.Provider, m, opts...), nil
}
