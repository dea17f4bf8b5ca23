// Package llm talks to the language model that writes study material.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyResponse is returned when the model produced no content.
	ErrEmptyResponse = errors.New("llm returned no content")
	// ErrRejected marks failures that retrying will not fix, such as an
	// invalid API key or a malformed request.
	ErrRejected = errors.New("llm rejected the request")
)

// Request is a single JSON-mode completion.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Generator returns the raw text of the model's reply.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the Generator for cfg.Provider. The returned close func
// releases provider resources.
func New(ctx context.Context, cfg Config) (Generator, func() error, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), func() error { return nil }, nil
	case ProviderGemini:
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
