// Package brain wraps the language model providers behind one text-in,
// text-out call.
package brain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Model turns a composed prompt into reply text.
type Model interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config controls model construction.
type Config struct {
	Provider      string
	Model         string
	MaxRetries    int
	HTTPURL       string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaHost    string
	// HTTPTimeout bounds a single request of the http provider.
	HTTPTimeout time.Duration
}

// NewModel builds the configured provider. With MaxRetries > 0 the result is
// wrapped in a RetryModel.
func NewModel(ctx context.Context, cfg Config) (Model, error) {
	m, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries > 0 {
		return NewRetryModel(m, cfg.MaxRetries), nil
	}
	return m, nil
}

func newProvider(ctx context.Context, cfg Config) (Model, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoModel(ctx, cfg)
	case "gemini":
		return NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.Model)
	case "openai":
		return NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	case "ollama":
		return NewOllamaModel(cfg.OllamaHost, cfg.Model)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("model HTTP url is required for http mode")
		}
		return NewHTTPModel(cfg.HTTPURL, cfg.Model, cfg.HTTPTimeout), nil
	case "mock":
		return NewMockModel(), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

// newAutoModel prefers Gemini, then OpenAI, then an HTTP endpoint, then the
// mock. When both hosted keys are present OpenAI backs Gemini up.
func newAutoModel(ctx context.Context, cfg Config) (Model, error) {
	var chain []Model
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		m, err := NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		model := cfg.Model
		if len(chain) > 0 {
			// the configured name belongs to the primary provider
			model = ""
		}
		m, err := NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
	}

	switch len(chain) {
	case 2:
		return NewFallbackModel(chain[0], chain[1]), nil
	case 1:
		return chain[0], nil
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPModel(cfg.HTTPURL, cfg.Model, cfg.HTTPTimeout), nil
	}
	return NewMockModel(), nil
}

// Close releases provider resources when m holds any.
func Close(m Model) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
