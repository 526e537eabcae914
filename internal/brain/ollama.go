package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// OllamaModel calls a local Ollama server.
type OllamaModel struct {
	client *api.Client
	model  string
}

func NewOllamaModel(host, model string) (*OllamaModel, error) {
	if strings.TrimSpace(host) == "" {
		host = defaultOllamaHost
	}
	uri, err := url.Parse(strings.TrimSpace(host))
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOllamaModel
	}
	return &OllamaModel{client: api.NewClient(uri, http.DefaultClient), model: model}, nil
}

func (m *OllamaModel) Name() string { return "ollama" }

func (m *OllamaModel) Invoke(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  m.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var out strings.Builder
	err := m.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", &StatusError{Provider: "ollama", Code: statusErr.StatusCode, Body: statusErr.ErrorMessage}
		}
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return nonEmpty(out.String())
}
