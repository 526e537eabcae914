package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiModel calls Google's Gemini API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel builds a Gemini client. Extra options are appended after the
// API key, e.g. option.WithEndpoint for a proxy.
func NewGeminiModel(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (m *GeminiModel) Name() string { return "gemini" }

func (m *GeminiModel) Invoke(ctx context.Context, prompt string) (string, error) {
	gm := m.client.GenerativeModel(m.model)
	gm.SetTemperature(0.7)
	gm.SetMaxOutputTokens(2048)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", geminiError(err)
	}
	return nonEmpty(geminiText(resp))
}

// geminiError maps HTTP failures onto StatusError so retries and metrics see
// the upstream code. The SDK's apierror wrapper unwraps to googleapi.Error.
func geminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return &StatusError{Provider: "gemini", Code: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("gemini generate: %w", err)
}

func (m *GeminiModel) Close() error {
	return m.client.Close()
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
