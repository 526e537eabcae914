package brain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPModel forwards prompts to a generic completion endpoint. The endpoint
// may answer with plain text, a JSON object, SSE or NDJSON.
type HTTPModel struct {
	url    string
	model  string
	client *http.Client
}

type httpRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

func NewHTTPModel(url, model string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPModel{
		url:    strings.TrimSpace(url),
		model:  strings.TrimSpace(model),
		client: &http.Client{Timeout: timeout},
	}
}

func (m *HTTPModel) Name() string { return "http" }

func (m *HTTPModel) Invoke(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(httpRequest{Prompt: prompt, Model: m.model})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &StatusError{Provider: "http", Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		text, err := consumeStream(res.Body)
		if err != nil {
			return "", err
		}
		return nonEmpty(text)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nonEmpty(string(body))
	}
	return nonEmpty(extractText(obj))
}

// consumeStream concatenates the text of SSE "data:" lines or NDJSON lines.
func consumeStream(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "response", "delta", "output", "content", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
