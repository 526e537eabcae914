package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockModel gives deterministic replies for local runs and tests.
type MockModel struct{}

func NewMockModel() *MockModel { return &MockModel{} }

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) Invoke(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	input := lastUserLine(prompt)
	if strings.HasSuffix(strings.TrimSpace(prompt), "New summary:") {
		return fmt.Sprintf("The user talked about: %s", input), nil
	}
	return fmt.Sprintf("I hear you: %s", input), nil
}

func lastUserLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(lines[i], "User: "); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return rest
			}
		}
	}
	return "I am listening."
}
