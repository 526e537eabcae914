package brain

import (
	"context"
	"errors"
	"fmt"
)

// FallbackModel tries primary first and falls back on any error other than
// cancellation.
type FallbackModel struct {
	primary  Model
	fallback Model
}

func NewFallbackModel(primary, fallback Model) *FallbackModel {
	return &FallbackModel{primary: primary, fallback: fallback}
}

func (m *FallbackModel) Name() string {
	return m.primary.Name() + "+" + m.fallback.Name()
}

func (m *FallbackModel) Invoke(ctx context.Context, prompt string) (string, error) {
	text, err := m.primary.Invoke(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	text, fallbackErr := m.fallback.Invoke(ctx, prompt)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary model error: %w; fallback model error: %v", err, fallbackErr)
	}
	return text, nil
}

func (m *FallbackModel) Close() error {
	return errors.Join(Close(m.primary), Close(m.fallback))
}
