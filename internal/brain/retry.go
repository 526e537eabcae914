package brain

import (
	"context"
	"time"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/reliability"
)

var (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// RetryModel repeats retryable failures up to maxRetries extra times with
// capped exponential backoff.
type RetryModel struct {
	inner      Model
	maxRetries int
}

func NewRetryModel(inner Model, maxRetries int) *RetryModel {
	return &RetryModel{inner: inner, maxRetries: maxRetries}
}

func (m *RetryModel) Name() string { return m.inner.Name() }

func (m *RetryModel) Invoke(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(reliability.ExponentialBackoff(attempt-1, retryBaseDelay, retryMaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		text, err := m.inner.Invoke(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !reliability.IsRetryable(err) {
			break
		}
	}
	return "", lastErr
}

func (m *RetryModel) Close() error { return Close(m.inner) }
