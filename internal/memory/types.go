// Package memory keeps per-(user, session) conversation context for prompts.
package memory

import (
	"context"
	"fmt"
	"strings"
)

// Strategy selects how past turns are fed back into prompts.
type Strategy string

const (
	// StrategyBuffered replays every turn verbatim. State is process-local.
	StrategyBuffered Strategy = "buffered"
	// StrategySummarized keeps a running summary that is persisted.
	StrategySummarized Strategy = "summarized"
)

// NoPriorConversation is what a summarized state formats to before its first turn.
const NoPriorConversation = "No prior conversation."

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(v string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(v))) {
	case "", StrategyBuffered:
		return StrategyBuffered, nil
	case StrategySummarized:
		return StrategySummarized, nil
	default:
		return "", fmt.Errorf("unsupported memory strategy %q", v)
	}
}

// Key scopes a memory state.
type Key struct {
	UserID    string
	SessionID string
}

func (k Key) String() string { return k.UserID + "/" + k.SessionID }

// Turn is one exchange as seen by memory.
type Turn struct {
	UserInput   string
	AIResponse  string
	PersonaName string
}

// Summarizer folds a new turn into a prior summary.
type Summarizer interface {
	Summarize(ctx context.Context, priorSummary string, turn Turn) (string, error)
}

// SummaryStore persists summaries for the summarized strategy.
type SummaryStore interface {
	GetSummary(ctx context.Context, userID, sessionID string) (string, bool, error)
	PutSummary(ctx context.Context, userID, sessionID, summary string) error
}
