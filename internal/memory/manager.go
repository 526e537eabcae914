package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrSummarize wraps failures of the secondary summarization call.
	ErrSummarize = errors.New("summarize conversation")
	// ErrForgotten is returned by Acquire when the state was dropped while
	// the caller waited for it.
	ErrForgotten = errors.New("memory state forgotten")
)

// Handle is the memory state of one key. The zero value is not usable; obtain
// handles from Manager.Acquire or Manager.GetOrCreate.
type Handle struct {
	key Key

	// turn is a one-slot semaphore serializing whole chat turns on this key.
	turn chan struct{}
	// forgotten is set by Forget and guarded by Manager.mu.
	forgotten bool

	mu      sync.RWMutex
	loaded  bool
	turns   []Turn
	summary string
}

// Options configures a Manager.
type Options struct {
	Strategy   Strategy
	Summarizer Summarizer
	// Summaries is optional; without it summarized state is process-local.
	Summaries SummaryStore
}

// Manager owns every memory state, keyed by (user, session).
//
// Lock discipline: mu guards only the states map. Each Handle has its own
// RWMutex for its contents and a turn semaphore that callers take through
// Acquire for the whole read-modify-write of a chat turn.
type Manager struct {
	strategy   Strategy
	summarizer Summarizer
	summaries  SummaryStore

	mu     sync.Mutex
	states map[Key]*Handle
}

func NewManager(opts Options) (*Manager, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyBuffered
	}
	switch strategy {
	case StrategyBuffered:
	case StrategySummarized:
		if opts.Summarizer == nil {
			return nil, errors.New("summarized memory requires a summarizer")
		}
	default:
		return nil, fmt.Errorf("unsupported memory strategy %q", strategy)
	}
	return &Manager{
		strategy:   strategy,
		summarizer: opts.Summarizer,
		summaries:  opts.Summaries,
		states:     make(map[Key]*Handle),
	}, nil
}

func (m *Manager) Strategy() Strategy { return m.strategy }

// Len reports how many keys currently hold state.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

func (m *Manager) handle(key Key) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.states[key]
	if !ok {
		h = &Handle{key: key, turn: make(chan struct{}, 1)}
		m.states[key] = h
	}
	return h
}

// Acquire blocks until no other turn holds key, or ctx is done, and returns
// the live state for key together with its release func, which must be
// called exactly once. If the state is forgotten while the caller waits,
// Acquire returns ErrForgotten.
func (m *Manager) Acquire(ctx context.Context, key Key) (*Handle, func(), error) {
	h := m.handle(key)
	select {
	case h.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	var once sync.Once
	release := func() { once.Do(func() { <-h.turn }) }

	m.mu.Lock()
	gone := h.forgotten
	m.mu.Unlock()
	if gone {
		release()
		return nil, nil, fmt.Errorf("acquire %s: %w", key, ErrForgotten)
	}
	return h, release, nil
}

// GetOrCreate returns the state for key, allocating it on first use. Repeat
// calls return the same handle. For the summarized strategy the persisted
// summary is loaded the first time; a failed load is retried on the next call.
func (m *Manager) GetOrCreate(ctx context.Context, key Key) (*Handle, error) {
	h := m.handle(key)
	if err := m.Load(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Load fills h from the summary store on first use. Turns call it on the
// handle returned by Acquire so the whole turn works on one state.
func (m *Manager) Load(ctx context.Context, h *Handle) error {
	h.mu.RLock()
	loaded := h.loaded
	h.mu.RUnlock()
	if loaded {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return nil
	}
	if m.strategy == StrategySummarized && m.summaries != nil {
		summary, ok, err := m.summaries.GetSummary(ctx, h.key.UserID, h.key.SessionID)
		if err != nil {
			return fmt.Errorf("load summary for %s: %w", h.key, err)
		}
		if ok {
			h.summary = summary
		}
	}
	h.loaded = true
	return nil
}

// FormatContext renders the state as prompt history text.
func (m *Manager) FormatContext(h *Handle) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if m.strategy == StrategySummarized {
		if strings.TrimSpace(h.summary) == "" {
			return NoPriorConversation
		}
		return h.summary
	}

	var b strings.Builder
	for i, t := range h.turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(t.UserInput)
		b.WriteByte('\n')
		b.WriteString(t.PersonaName)
		b.WriteString(": ")
		b.WriteString(t.AIResponse)
	}
	return b.String()
}

// Record folds a completed turn into the state.
//
// Summarized mode calls the summarizer without holding the handle lock and
// swaps the result in atomically, so readers see either the old or the new
// summary. If summarization fails the prior summary is kept and the error is
// returned. A failed persist leaves the new summary in memory and is returned.
func (m *Manager) Record(ctx context.Context, h *Handle, turn Turn) error {
	if m.strategy == StrategyBuffered {
		h.mu.Lock()
		h.turns = append(h.turns, turn)
		h.mu.Unlock()
		return nil
	}

	h.mu.RLock()
	prior := h.summary
	h.mu.RUnlock()

	next, err := m.summarizer.Summarize(ctx, prior, turn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSummarize, err)
	}
	next = strings.TrimSpace(next)
	if next == "" {
		return fmt.Errorf("%w: empty summary", ErrSummarize)
	}

	h.mu.Lock()
	h.summary = next
	h.mu.Unlock()

	if m.summaries != nil {
		if err := m.summaries.PutSummary(ctx, h.key.UserID, h.key.SessionID, next); err != nil {
			return fmt.Errorf("persist summary for %s: %w", h.key, err)
		}
	}
	return nil
}

// Forget drops the state for key. Callers should hold the key via Acquire so
// no turn is mid-flight; turns still waiting on the dropped state get
// ErrForgotten.
func (m *Manager) Forget(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.states[key]; ok {
		h.forgotten = true
		delete(m.states, key)
	}
}
