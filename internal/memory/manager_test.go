package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type summarizerFunc func(ctx context.Context, prior string, turn Turn) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, prior string, turn Turn) (string, error) {
	return f(ctx, prior, turn)
}

type mapSummaries struct {
	mu      sync.Mutex
	data    map[Key]string
	getErr  error
	putErr  error
	putHits int
}

func newMapSummaries() *mapSummaries { return &mapSummaries{data: make(map[Key]string)} }

func (s *mapSummaries) GetSummary(_ context.Context, userID, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[Key{userID, sessionID}]
	return v, ok, nil
}

func (s *mapSummaries) PutSummary(_ context.Context, userID, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putHits++
	if s.putErr != nil {
		return s.putErr
	}
	s.data[Key{userID, sessionID}] = summary
	return nil
}

func newBuffered(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Options{Strategy: StrategyBuffered})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestBufferedFormatContextKeepsSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	m := newBuffered(t)
	h, err := m.GetOrCreate(ctx, Key{"alice", "s1"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got := m.FormatContext(h); got != "" {
		t.Fatalf("empty buffered context = %q, want empty", got)
	}

	var want []string
	for i := 0; i < 5; i++ {
		turn := Turn{UserInput: fmt.Sprintf("msg %d", i), AIResponse: fmt.Sprintf("reply %d", i), PersonaName: "Counselor"}
		if err := m.Record(ctx, h, turn); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		want = append(want, fmt.Sprintf("User: msg %d\nCounselor: reply %d", i, i))
		if got := m.FormatContext(h); got != strings.Join(want, "\n") {
			t.Fatalf("after turn %d FormatContext() = %q, want %q", i, got, strings.Join(want, "\n"))
		}
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newBuffered(t)
	a, _ := m.GetOrCreate(ctx, Key{"alice", "s1"})
	b, _ := m.GetOrCreate(ctx, Key{"alice", "s1"})
	if a != b {
		t.Fatalf("GetOrCreate returned different handles for the same key")
	}
	c, _ := m.GetOrCreate(ctx, Key{"alice", "s2"})
	if a == c {
		t.Fatalf("different sessions share a handle")
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestKeysAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	m := newBuffered(t)
	alice, _ := m.GetOrCreate(ctx, Key{"alice", "s1"})
	bob, _ := m.GetOrCreate(ctx, Key{"bob", "s1"})
	_ = m.Record(ctx, alice, Turn{UserInput: "hi", AIResponse: "hello", PersonaName: "Coach"})
	if got := m.FormatContext(bob); got != "" {
		t.Fatalf("bob sees alice's memory: %q", got)
	}
}

func TestSummarizedReplacesSummaryAndPersists(t *testing.T) {
	ctx := context.Background()
	store := newMapSummaries()
	calls := 0
	m, err := NewManager(Options{
		Strategy: StrategySummarized,
		Summarizer: summarizerFunc(func(_ context.Context, prior string, turn Turn) (string, error) {
			calls++
			return fmt.Sprintf("summary %d (%s)", calls, turn.UserInput), nil
		}),
		Summaries: store,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	key := Key{"alice", "s1"}
	h, _ := m.GetOrCreate(ctx, key)
	if got := m.FormatContext(h); got != NoPriorConversation {
		t.Fatalf("FormatContext() = %q, want sentinel", got)
	}

	if err := m.Record(ctx, h, Turn{UserInput: "first", AIResponse: "r1"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := m.Record(ctx, h, Turn{UserInput: "second", AIResponse: "r2"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := m.FormatContext(h); got != "summary 2 (second)" {
		t.Fatalf("FormatContext() = %q, want newest summary", got)
	}
	if store.data[key] != "summary 2 (second)" {
		t.Fatalf("persisted summary = %q", store.data[key])
	}
}

func TestSummarizedLoadsPersistedSummary(t *testing.T) {
	ctx := context.Background()
	store := newMapSummaries()
	store.data[Key{"alice", "s1"}] = "Alice has been anxious about exams."
	m, _ := NewManager(Options{
		Strategy:   StrategySummarized,
		Summarizer: summarizerFunc(func(context.Context, string, Turn) (string, error) { return "x", nil }),
		Summaries:  store,
	})
	h, err := m.GetOrCreate(ctx, Key{"alice", "s1"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got := m.FormatContext(h); got != "Alice has been anxious about exams." {
		t.Fatalf("FormatContext() = %q", got)
	}
}

func TestSummarizedLoadFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	store := newMapSummaries()
	store.getErr = errors.New("db down")
	m, _ := NewManager(Options{
		Strategy:   StrategySummarized,
		Summarizer: summarizerFunc(func(context.Context, string, Turn) (string, error) { return "x", nil }),
		Summaries:  store,
	})
	if _, err := m.GetOrCreate(ctx, Key{"alice", "s1"}); err == nil {
		t.Fatalf("GetOrCreate() error = nil, want load failure")
	}
	store.getErr = nil
	store.data[Key{"alice", "s1"}] = "recovered"
	h, err := m.GetOrCreate(ctx, Key{"alice", "s1"})
	if err != nil {
		t.Fatalf("GetOrCreate() retry error = %v", err)
	}
	if got := m.FormatContext(h); got != "recovered" {
		t.Fatalf("FormatContext() = %q, want recovered", got)
	}
}

func TestSummarizerFailureKeepsPriorSummary(t *testing.T) {
	ctx := context.Background()
	fail := false
	m, _ := NewManager(Options{
		Strategy: StrategySummarized,
		Summarizer: summarizerFunc(func(_ context.Context, _ string, turn Turn) (string, error) {
			if fail {
				return "", errors.New("model down")
			}
			return "kept: " + turn.UserInput, nil
		}),
	})
	h, _ := m.GetOrCreate(ctx, Key{"alice", "s1"})
	if err := m.Record(ctx, h, Turn{UserInput: "one"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	fail = true
	err := m.Record(ctx, h, Turn{UserInput: "two"})
	if !errors.Is(err, ErrSummarize) {
		t.Fatalf("Record() error = %v, want ErrSummarize", err)
	}
	if got := m.FormatContext(h); got != "kept: one" {
		t.Fatalf("FormatContext() = %q, want prior summary", got)
	}
}

func TestSummaryPersistFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	store := newMapSummaries()
	store.putErr = errors.New("disk full")
	m, _ := NewManager(Options{
		Strategy:   StrategySummarized,
		Summarizer: summarizerFunc(func(context.Context, string, Turn) (string, error) { return "new", nil }),
		Summaries:  store,
	})
	h, _ := m.GetOrCreate(ctx, Key{"alice", "s1"})
	if err := m.Record(ctx, h, Turn{UserInput: "one"}); err == nil {
		t.Fatalf("Record() error = nil, want persist failure")
	}
	if got := m.FormatContext(h); got != "new" {
		t.Fatalf("FormatContext() = %q, want in-memory summary", got)
	}
}

func TestSlowSummarizerNeverExposesPartialState(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})
	m, _ := NewManager(Options{
		Strategy: StrategySummarized,
		Summarizer: summarizerFunc(func(_ context.Context, prior string, _ Turn) (string, error) {
			if prior == "" {
				return "old", nil
			}
			close(started)
			<-release
			return "new", nil
		}),
	})
	h, _ := m.GetOrCreate(ctx, Key{"alice", "s1"})
	_ = m.Record(ctx, h, Turn{UserInput: "one"})

	done := make(chan error, 1)
	go func() { done <- m.Record(ctx, h, Turn{UserInput: "two"}) }()
	<-started
	if got := m.FormatContext(h); got != "old" {
		t.Fatalf("FormatContext() during summarization = %q, want old", got)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := m.FormatContext(h); got != "new" {
		t.Fatalf("FormatContext() after summarization = %q, want new", got)
	}
}

func TestAcquireSerializesSameKey(t *testing.T) {
	m := newBuffered(t)
	key := Key{"alice", "s1"}
	h, release, err := m.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got, _ := m.GetOrCreate(context.Background(), key); got != h {
		t.Fatalf("Acquire() and GetOrCreate() returned different states")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, _, err := m.Acquire(ctx, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Acquire() error = %v, want deadline exceeded", err)
	}

	_, other, err := m.Acquire(context.Background(), Key{"alice", "s2"})
	if err != nil {
		t.Fatalf("Acquire() other key error = %v", err)
	}
	other()

	release()
	release()
	_, again, err := m.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	again()
}

func TestForgetDropsState(t *testing.T) {
	ctx := context.Background()
	m := newBuffered(t)
	key := Key{"alice", "s1"}
	h, _ := m.GetOrCreate(ctx, key)
	_ = m.Record(ctx, h, Turn{UserInput: "hi", AIResponse: "hello", PersonaName: "Coach"})
	m.Forget(key)
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	fresh, _ := m.GetOrCreate(ctx, key)
	if got := m.FormatContext(fresh); got != "" {
		t.Fatalf("forgotten state still formats as %q", got)
	}
}

func TestAcquireWaiterSeesForgottenState(t *testing.T) {
	m := newBuffered(t)
	key := Key{"alice", "s1"}
	_, release, err := m.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := m.Acquire(context.Background(), key)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	m.Forget(key)
	release()

	select {
	case err := <-done:
		if !errors.Is(err, ErrForgotten) {
			t.Fatalf("waiting Acquire() error = %v, want ErrForgotten", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiting Acquire() did not return")
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after forgotten waiter", m.Len())
	}

	// A later turn on the key starts from fresh state.
	h, release, err := m.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire() after forget error = %v", err)
	}
	defer release()
	if err := m.Load(context.Background(), h); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := m.FormatContext(h); got != "" {
		t.Fatalf("FormatContext() = %q, want empty", got)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Options{Strategy: StrategySummarized}); err == nil {
		t.Fatalf("summarized without summarizer accepted")
	}
	if _, err := NewManager(Options{Strategy: "vector"}); err == nil {
		t.Fatalf("unknown strategy accepted")
	}
	if _, err := ParseStrategy("Summarized"); err != nil {
		t.Fatalf("ParseStrategy() error = %v", err)
	}
}

func TestSummaryPromptIncludesPriorAndTurn(t *testing.T) {
	var seen string
	s := NewModelSummarizer(invokerFunc(func(_ context.Context, p string) (string, error) {
		seen = p
		return "ok", nil
	}))
	if _, err := s.Summarize(context.Background(), "", Turn{UserInput: "I feel anxious", AIResponse: "Tell me more", PersonaName: "CBT Guide"}); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	for _, part := range []string{NoPriorConversation, "User: I feel anxious", "CBT Guide: Tell me more", "New summary:"} {
		if !strings.Contains(seen, part) {
			t.Fatalf("summary prompt missing %q: %q", part, seen)
		}
	}
}

type invokerFunc func(ctx context.Context, prompt string) (string, error)

func (f invokerFunc) Invoke(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }
