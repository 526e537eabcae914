package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/chat"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/config"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		BindAddr:         ":0",
		MetricsNamespace: fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		ModelProvider:    "mock",
		ModelTimeout:     time.Second,
		MemoryStrategy:   "buffered",
		RedactPII:        true,
	}
}

func TestBuildInMemory(t *testing.T) {
	res, err := Build(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Store.Mode() != "in-memory" || res.Model.Name() != "mock" {
		t.Fatalf("store = %s, model = %s", res.Store.Mode(), res.Model.Name())
	}
	if !res.Auth.EphemeralSecret() {
		t.Fatalf("expected an ephemeral auth secret without AUTH_SECRET")
	}
	if res.API == nil || res.API.Router() == nil {
		t.Fatalf("API not built")
	}
}

func TestBuildSummarizedSQLiteSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.MemoryStrategy = "summarized"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "chat.db")

	first, err := Build(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	sess, err := first.Orchestrator.CreateSession(ctx, "alice", session.CreateRequest{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := first.Orchestrator.SubmitTurn(ctx, chat.TurnRequest{UserID: "alice", SessionID: sess.ID, PersonaName: "coach", Message: "exams"}); err != nil {
		t.Fatalf("SubmitTurn() error = %v", err)
	}
	summary, ok, err := first.Store.GetSummary(ctx, "alice", sess.ID)
	if err != nil || !ok || summary != "The user talked about: exams" {
		t.Fatalf("GetSummary() = %q, %v, %v", summary, ok, err)
	}
	if err := first.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	cfg.MetricsNamespace = fmt.Sprintf("test_app_restart_%d", time.Now().UnixNano())
	second, err := Build(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	defer second.Cleanup()

	if second.Store.Mode() != "sqlite" {
		t.Fatalf("Mode() = %s, want sqlite", second.Store.Mode())
	}
	turns, err := second.Orchestrator.ListTurns(ctx, "alice", sess.ID)
	if err != nil || len(turns) != 1 || turns[0].UserMessage != "exams" {
		t.Fatalf("ListTurns() = %+v, %v", turns, err)
	}
	if _, err := second.Orchestrator.SubmitTurn(ctx, chat.TurnRequest{UserID: "alice", SessionID: sess.ID, PersonaName: "coach", Message: "sleep"}); err != nil {
		t.Fatalf("SubmitTurn() after restart error = %v", err)
	}
	summary, _, _ = second.Store.GetSummary(ctx, "alice", sess.ID)
	if summary != "The user talked about: sleep" {
		t.Fatalf("summary after restart = %q", summary)
	}
}

func TestBuildRejectsUnknownMemoryStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryStrategy = "forever"
	if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("Build() error = nil, want strategy error")
	}
}
