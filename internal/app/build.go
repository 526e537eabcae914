// Package app wires the chat service from configuration.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/auth"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/brain"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/chat"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/config"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/httpapi"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/memory"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/observability"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/persona"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *chat.Orchestrator
	Store        store.Store
	Model        brain.Model
	Auth         *auth.Service
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release the store and model clients.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "store init failed")
	}

	model, err := brain.NewModel(ctx, brain.Config{
		Provider:      cfg.ModelProvider,
		Model:         cfg.ModelName,
		MaxRetries:    cfg.ModelMaxRetries,
		HTTPURL:       cfg.ModelHTTPURL,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OllamaHost:    cfg.OllamaHost,
		HTTPTimeout:   cfg.ModelTimeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "model init failed")
	}

	strategy, err := memory.ParseStrategy(cfg.MemoryStrategy)
	if err != nil {
		_ = brain.Close(model)
		_ = st.Close()
		return nil, errors.WithStack(err)
	}
	memOpts := memory.Options{Strategy: strategy}
	if strategy == memory.StrategySummarized {
		memOpts.Summarizer = memory.NewModelSummarizer(model)
		memOpts.Summaries = st
	}
	mem, err := memory.NewManager(memOpts)
	if err != nil {
		_ = brain.Close(model)
		_ = st.Close()
		return nil, errors.WithStack(err)
	}

	personas := persona.Builtin()
	orchestrator, err := chat.New(chat.Options{
		Personas:     personas,
		Memory:       mem,
		Model:        model,
		Transcripts:  st,
		Sessions:     session.NewCatalog(st, personas),
		Metrics:      metrics,
		Logger:       logger,
		ModelTimeout: cfg.ModelTimeout,
		RedactPII:    cfg.RedactPII,
	})
	if err != nil {
		_ = brain.Close(model)
		_ = st.Close()
		return nil, errors.WithStack(err)
	}

	authSvc, err := auth.NewService(st, auth.Options{Secret: cfg.AuthSecret, TokenTTL: cfg.AuthTokenTTL})
	if err != nil {
		_ = brain.Close(model)
		_ = st.Close()
		return nil, errors.Wrap(err, "auth init failed")
	}
	if authSvc.EphemeralSecret() {
		logger.Warn().Msg("AUTH_SECRET not set; issued tokens will not survive a restart")
	}

	logger.Info().
		Str("store_mode", st.Mode()).
		Str("model_provider", model.Name()).
		Str("memory_strategy", string(mem.Strategy())).
		Bool("auth_required", cfg.AuthRequired).
		Msg("chat service built")

	api := httpapi.New(cfg, orchestrator, authSvc, metrics, logger)

	cleanup := func() error {
		var errs []string
		if err := brain.Close(model); err != nil {
			errs = append(errs, err.Error())
		}
		if err := st.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Store:        st,
		Model:        model,
		Auth:         authSvc,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}
