package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/config"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/history"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/logx"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/retrieval"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/telemetry"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/tools"
	"github.com/rs/zerolog/log"
)

// app is the wired service graph shared by serve and ask.
type app struct {
	cfg     *config.Config
	agent   *agrisage.AgriSage
	metrics *telemetry.Metrics
	closers []io.Closer
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logx.Init(logx.Config{Debug: cfg.Log.Debug, PrettyFormat: cfg.Log.Pretty})
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: telemetry.NewMetrics()}

	bus := eventbus.NewChannelEventBus()
	a.closers = append(a.closers, bus)
	if _, err := a.metrics.Attach(bus); err != nil {
		a.close()
		return nil, err
	}
	if _, err := telemetry.AttachLogger(bus); err != nil {
		a.close()
		return nil, err
	}

	model, embedder := newModel(ctx, cfg.LLM)

	var store agrisage.HistoryStore = history.NewMemoryStore()
	if cfg.History.Backend == "redis" {
		rs, err := history.NewRedisStore(ctx, history.RedisOptions{
			Addr:     cfg.History.RedisAddr,
			Password: cfg.History.RedisPassword,
			DB:       cfg.History.RedisDB,
			Prefix:   cfg.History.Prefix,
			Timeout:  cfg.History.Timeout,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, rs)
		store = rs
	}

	toolkit, err := tools.Setup(ctx, cfg, tools.Deps{Embedder: embedder, EventBus: bus})
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, toolkit)

	opts := []agrisage.Option{
		agrisage.WithCapabilities(toolkit.Capabilities...),
		agrisage.WithHistory(store),
		agrisage.WithEventBus(bus),
		agrisage.WithConfig(agrisage.Config{
			MaxRounds:                 cfg.Orchestrator.MaxRounds,
			MaxConcurrentCapabilities: cfg.Orchestrator.MaxConcurrentCapabilities,
			CapabilityTimeout:         cfg.Orchestrator.CapabilityTimeout,
		}),
	}
	if model != nil {
		opts = append(opts, agrisage.WithChatModel(model))
	}
	agent, err := agrisage.New(opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.agent = agent
	return a, nil
}

// newModel builds the configured chat model. A provider that fails to
// initialize leaves the model nil so the service starts and reports itself
// unavailable.
func newModel(ctx context.Context, cfg config.LLMConfig) (llm.ChatModel, retrieval.Embedder) {
	switch cfg.Provider {
	case "googleai":
		g, err := llm.InitGoogleAI(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			log.Error().Err(err).Msg("chat model unavailable")
			return nil, nil
		}
		model := llm.NewGenkitModel(g, cfg.Model, llm.WithTemperature(cfg.Temperature))
		embedder, err := llm.NewGenkitEmbedder(g, cfg.EmbeddingModel)
		if err != nil {
			log.Warn().Err(err).Msg("embedder unavailable, retrieval disabled")
			return model, nil
		}
		return model, embedder
	case "openai":
		model, err := llm.NewOpenAIModel(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			log.Error().Err(err).Msg("chat model unavailable")
			return nil, nil
		}
		log.Warn().Msg("openai provider has no embedder, retrieval disabled")
		return model, nil
	}
	log.Warn().Msg("no chat model configured")
	return nil, nil
}

// newEmbedder returns the Genkit embedder used for index builds.
func newEmbedder(ctx context.Context, cfg config.LLMConfig) (retrieval.Embedder, error) {
	if cfg.Provider != "googleai" {
		return nil, fmt.Errorf("index builds need the googleai provider for embeddings, got %q", cfg.Provider)
	}
	g, err := llm.InitGoogleAI(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.NewGenkitEmbedder(g, cfg.EmbeddingModel)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
