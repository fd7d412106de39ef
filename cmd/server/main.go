// Package main provides the entry point for the CRM assistant service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/crm-assistant/internal/assistant"
	"github.com/thebtf/crm-assistant/internal/config"
	"github.com/thebtf/crm-assistant/internal/conversation"
	"github.com/thebtf/crm-assistant/internal/db/gorm"
	"github.com/thebtf/crm-assistant/internal/llm"
	"github.com/thebtf/crm-assistant/internal/observability"
	"github.com/thebtf/crm-assistant/internal/prompt"
	"github.com/thebtf/crm-assistant/internal/server"
)

var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("version", Version).
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Msg("Starting CRM assistant")

	store, err := gorm.NewStore(gorm.Config{
		DSN:         cfg.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		LogLevel:    logger.Silent,
		AutoMigrate: cfg.Database.AutoMigrate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	if h := store.HealthCheck(context.Background()); !h.Healthy() {
		log.Warn().Str("error", h.Error).Msg("Database health check failed")
	} else {
		log.Info().Str("status", h.Status).Str("warning", h.Warning).Dur("latency", h.Latency).Msg("Database connection successful")
	}

	llmCfg := llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}
	if cfg.LLM.Breaker {
		breaker := llm.DefaultBreakerConfig()
		llmCfg.Breaker = &breaker
	}
	model, err := llm.New(llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model backend")
	}

	var counter prompt.TokenCounter
	if cfg.PromptTokenBudget > 0 {
		tc, err := prompt.NewTiktokenCounter()
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, prompt budget disabled")
		} else {
			counter = tc
		}
	}

	memory := conversation.NewStore(conversation.Options{
		MaxExchanges: cfg.MemoryMaxExchanges,
		IdleTTL:      cfg.MemoryIdleTTL,
	})

	metrics := observability.NewCollector()
	metrics.RegisterGaugeFunc("memory_users", "Users with conversation memory", func() float64 {
		return float64(memory.ActiveUsers())
	})
	metrics.RegisterGaugeFunc("db_open_connections", "Open database connections", func() float64 {
		return float64(store.Stats().OpenConnections)
	})

	svc := assistant.New(gorm.NewCRMStore(store), memory, prompt.NewComposer(counter, cfg.PromptTokenBudget), assistant.Options{
		Model:        model,
		Metrics:      metrics,
		StreamMode:   llm.StreamMode(cfg.LLM.StreamMode),
		TokenDelay:   cfg.LLM.TokenDelay,
		ModelTimeout: cfg.LLM.ModelTimeout,
	})
	log.Info().Str("stream_mode", string(svc.StreamMode())).Str("backend", svc.ModelName()).Msg("Assistant ready")

	httpSvc := server.New(svc, store, server.Options{
		Version:        Version,
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Metrics:        metrics,
	})
	if err := httpSvc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSvc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	memory.Shutdown()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Database close error")
	}

	log.Info().Msg("CRM assistant shutdown complete")
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
