package llm

import (
	"fmt"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures a backend.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Breaker  *BreakerConfig // nil disables the circuit breaker
}

// New creates the configured backend.
func New(cfg Config) (Model, error) {
	var m Model
	switch cfg.Provider {
	case "", ProviderOllama:
		m = NewOllamaClient(cfg.BaseURL, cfg.Model)
	case ProviderOpenAI:
		if cfg.Model == "" {
			return nil, fmt.Errorf("openai provider requires a model name")
		}
		m = NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	if cfg.Breaker != nil {
		m = WithBreaker(m, *cfg.Breaker)
	}
	return m, nil
}

// NewStreamer picks the streaming strategy for model. Native mode falls back
// to word chunking when the backend cannot stream. Returns the mode in effect.
func NewStreamer(model Model, mode StreamMode, delay time.Duration) (Streamer, StreamMode) {
	if mode != StreamChunked {
		if s, ok := model.(Streamer); ok {
			return s, StreamNative
		}
	}
	return NewWordChunker(model, delay), StreamChunked
}
