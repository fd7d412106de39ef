// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/crm-assistant/internal/assistant"
	"github.com/thebtf/crm-assistant/internal/observability"
	"github.com/thebtf/crm-assistant/pkg/models"
)

const (
	// DefaultMaxBodyBytes caps request bodies.
	DefaultMaxBodyBytes = 64 << 10

	// HealthTimeout bounds the database ping behind /health.
	HealthTimeout = 2 * time.Second
)

// Assistant is the question-answering backend.
type Assistant interface {
	Ask(ctx context.Context, userID, question string) assistant.AskResult
	Stream(ctx context.Context, userID, question string) iter.Seq[assistant.Event]
	TestConnection(ctx context.Context) (bool, string)
	StreamProbe(ctx context.Context) iter.Seq2[string, error]
	ClearMemory(userID string) bool
	FetchUserData(ctx context.Context, userID string) (*models.UserData, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP service.
type Options struct {
	Metrics        *observability.Collector
	Version        string
	AllowedOrigins []string
	RateLimit      float64
	MaxBodyBytes   int64
	Port           int
	RateBurst      int
}

// Service is the HTTP front of the assistant.
type Service struct {
	assistant Assistant
	db        Pinger
	validate  *validator.Validate
	router    *chi.Mux
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	opts      Options
	wg        sync.WaitGroup
}

// New creates the service and its routes. Nothing listens until Start.
func New(a Assistant, db Pinger, opts Options) *Service {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		assistant: a,
		db:        db,
		validate:  newValidator(),
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(AccessLog)
	s.router.Use(middleware.Recoverer)
	if s.opts.Metrics != nil {
		s.router.Use(Metrics(s.opts.Metrics))
	}
	s.router.Use(SecurityHeaders(s.opts.AllowedOrigins))
}

func (s *Service) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	s.router.Route("/ai", func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			r.Use(RateLimit(NewClientLimiter(s.opts.RateLimit, max(s.opts.RateBurst, 1))))
		}
		r.Use(MaxBodySize(s.opts.MaxBodyBytes))
		r.Use(RequireJSONContentType)

		r.Post("/query", s.handleQuery)
		r.Post("/query/stream", s.handleQueryStream)
		r.Get("/test-ollama", s.handleTestModel)
		r.Post("/clear-memory/{user_id}", s.handleClearMemory)
		r.Get("/user-data/{user_id}", s.handleUserData)
		r.Get("/test-streaming", s.handleTestStreaming)
	})
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves in the background.
func (s *Service) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.opts.Port, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	// Open streams end when shutdown begins.
	s.server.RegisterOnShutdown(s.cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("version", s.opts.Version).
		Msg("HTTP server started")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Service) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Service) Shutdown(ctx context.Context) error {
	defer s.cancel()
	if s.server == nil {
		return nil
	}

	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	s.wg.Wait()

	log.Info().Msg("HTTP server shutdown complete")
	return err
}
