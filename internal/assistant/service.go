// Package assistant answers natural-language questions about a user's CRM data.
package assistant

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/crm-assistant/internal/llm"
	"github.com/thebtf/crm-assistant/internal/observability"
	"github.com/thebtf/crm-assistant/internal/privacy"
	"github.com/thebtf/crm-assistant/internal/prompt"
	"github.com/thebtf/crm-assistant/pkg/models"
)

const (
	// ProbePrompt is sent by TestConnection.
	ProbePrompt = "Say 'Hello' if you can hear me."
	// StreamProbePrompt is sent by StreamProbe.
	StreamProbePrompt = "Say hello world"
	// DefaultModelTimeout bounds one model invocation.
	DefaultModelTimeout = 2 * time.Minute
)

// DataSource reads a user's contacts and notes.
type DataSource interface {
	FetchUserData(ctx context.Context, userID string) (*models.UserData, error)
}

// Memory stores recent exchanges per user.
type Memory interface {
	Log(userID string) []models.Exchange
	Append(userID, question, answer string, at time.Time)
	Clear(userID string) bool
}

// Options configures a Service.
type Options struct {
	Model        llm.Model
	Metrics      *observability.Collector
	Now          func() time.Time
	StreamMode   llm.StreamMode
	TokenDelay   time.Duration
	ModelTimeout time.Duration
}

// Service coordinates data access, prompt rendering, the model and memory.
// It is safe for concurrent use.
type Service struct {
	data       DataSource
	memory     Memory
	composer   *prompt.Composer
	model      llm.Model
	streamer   llm.Streamer
	metrics    *observability.Collector
	now        func() time.Time
	probe      singleflight.Group
	streamMode llm.StreamMode
	timeout    time.Duration
}

// New creates a Service. The streaming strategy is fixed here: native
// streaming when requested and supported, word chunking otherwise.
func New(data DataSource, memory Memory, composer *prompt.Composer, opts Options) *Service {
	if composer == nil {
		composer = &prompt.Composer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.StreamMode == "" {
		opts.StreamMode = llm.StreamNative
	}

	streamer, mode := llm.NewStreamer(opts.Model, opts.StreamMode, opts.TokenDelay)
	if mode != opts.StreamMode {
		log.Warn().Str("requested", string(opts.StreamMode)).Str("model", opts.Model.Name()).Msg("Model cannot stream natively, using word chunking")
	}

	return &Service{
		data:       data,
		memory:     memory,
		composer:   composer,
		model:      opts.Model,
		streamer:   streamer,
		metrics:    opts.Metrics,
		now:        opts.Now,
		streamMode: mode,
		timeout:    opts.ModelTimeout,
	}
}

// StreamMode returns the streaming strategy in effect.
func (s *Service) StreamMode() llm.StreamMode {
	return s.streamMode
}

// ModelName returns the backend name.
func (s *Service) ModelName() string {
	return s.model.Name()
}

// Ask answers a question in one blocking call. It never panics; every
// failure is reported in the result. Memory changes only on success.
func (s *Service) Ask(ctx context.Context, userID, question string) (res AskResult) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			logger(ctx).Error().Interface("panic", r).Str("user_id", userID).Msg("Recovered panic while answering")
			res = failure(KindInternal, "internal error processing query")
		}
		s.metrics.RecordAsk("blocking", res.outcome())
		s.logInteraction(ctx, "blocking", userID, question, res.Response, res.Success, start)
	}()

	if err := ValidateUserID(userID); err != nil {
		return failure(KindValidation, MsgInvalidUserID)
	}

	data, err := s.data.FetchUserData(ctx, userID)
	if err != nil {
		return failure(KindDataAccess, err.Error())
	}

	text, err := s.complete(ctx, s.buildPrompt(userID, question, data))
	if err != nil {
		return failure(KindModel, err.Error())
	}

	answer := strings.TrimSpace(text)
	s.memory.Append(userID, question, answer, s.now())

	summary := data.Summary()
	return AskResult{Success: true, Response: answer, DataSummary: &summary}
}

// Stream answers a question as a lazy event sequence:
// status(processing), status(data_loaded), status(thinking), token..., complete.
// A failure ends the sequence with an error event. When the consumer stops
// pulling, the model request is released and nothing more is produced.
func (s *Service) Stream(ctx context.Context, userID, question string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		start := s.now()
		var (
			stopped  bool
			inYield  bool
			answer   string
			success  bool
			outcome  = string(KindInternal)
			tokens   int
			response strings.Builder
		)

		emit := func(e Event) bool {
			if stopped {
				return false
			}
			inYield = true
			ok := yield(e)
			inYield = false
			if !ok {
				stopped = true
			}
			return ok
		}

		defer func() {
			if r := recover(); r != nil {
				if inYield {
					// Consumer panics are not ours to swallow.
					panic(r)
				}
				logger(ctx).Error().Interface("panic", r).Str("user_id", userID).Msg("Recovered panic while streaming")
				emit(errorEvent(KindInternal, "Unexpected error: internal error processing query"))
				outcome = string(KindInternal)
			}
			s.metrics.RecordAsk("stream", outcome)
			s.metrics.AddStreamTokens(tokens)
			s.logInteraction(ctx, "stream", userID, question, answer, success, start)
		}()

		if err := ValidateUserID(userID); err != nil {
			outcome = string(KindValidation)
			emit(errorEvent(KindValidation, MsgInvalidUserID))
			return
		}

		if !emit(statusEvent(StatusProcessing, "Getting your data...")) {
			outcome = "cancelled"
			return
		}

		data, err := s.data.FetchUserData(ctx, userID)
		if err != nil {
			outcome = string(KindDataAccess)
			if ctx.Err() == nil {
				emit(errorEvent(KindDataAccess, "Failed to load user data: "+err.Error()))
			}
			return
		}
		summary := data.Summary()

		loaded := statusEvent(StatusDataLoaded, "")
		loaded.Summary = &summary
		if !emit(loaded) || !emit(statusEvent(StatusThinking, "AI is processing your question...")) {
			outcome = "cancelled"
			return
		}

		p := s.buildPrompt(userID, question, data)

		modelCtx, modelCancel := context.WithTimeout(ctx, s.timeout)
		defer modelCancel()
		modelStart := time.Now()
		for fragment, err := range s.streamer.Stream(modelCtx, p) {
			if err != nil {
				s.metrics.ObserveModel("stream", time.Since(modelStart))
				outcome = string(KindModel)
				if ctx.Err() == nil {
					emit(errorEvent(KindModel, "AI processing failed: "+err.Error()))
				}
				return
			}
			response.WriteString(fragment)
			tokens++
			if !emit(Event{Type: EventToken, Token: fragment}) {
				outcome = "cancelled"
				return
			}
		}
		s.metrics.ObserveModel("stream", time.Since(modelStart))

		answer = strings.TrimSpace(response.String())
		s.memory.Append(userID, question, answer, s.now())
		success = true
		outcome = "success"

		emit(Event{Type: EventComplete, FullResponse: answer, Summary: &summary})
	}
}

// TestConnection sends a fixed prompt to the model. Concurrent probes share one call.
func (s *Service) TestConnection(ctx context.Context) (bool, string) {
	v, err, _ := s.probe.Do("probe", func() (any, error) {
		// Detached so one caller leaving doesn't fail the shared probe.
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.model.Complete(probeCtx, ProbePrompt)
	})
	if err != nil {
		logger(ctx).Warn().Err(err).Str("model", s.model.Name()).Msg("Model connection test failed")
		return false, err.Error()
	}
	return true, strings.TrimSpace(v.(string))
}

// StreamProbe streams the answer to a fixed prompt using the configured strategy.
func (s *Service) StreamProbe(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		for fragment, err := range s.streamer.Stream(ctx, StreamProbePrompt) {
			if !yield(fragment, err) || err != nil {
				return
			}
		}
	}
}

// ClearMemory drops the user's conversation. Returns true if there was one.
func (s *Service) ClearMemory(userID string) bool {
	cleared := s.memory.Clear(userID)
	log.Info().Str("user_id", userID).Bool("cleared", cleared).Msg("Conversation memory clear requested")
	return cleared
}

// FetchUserData exposes the raw data view for debugging.
func (s *Service) FetchUserData(ctx context.Context, userID string) (*models.UserData, error) {
	data, err := s.data.FetchUserData(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user data: %w", err)
	}
	return data, nil
}

func (s *Service) buildPrompt(userID, question string, data *models.UserData) string {
	return s.composer.Build(prompt.Input{
		Question: question,
		Contacts: data.Contacts,
		Notes:    data.Notes,
		History:  s.memory.Log(userID),
	})
}

func (s *Service) complete(ctx context.Context, p string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.model.Complete(ctx, p)
	s.metrics.ObserveModel("blocking", time.Since(start))
	return text, err
}

func (s *Service) logInteraction(ctx context.Context, mode, userID, question, response string, success bool, start time.Time) {
	logger(ctx).Info().
		Str("mode", mode).
		Str("user_id", userID).
		Str("query", privacy.ForLog(question)).
		Strs("keywords", privacy.ExtractKeywords(privacy.RedactSecrets(question))).
		Bool("redacted", privacy.ContainsSecrets(question)).
		Int("response_length", len(response)).
		Bool("success", success).
		Dur("duration", s.now().Sub(start)).
		Msg("AI interaction")
}

// logger returns the request-scoped logger if one is attached to ctx.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
