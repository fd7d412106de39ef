// Package sse writes Server-Sent Events to a single client.
package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer sends named events to one connected client, flushing after each.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	sent    int
}

// NewWriter prepares w for an event stream. The stream ends when r's context does.
func NewWriter(w http.ResponseWriter, r *http.Request) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher, ctx: r.Context()}, nil
}

// Send writes one event with a JSON data line. It fails once the client is gone.
func (sw *Writer) Send(event string, data any) error {
	if err := sw.ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal SSE data")
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		log.Debug().Err(err).Str("event", event).Msg("Failed to write to SSE client")
		return err
	}
	sw.flusher.Flush()
	sw.sent++
	return nil
}

// Sent returns the number of events written.
func (sw *Writer) Sent() int {
	return sw.sent
}
