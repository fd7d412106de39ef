// Package llm provides text-generation backends for crm-assistant.
package llm

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrEmptyResponse is returned when a backend answers without any text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("model backend unavailable")
)

// Model completes a prompt in one blocking call.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Streamer produces a completion incrementally.
// The sequence yields text fragments in order; an error ends it.
// Breaking out of the loop releases the underlying request immediately.
type Streamer interface {
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// StreamMode selects how streamed answers are produced.
type StreamMode string

const (
	// StreamNative forwards fragments as the backend generates them.
	StreamNative StreamMode = "native"
	// StreamChunked completes in blocking mode and replays the text as paced word chunks.
	StreamChunked StreamMode = "chunked"
)

// Valid reports whether m is a known mode.
func (m StreamMode) Valid() bool {
	return m == StreamNative || m == StreamChunked
}
