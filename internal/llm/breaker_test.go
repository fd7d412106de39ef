package llm

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStreamer is a streaming backend with canned fragments.
type stubStreamer struct {
	stubModel
	err       error
	fragments []string
}

func (s *stubStreamer) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

func tripFast() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	inner := &stubModel{err: errors.New("connection refused")}
	m := WithBreaker(inner, tripFast())

	for i := 0; i < 2; i++ {
		_, err := m.Complete(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := m.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")
	assert.Equal(t, "open", m.(*Breaker).State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	inner := &stubModel{err: context.Canceled}
	m := WithBreaker(inner, tripFast())

	for i := 0; i < 5; i++ {
		_, err := m.Complete(context.Background(), "x")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 5, inner.calls)
}

func TestBreaker_PassesThrough(t *testing.T) {
	m := WithBreaker(&stubModel{text: "ok"}, DefaultBreakerConfig())
	text, err := m.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "stub", m.Name())

	_, isStreamer := m.(Streamer)
	assert.False(t, isStreamer, "blocking backends stay blocking")
}

func TestBreaker_Stream(t *testing.T) {
	inner := &stubStreamer{fragments: []string{"a", "b"}}
	m := WithBreaker(inner, tripFast())
	s, ok := m.(Streamer)
	require.True(t, ok)

	fragments, err := collect(t, s, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fragments)
}

func TestBreaker_StreamFailuresTrip(t *testing.T) {
	inner := &stubStreamer{fragments: []string{"a"}, err: errors.New("reset by peer")}
	s := WithBreaker(inner, tripFast()).(Streamer)

	for i := 0; i < 2; i++ {
		fragments, err := collect(t, s, "x")
		require.Error(t, err)
		assert.Equal(t, []string{"a"}, fragments)
	}

	fragments, err := collect(t, s, "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, fragments)
}
