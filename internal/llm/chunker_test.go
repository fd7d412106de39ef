package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel is a blocking backend with a canned answer.
type stubModel struct {
	err   error
	text  string
	calls int
}

func (m *stubModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.text, m.err
}

func (m *stubModel) Name() string { return "stub" }

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Hello", []string{"Hello"}},
		{"Hello world", []string{"Hello ", "world"}},
		{"Hello  world\nagain ", []string{"Hello  ", "world\n", "again "}},
		{"  leading space", []string{"  leading ", "space"}},
		{"   ", []string{"   "}},
	}
	for _, tt := range tests {
		got := SplitWords(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Equal(t, tt.in, strings.Join(got, ""), "chunks must reassemble the input")
	}
}

func TestWordChunker_Stream(t *testing.T) {
	model := &stubModel{text: "Jane works at Acme."}
	fragments, err := collect(t, NewWordChunker(model, 0), "q")
	require.NoError(t, err)

	assert.Equal(t, []string{"Jane ", "works ", "at ", "Acme."}, fragments)
	assert.Equal(t, 1, model.calls)
}

func TestWordChunker_Error(t *testing.T) {
	model := &stubModel{err: errors.New("connection refused")}
	fragments, err := collect(t, NewWordChunker(model, 0), "q")
	require.Error(t, err)
	assert.Empty(t, fragments)
}

func TestWordChunker_StopsOnBreak(t *testing.T) {
	model := &stubModel{text: "one two three four"}
	var got []string
	for fragment, err := range NewWordChunker(model, time.Millisecond).Stream(context.Background(), "q") {
		require.NoError(t, err)
		got = append(got, fragment)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"one ", "two "}, got)
}

func TestWordChunker_CancelDuringPacing(t *testing.T) {
	model := &stubModel{text: "one two three"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	var streamErr error
	for fragment, err := range NewWordChunker(model, time.Hour).Stream(ctx, "q") {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, fragment)
		cancel()
	}

	assert.Equal(t, []string{"one "}, got)
	assert.ErrorIs(t, streamErr, context.Canceled)
}

func TestNewStreamer(t *testing.T) {
	blocking := &stubModel{text: "x"}
	streaming := NewOllamaClient("http://localhost:1", "m")

	s, mode := NewStreamer(streaming, StreamNative, 0)
	assert.Equal(t, StreamNative, mode)
	assert.Same(t, streaming, s)

	_, mode = NewStreamer(streaming, StreamChunked, 0)
	assert.Equal(t, StreamChunked, mode)

	s, mode = NewStreamer(blocking, StreamNative, 0)
	assert.Equal(t, StreamChunked, mode, "blocking backends fall back to chunking")
	assert.IsType(t, &WordChunker{}, s)
}

func TestStreamModeValid(t *testing.T) {
	assert.True(t, StreamNative.Valid())
	assert.True(t, StreamChunked.Valid())
	assert.False(t, StreamMode("simulated").Valid())
}

func TestNew(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "ollama/"+DefaultOllamaModel, m.Name())

	m, err = New(Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", m.Name())

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = New(Config{Provider: "bogus"})
	assert.Error(t, err)

	cfg := DefaultBreakerConfig()
	m, err = New(Config{Breaker: &cfg})
	require.NoError(t, err)
	_, isStreamer := m.(Streamer)
	assert.True(t, isStreamer, "breaker keeps native streaming available")
}
