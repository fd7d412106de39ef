package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Send(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)

	sw, err := NewWriter(rr, req)
	require.NoError(t, err)

	require.NoError(t, sw.Send("status", map[string]any{"status": "processing"}))
	require.NoError(t, sw.Send("token", map[string]string{"token": "Hi"}))

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	assert.True(t, rr.Flushed)
	assert.Equal(t,
		"event: status\ndata: {\"status\":\"processing\"}\n\n"+
			"event: token\ndata: {\"token\":\"Hi\"}\n\n",
		rr.Body.String())
	assert.Equal(t, 2, sw.Sent())
}

func TestWriter_ClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)

	sw, err := NewWriter(rr, req)
	require.NoError(t, err)
	cancel()

	assert.ErrorIs(t, sw.Send("token", map[string]string{"token": "x"}), context.Canceled)
	assert.Equal(t, 0, sw.Sent())
}

func TestWriter_MarshalError(t *testing.T) {
	rr := httptest.NewRecorder()
	sw, err := NewWriter(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Error(t, sw.Send("bad", map[string]any{"ch": make(chan int)}))
}

type plainWriter struct{ http.ResponseWriter }

func TestNewWriter_RequiresFlusher(t *testing.T) {
	_, err := NewWriter(plainWriter{httptest.NewRecorder()}, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}
