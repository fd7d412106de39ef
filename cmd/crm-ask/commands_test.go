package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "123e4567-e89b-12d3-a456-426614174000"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out strings.Builder
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/query", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"response":"Jane works at Google.","data_summary":{"contacts_count":2,"notes_count":1}}`)
	})
	mux.HandleFunc("/ai/query/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: status\ndata: {\"status\":\"thinking\",\"message\":\"AI is processing your question...\"}\n\n"+
			"event: token\ndata: {\"token\":\"Jane \"}\n\n"+
			"event: token\ndata: {\"token\":\"Smith\"}\n\n"+
			"event: complete\ndata: {\"full_response\":\"Jane Smith\"}\n\n")
	})
	mux.HandleFunc("/ai/clear-memory/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"No conversation memory found for user x"}`)
	})
	mux.HandleFunc("/ai/user-data/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user_id":"x","contacts":[{"id":1,"name":"Jane","company":"Google"}],`+
			`"notes":[{"id":2,"title":"Lunch","contact_ids":[1],"related_contacts":["Jane"]}],`+
			`"summary":{"total_contacts":1,"total_notes":1}}`)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy","database":"connected","version":"dev"}`)
	})
	mux.HandleFunc("/ai/test-ollama", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail":"Ollama connection failed: refused"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAskCommand(t *testing.T) {
	srv := fakeService(t)
	out, err := execute(t, "--server", srv.URL, "--user", testUser, "ask", "Who", "is", "Jane?")
	require.NoError(t, err)
	assert.Contains(t, out, "Jane works at Google.")
	assert.Contains(t, out, "(2 contacts, 1 notes)")
}

func TestAskCommand_RequiresUser(t *testing.T) {
	t.Setenv("CRM_ASSISTANT_USER", "")
	_, err := execute(t, "--server", "http://127.0.0.1:1", "ask", "hi")
	assert.ErrorContains(t, err, "user id is required")
}

func TestStreamCommand(t *testing.T) {
	srv := fakeService(t)
	out, err := execute(t, "--server", srv.URL, "--user", testUser, "stream", "Who?")
	require.NoError(t, err)
	assert.Contains(t, out, "AI is processing your question...")
	assert.Contains(t, out, "Jane Smith\n")
}

func TestClearAndDataCommands(t *testing.T) {
	srv := fakeService(t)

	out, err := execute(t, "--server", srv.URL, "--user", "x", "clear")
	require.NoError(t, err)
	assert.Equal(t, "No conversation memory found for user x\n", out)

	out, err = execute(t, "--server", srv.URL, "--user", "x", "data")
	require.NoError(t, err)
	assert.Equal(t, "Contacts (1):\n  Jane (Google)\nNotes (1):\n  Lunch [Jane]\n", out)
}

func TestHealthCommand(t *testing.T) {
	srv := fakeService(t)

	out, err := execute(t, "--server", srv.URL, "health")
	require.NoError(t, err)
	assert.Equal(t, "service: healthy (database connected, version dev)\n", out)

	_, err = execute(t, "--server", srv.URL, "health", "--model")
	assert.ErrorContains(t, err, "Ollama connection failed: refused")
}
