// Package client is a typed HTTP client for the CRM assistant service.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// DefaultServerURL is used when CRM_ASSISTANT_URL is unset.
	DefaultServerURL = "http://127.0.0.1:8001"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 2 * time.Minute
)

// ServerURL returns the service URL from the environment or the default.
func ServerURL() string {
	if u := os.Getenv("CRM_ASSISTANT_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return DefaultServerURL
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Detail     string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("request failed: %d: %s", e.StatusCode, e.Detail)
}

// Client talks to one service instance.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client. Without a context deadline or client timeout,
// non-streaming calls are bounded by DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Health is the /health answer.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

// Summary counts the records behind an answer.
type Summary struct {
	ContactsCount int `json:"contacts_count"`
	NotesCount    int `json:"notes_count"`
}

// Answer is the result of Ask.
type Answer struct {
	DataSummary *Summary `json:"data_summary"`
	Response    string   `json:"response"`
	Success     bool     `json:"success"`
}

// Contact is a contact as served by the debug endpoint.
type Contact struct {
	Company     *string `json:"company"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"contact_email"`
	Name        string  `json:"name"`
	ID          int64   `json:"id"`
}

// Note is a note as served by the debug endpoint.
type Note struct {
	Description     *string  `json:"description"`
	Title           string   `json:"title"`
	ContactIDs      []int64  `json:"contact_ids"`
	RelatedContacts []string `json:"related_contacts"`
	ID              int64    `json:"id"`
}

// UserData is the /ai/user-data answer.
type UserData struct {
	UserID   string    `json:"user_id"`
	Contacts []Contact `json:"contacts"`
	Notes    []Note    `json:"notes"`
	Summary  struct {
		TotalContacts int `json:"total_contacts"`
		TotalNotes    int `json:"total_notes"`
	} `json:"summary"`
}

// Event is one streamed event. Only the fields of its Type are set.
type Event struct {
	DataSummary   *Summary `json:"data_summary"`
	Type          string   `json:"-"`
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	Token         string   `json:"token"`
	FullResponse  string   `json:"full_response"`
	Error         string   `json:"error"`
	ContactsCount int      `json:"contacts_count"`
	NotesCount    int      `json:"notes_count"`
}

type queryBody struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// Health checks the service and its database.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ask asks one question and waits for the full answer.
func (c *Client) Ask(ctx context.Context, userID, query string) (*Answer, error) {
	var a Answer
	if err := c.do(ctx, http.MethodPost, "/ai/query", queryBody{UserID: userID, Query: query}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ClearMemory drops the user's conversation and returns the service message.
func (c *Client) ClearMemory(ctx context.Context, userID string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/ai/clear-memory/"+url.PathEscape(userID), nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// UserData returns the raw contacts and notes the service sees for userID.
func (c *Client) UserData(ctx context.Context, userID string) (*UserData, error) {
	var d UserData
	if err := c.do(ctx, http.MethodGet, "/ai/user-data/"+url.PathEscape(userID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// TestModel asks the service to probe its model backend.
func (c *Client) TestModel(ctx context.Context) (string, error) {
	var out struct {
		TestResponse string `json:"test_response"`
	}
	if err := c.do(ctx, http.MethodGet, "/ai/test-ollama", nil, &out); err != nil {
		return "", err
	}
	return out.TestResponse, nil
}

// Stream asks a question and yields events as they arrive. Breaking out of
// the loop or cancelling ctx closes the connection.
func (c *Client) Stream(ctx context.Context, userID, query string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		resp, err := c.send(ctx, http.MethodPost, "/ai/query/stream", queryBody{UserID: userID, Query: query})
		if err != nil {
			yield(Event{}, err)
			return
		}
		defer resp.Body.Close()

		for ev, err := range readEvents(resp.Body) {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// readEvents parses a text/event-stream body.
func readEvents(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

		var name string
		var data bytes.Buffer
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if name == "" && data.Len() == 0 {
					continue
				}
				ev := Event{}
				if data.Len() > 0 {
					if err := json.Unmarshal(data.Bytes(), &ev); err != nil {
						yield(Event{}, fmt.Errorf("decode %s event: %w", name, err))
						return
					}
				}
				ev.Type = name
				if ev.Type == "" {
					ev.Type = "message"
				}
				if !yield(ev, nil) {
					return
				}
				name = ""
				data.Reset()
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
			yield(Event{}, err)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok && c.http.Timeout == 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// send performs the request and turns non-2xx answers into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&detail) == nil {
			apiErr.Detail = detail.Detail
		}
		return nil, apiErr
	}
	return resp, nil
}
