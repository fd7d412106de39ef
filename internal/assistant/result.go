package assistant

import (
	"errors"
	"unicode/utf8"

	"github.com/thebtf/crm-assistant/pkg/models"
)

// Kind classifies a failure for callers that map failures to responses.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDataAccess Kind = "data_access"
	KindModel      Kind = "model"
	KindInternal   Kind = "internal"
)

// MinUserIDLength is the shortest user id accepted.
const MinUserIDLength = 10

// MsgInvalidUserID is the client-facing text for a malformed user id.
const MsgInvalidUserID = "Invalid user_id format"

// ErrInvalidUserID is returned for empty or too-short user ids.
var ErrInvalidUserID = errors.New("invalid user_id format")

// ValidateUserID performs the cheap shape check applied before any work.
// It does not require a UUID.
func ValidateUserID(userID string) error {
	if userID == "" || utf8.RuneCountInString(userID) < MinUserIDLength {
		return ErrInvalidUserID
	}
	return nil
}

// AskResult is the outcome of a blocking question.
type AskResult struct {
	DataSummary *models.DataSummary `json:"data_summary,omitempty"`
	Response    string              `json:"response,omitempty"`
	Error       string              `json:"error,omitempty"`
	Kind        Kind                `json:"-"`
	Success     bool                `json:"success"`
}

func failure(kind Kind, msg string) AskResult {
	return AskResult{Success: false, Error: msg, Kind: kind}
}

// outcome labels a result for metrics.
func (r AskResult) outcome() string {
	if r.Success {
		return "success"
	}
	return string(r.Kind)
}

// EventType names a stream event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventToken    EventType = "token"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Stream status values.
const (
	StatusProcessing = "processing"
	StatusDataLoaded = "data_loaded"
	StatusThinking   = "thinking"
)

// Event is one item of a streamed answer.
type Event struct {
	Summary      *models.DataSummary
	Type         EventType
	Status       string
	Message      string
	Token        string
	FullResponse string
	Error        string
	Kind         Kind
}

// Payload returns the event body as sent to stream clients.
func (e Event) Payload() map[string]any {
	switch e.Type {
	case EventStatus:
		p := map[string]any{"status": e.Status}
		if e.Message != "" {
			p["message"] = e.Message
		}
		if e.Summary != nil {
			p["contacts_count"] = e.Summary.ContactsCount
			p["notes_count"] = e.Summary.NotesCount
		}
		return p
	case EventToken:
		return map[string]any{"token": e.Token}
	case EventComplete:
		return map[string]any{"full_response": e.FullResponse, "data_summary": e.Summary}
	default:
		return map[string]any{"error": e.Error}
	}
}

func statusEvent(status, message string) Event {
	return Event{Type: EventStatus, Status: status, Message: message}
}

func errorEvent(kind Kind, msg string) Event {
	return Event{Type: EventError, Kind: kind, Error: msg}
}
