package ports

import (
	"context"
	"time"
)

// CalendarEvent is the backend-neutral event shape.
type CalendarEvent struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	AllDay      bool      `json:"all_day,omitempty"`
}

// CalendarBackend talks to a calendar service (CalDAV, Google, ...).
type CalendarBackend interface {
	// Name identifies the backend for fingerprinting and logs
	Name() string

	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, id string, event CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
}

// EmailDraft is an outgoing message.
type EmailDraft struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// EmailSummary is a mailbox listing entry.
type EmailSummary struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Snippet string    `json:"snippet,omitempty"`
}

// EmailBackend talks to a mailbox service.
type EmailBackend interface {
	Send(ctx context.Context, draft EmailDraft) error
	Reply(ctx context.Context, messageID, body string) error
	Search(ctx context.Context, query string, limit int) ([]EmailSummary, error)
	Read(ctx context.Context, messageID string) (string, error)
}

// EntityState is one home-automation entity snapshot.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// HomeBackend talks to a home-automation hub.
type HomeBackend interface {
	GetState(ctx context.Context, entityID string) (EntityState, error)
	ListStates(ctx context.Context) ([]EntityState, error)
	CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error
}

// MediaCandidate is one library search hit; Year and ExternalID disambiguate
// same-title matches.
type MediaCandidate struct {
	Title      string `json:"title"`
	Year       int    `json:"year"`
	ExternalID string `json:"external_id"`
	InLibrary  bool   `json:"in_library"`
}

// MediaBackend talks to a media library manager.
type MediaBackend interface {
	Search(ctx context.Context, kind, query string) ([]MediaCandidate, error)
	Request(ctx context.Context, kind, externalID string) error
	Delete(ctx context.Context, kind, externalID string) error
}

// Transcriber turns captured audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// WebSearcher runs a web search and returns rendered result snippets.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) (string, error)
}
