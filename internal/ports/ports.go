package ports

import (
	"context"
	"iter"
	"time"

	"IncidentScanner/internal/domain"
)

// CandidateSource lazily yields feed entries published after cutoff. A non-nil
// error in the sequence reports a source that could not be read; iteration
// continues with the remaining sources.
type CandidateSource interface {
	FetchSince(ctx context.Context, cutoff time.Time) iter.Seq2[domain.CandidateArticle, error]
}

// ChatMessage is one entry of a completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single completion call.
type ChatRequest struct {
	Messages    []ChatMessage
	MaxTokens   int
	Temperature *float64
}

// ChatClient sends prompts to an OpenAI-compatible completion API.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Extractor turns article text into structured incident fields.
type Extractor interface {
	Extract(ctx context.Context, articleText string) (domain.ExtractedIncident, error)
}

// IncidentRepository persists incidents and answers the dedup window query.
type IncidentRepository interface {
	Insert(ctx context.Context, incident domain.Incident) (domain.InsertResult, error)
	HasSourceURL(ctx context.Context, sourceURL string) (bool, error)
	QueryByVendorSince(ctx context.Context, vendorKey string, since time.Time) ([]domain.PriorIncident, error)
	ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error)
}

// SubscriberDirectory reads the externally owned vendor-list subscriptions.
type SubscriberDirectory interface {
	SubscriptionIndex(ctx context.Context) (domain.SubscriptionIndex, error)
}

// Store is one open database session.
type Store interface {
	IncidentRepository
	SubscriberDirectory
	Close() error
}

// StoreOpener acquires a Store for the lifetime of one invocation.
type StoreOpener interface {
	Open(ctx context.Context) (Store, error)
}

// Email is a single-recipient message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers one message through the transactional email API.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// EmailRenderer formats an incident for one recipient.
type EmailRenderer interface {
	Render(incident domain.Incident, recipient string) (Email, error)
}

// RunRecorder observes pipeline outcomes.
type RunRecorder interface {
	ObserveRun(summary domain.RunSummary, duration time.Duration, failed bool)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
