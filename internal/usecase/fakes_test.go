package usecase

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/ports"
)

type fakeSource struct {
	items  []domain.CandidateArticle
	errs   []error
	cutoff time.Time
}

func (s *fakeSource) FetchSince(_ context.Context, cutoff time.Time) iter.Seq2[domain.CandidateArticle, error] {
	s.cutoff = cutoff
	return func(yield func(domain.CandidateArticle, error) bool) {
		for _, err := range s.errs {
			if !yield(domain.CandidateArticle{}, err) {
				return
			}
		}
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// fakeExtractor maps article text to extraction results. Unknown text is not an incident.
type fakeExtractor struct {
	results map[string]domain.ExtractedIncident
	panicOn string
	calls   int
}

var errNotIncident = errors.New("not an incident")

func (e *fakeExtractor) Extract(_ context.Context, text string) (domain.ExtractedIncident, error) {
	e.calls++
	if e.panicOn != "" && text == e.panicOn {
		panic("extractor exploded")
	}
	if res, ok := e.results[text]; ok {
		return res, nil
	}
	return domain.ExtractedIncident{}, errNotIncident
}

type fakeChat struct {
	answer   string
	err      error
	calls    int
	requests []ports.ChatRequest
}

func (c *fakeChat) Complete(_ context.Context, req ports.ChatRequest) (string, error) {
	c.calls++
	c.requests = append(c.requests, req)
	return c.answer, c.err
}

type memStore struct {
	incidents []domain.Incident
	index     domain.SubscriptionIndex
	indexErr  error
	queryErr  error
	since     time.Time
	closes    int
}

func (s *memStore) Insert(_ context.Context, incident domain.Incident) (domain.InsertResult, error) {
	for _, existing := range s.incidents {
		if existing.SourceURL == incident.SourceURL {
			return domain.InsertResultSkippedDuplicateURL, nil
		}
	}
	s.incidents = append(s.incidents, incident)
	return domain.InsertResultInserted, nil
}

func (s *memStore) HasSourceURL(_ context.Context, sourceURL string) (bool, error) {
	for _, existing := range s.incidents {
		if existing.SourceURL == sourceURL {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) QueryByVendorSince(_ context.Context, vendorKey string, since time.Time) ([]domain.PriorIncident, error) {
	s.since = since
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []domain.PriorIncident
	for _, existing := range s.incidents {
		if existing.VendorKey == vendorKey && !existing.PublishedAt.Before(since) {
			out = append(out, domain.PriorIncident{Title: existing.Title, Summary: existing.Summary})
		}
	}
	return out, nil
}

func (s *memStore) ListIncidents(context.Context, domain.IncidentFilter) ([]domain.Incident, error) {
	return s.incidents, nil
}

func (s *memStore) SubscriptionIndex(context.Context) (domain.SubscriptionIndex, error) {
	if s.indexErr != nil {
		return nil, s.indexErr
	}
	if s.index == nil {
		return domain.SubscriptionIndex{}, nil
	}
	return s.index, nil
}

func (s *memStore) Close() error {
	s.closes++
	return nil
}

type memOpener struct {
	store *memStore
	err   error
	opens int
}

func (o *memOpener) Open(context.Context) (ports.Store, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.store, nil
}

type fakeMailer struct {
	sent   []ports.Email
	failTo map[string]bool
}

func (m *fakeMailer) Send(ctx context.Context, email ports.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failTo[strings.ToLower(email.To)] {
		return errors.New("provider rejected recipient")
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *fakeMailer) recipients() []string {
	out := make([]string, 0, len(m.sent))
	for _, e := range m.sent {
		out = append(out, e.To)
	}
	return out
}

type fakeRenderer struct{}

func (fakeRenderer) Render(incident domain.Incident, recipient string) (ports.Email, error) {
	return ports.Email{To: recipient, Subject: incident.Title, HTML: "<p>" + incident.Summary + "</p>"}, nil
}

type fakeRecorder struct {
	runs    int
	failed  bool
	summary domain.RunSummary
}

func (r *fakeRecorder) ObserveRun(summary domain.RunSummary, _ time.Duration, failed bool) {
	r.runs++
	r.failed = failed
	r.summary = summary
}
