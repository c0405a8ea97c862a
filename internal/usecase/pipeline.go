package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/logging"
	"IncidentScanner/internal/ports"
)

var errNoEntries = errors.New("no new entries")

// PipelineSettings holds the tunables of one invocation.
type PipelineSettings struct {
	DefaultLookbackHours int
	DedupWindow          time.Duration
	DedupMaxTokens       int
	OperatorEmail        string
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.CandidateSource
	Extractor ports.Extractor
	Chat      ports.ChatClient
	Stores    ports.StoreOpener
	Mailer    ports.Mailer
	Renderer  ports.EmailRenderer
	Recorder  ports.RunRecorder
	Logger    *slog.Logger
	Settings  PipelineSettings
	Now       func() time.Time
}

// Pipeline runs fetch, extract, dedupe, persist and notify for one invocation.
type Pipeline struct {
	source    ports.CandidateSource
	extractor ports.Extractor
	chat      ports.ChatClient
	stores    ports.StoreOpener
	mailer    ports.Mailer
	renderer  ports.EmailRenderer
	recorder  ports.RunRecorder
	logger    *slog.Logger
	settings  PipelineSettings
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Settings.DefaultLookbackHours <= 0 {
		deps.Settings.DefaultLookbackHours = 3
	}
	return &Pipeline{
		source:    deps.Source,
		extractor: deps.Extractor,
		chat:      deps.Chat,
		stores:    deps.Stores,
		mailer:    deps.Mailer,
		renderer:  deps.Renderer,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
		settings:  deps.Settings,
		now:       deps.Now,
	}
}

// Run executes one invocation and always returns a structured response.
// Errors and panics escaping any stage become a 500 response.
func (p *Pipeline) Run(ctx context.Context, inv domain.Invocation) (resp domain.Response) {
	started := p.now()
	var summary domain.RunSummary

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panicked", "panic", r)
			resp = domain.FailureResponse(fmt.Errorf("internal error: %v", r))
		}
		if p.recorder != nil {
			p.recorder.ObserveRun(summary, p.now().Sub(started), resp.StatusCode >= 500)
		}
	}()

	hours := p.settings.DefaultLookbackHours
	if inv.Hours != nil {
		hours = *inv.Hours
	}
	if hours <= 0 {
		return domain.FailureResponse(fmt.Errorf("hours must be positive, got %d", hours))
	}

	cutoff := started.UTC().Add(-time.Duration(hours) * time.Hour)
	p.logger.Info("pipeline started", "cutoff", cutoff.Format(time.RFC3339), "hours", hours)

	var err error
	summary, err = p.process(ctx, cutoff)
	p.logger.Info("pipeline finished",
		"candidates", summary.Candidates,
		"extraction_dropped", summary.ExtractionDropped,
		"duplicates", summary.Duplicates,
		"inserted", summary.Inserted,
		"skipped_duplicate_url", summary.SkippedDuplicateURL,
		"persist_failures", summary.PersistFailures,
		"notified", summary.Notified,
		"failed_sends", summary.FailedSends,
		"failed_sources", summary.FailedSources,
	)

	switch {
	case errors.Is(err, errNoEntries):
		return domain.NoEntriesResponse()
	case err != nil:
		p.logger.Error("pipeline failed", "error", err)
		return domain.FailureResponse(err)
	default:
		return domain.SuccessResponse(summary)
	}
}

func (p *Pipeline) process(ctx context.Context, cutoff time.Time) (summary domain.RunSummary, err error) {
	if p.source == nil || p.extractor == nil || p.stores == nil {
		return summary, errors.New("pipeline is not fully configured")
	}

	var store ports.Store
	defer func() {
		if store == nil {
			return
		}
		if closeErr := store.Close(); closeErr != nil {
			p.logger.Warn("close store", "error", closeErr)
		}
	}()

	extracted, err := p.extract(ctx, cutoff, &summary, func() (ports.Store, error) {
		if store != nil {
			return store, nil
		}
		opened, openErr := p.stores.Open(ctx)
		if openErr != nil {
			return nil, fmt.Errorf("open store: %w", openErr)
		}
		store = opened
		return store, nil
	})
	if err != nil {
		return summary, err
	}
	if len(extracted) == 0 {
		return summary, errNoEntries
	}

	inserted := p.persist(ctx, store, extracted, &summary)
	p.notify(ctx, store, inserted, &summary)
	return summary, nil
}

// extract consumes the candidate sequence. The store is opened on the first
// candidate so runs without candidates never touch the database.
func (p *Pipeline) extract(ctx context.Context, cutoff time.Time, summary *domain.RunSummary, openStore func() (ports.Store, error)) ([]domain.Incident, error) {
	var extracted []domain.Incident
	for candidate, err := range p.source.FetchSince(ctx, cutoff) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			summary.FailedSources = append(summary.FailedSources, err.Error())
			continue
		}
		summary.Candidates++

		store, err := openStore()
		if err != nil {
			return nil, err
		}

		known, err := store.HasSourceURL(ctx, candidate.Link)
		if err != nil {
			p.logger.Warn("source url lookup failed", "url", candidate.Link, "error", err)
		} else if known {
			summary.SkippedDuplicateURL++
			p.logger.Debug("skip stored article", "url", candidate.Link)
			continue
		}

		fields, err := p.extractor.Extract(ctx, candidate.Text)
		if err != nil {
			summary.ExtractionDropped++
			p.logger.Info("drop candidate", "url", candidate.Link, "reason", err)
			continue
		}

		extracted = append(extracted, domain.NewIncident(candidate, fields))
	}
	return extracted, nil
}

// persist dedupes and inserts candidates one at a time, so later candidates
// are compared against earlier ones from the same run.
func (p *Pipeline) persist(ctx context.Context, store ports.Store, candidates []domain.Incident, summary *domain.RunSummary) []domain.Incident {
	dedupe := NewDeduplicator(store, p.chat, p.settings.DedupWindow, p.settings.DedupMaxTokens, p.now, p.logger)

	var inserted []domain.Incident
	for _, incident := range candidates {
		duplicate, err := dedupe.Check(ctx, incident)
		if err != nil {
			summary.PersistFailures++
			p.logger.Error("dedupe lookup failed", "url", incident.SourceURL, "error", err)
			continue
		}
		if duplicate {
			summary.Duplicates++
			continue
		}

		result, err := store.Insert(ctx, incident)
		if err != nil {
			summary.PersistFailures++
			p.logger.Error("insert incident failed", "url", incident.SourceURL, "error", err)
			continue
		}
		if result == domain.InsertResultSkippedDuplicateURL {
			summary.SkippedDuplicateURL++
			continue
		}

		summary.Inserted++
		inserted = append(inserted, incident)
		p.logger.Info("incident inserted", "vendor", incident.VendorKey, "title", incident.Title, "url", incident.SourceURL)
	}
	return inserted
}

func (p *Pipeline) notify(ctx context.Context, store ports.Store, incidents []domain.Incident, summary *domain.RunSummary) {
	if len(incidents) == 0 || p.mailer == nil || p.renderer == nil {
		return
	}

	index, err := store.SubscriptionIndex(ctx)
	if err != nil {
		p.logger.Error("load subscriptions failed, notifying operator only", "error", err)
		index = domain.SubscriptionIndex{}
	}

	fanout := NewFanout(p.mailer, p.renderer, p.settings.OperatorEmail, p.logger)
	for _, incident := range incidents {
		sent, failed := fanout.Notify(ctx, incident, index)
		summary.Notified += sent
		summary.FailedSends += failed
	}
}
