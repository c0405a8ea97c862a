package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/logging"
	"IncidentScanner/internal/ports"
)

// Deduplicator decides whether a candidate repeats an incident already stored
// for the same vendor inside the trailing window.
type Deduplicator struct {
	repo      ports.IncidentRepository
	chat      ports.ChatClient
	window    time.Duration
	maxTokens int
	now       func() time.Time
	logger    *slog.Logger
}

// NewDeduplicator wires the store and the completion client.
func NewDeduplicator(repo ports.IncidentRepository, chat ports.ChatClient, window time.Duration, maxTokens int, now func() time.Time, logger *slog.Logger) *Deduplicator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Deduplicator{
		repo:      repo,
		chat:      chat,
		window:    window,
		maxTokens: maxTokens,
		now:       now,
		logger:    logger,
	}
}

// Check loads the vendor's recent incidents and compares the candidate against
// them. An empty window accepts the candidate without a model call.
func (d *Deduplicator) Check(ctx context.Context, candidate domain.Incident) (bool, error) {
	since := d.now().UTC().Add(-d.window)
	prior, err := d.repo.QueryByVendorSince(ctx, candidate.VendorKey, since)
	if err != nil {
		return false, fmt.Errorf("load prior incidents for %s: %w", candidate.VendorKey, err)
	}
	return d.IsDuplicate(ctx, candidate, prior), nil
}

// IsDuplicate asks the model whether candidate repeats one of prior. A failed
// call counts as not duplicate.
func (d *Deduplicator) IsDuplicate(ctx context.Context, candidate domain.Incident, prior []domain.PriorIncident) bool {
	if len(prior) == 0 {
		return false
	}

	zero := 0.0
	answer, err := d.chat.Complete(ctx, ports.ChatRequest{
		Messages:    []ports.ChatMessage{{Role: "user", Content: duplicatePrompt(candidate.Title, prior)}},
		MaxTokens:   d.maxTokens,
		Temperature: &zero,
	})
	if err != nil {
		d.logger.Warn("duplicate check failed, accepting candidate", "title", candidate.Title, "vendor", candidate.VendorKey, "error", err)
		return false
	}

	if strings.Contains(strings.ToUpper(answer), "YES") {
		d.logger.Info("duplicate found", "title", candidate.Title, "vendor", candidate.VendorKey)
		return true
	}
	return false
}

func duplicatePrompt(title string, prior []domain.PriorIncident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article: %s.\nIs the given article a duplicate of the following articles?\n", title)
	for i, p := range prior {
		fmt.Fprintf(&b, "%d. Title: %s\n   Summary: %s\n", i+1, p.Title, p.Summary)
	}
	b.WriteString(`Answer with only "YES" or "NO".`)
	return b.String()
}
