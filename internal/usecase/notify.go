package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/logging"
	"IncidentScanner/internal/ports"
)

// Fanout sends one individually addressed message per recipient of an incident.
type Fanout struct {
	mailer   ports.Mailer
	renderer ports.EmailRenderer
	operator string
	logger   *slog.Logger
}

// NewFanout wires the mailer; operator always receives a copy.
func NewFanout(mailer ports.Mailer, renderer ports.EmailRenderer, operator string, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fanout{mailer: mailer, renderer: renderer, operator: operator, logger: logger}
}

// Recipients is the operator mailbox plus the vendor's verified subscribers,
// deduplicated case-insensitively. The operator comes first.
func (f *Fanout) Recipients(incident domain.Incident, index domain.SubscriptionIndex) []string {
	subscribers := index.Subscribers(incident.VendorKey)
	sort.Strings(subscribers)

	seen := make(map[string]struct{}, len(subscribers)+1)
	recipients := make([]string, 0, len(subscribers)+1)
	for _, addr := range append([]string{f.operator}, subscribers...) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, addr)
	}
	return recipients
}

// Notify reports how many messages were accepted and how many failed. A failed
// recipient does not stop the others.
func (f *Fanout) Notify(ctx context.Context, incident domain.Incident, index domain.SubscriptionIndex) (sent, failed int) {
	for _, recipient := range f.Recipients(incident, index) {
		email, err := f.renderer.Render(incident, recipient)
		if err == nil {
			err = f.mailer.Send(ctx, email)
		}
		if err != nil {
			failed++
			f.logger.Warn("send notification failed", "recipient", recipient, "url", incident.SourceURL, "error", err)
			continue
		}
		sent++
		f.logger.Debug("notification sent", "recipient", recipient, "url", incident.SourceURL)
	}
	return sent, failed
}
