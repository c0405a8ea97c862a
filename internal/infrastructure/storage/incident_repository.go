package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/ports"
)

const incidentsTable = "incidents"

var incidentColumns = []string{
	"id", "title", "vendor_key", "product", "published_at", "exploit_description", "summary",
	"source_url", "image_url", "incident_type", "affected_service", "potentially_impacted_data",
	"status", "source_label",
}

// Store persists incidents and reads subscriptions through one *sql.DB.
type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

var _ ports.Store = (*Store)(nil)

// NewStore wires a sql.DB implementation with the dialect's placeholder format.
func NewStore(db *sql.DB, driver string, placeholder sq.PlaceholderFormat) *Store {
	return &Store{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder).RunWith(db),
	}
}

// DB exposes the underlying handle for maintenance tasks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores the incident. A colliding source_url is reported as
// InsertResultSkippedDuplicateURL, never as an error.
func (s *Store) Insert(ctx context.Context, incident domain.Incident) (domain.InsertResult, error) {
	id := incident.ID
	if id == "" {
		id = uuid.NewString()
	}

	res, err := s.sb.Insert(incidentsTable).
		Columns(incidentColumns...).
		Values(
			id,
			incident.Title,
			incident.VendorKey,
			incident.Product,
			incident.PublishedAt.UTC(),
			incident.ExploitDescription,
			incident.Summary,
			incident.SourceURL,
			nullString(incident.ImageURL),
			incident.IncidentType,
			incident.AffectedService,
			incident.PotentiallyImpactedData,
			incident.Status,
			incident.SourceLabel,
		).
		Suffix("ON CONFLICT (source_url) DO NOTHING").
		ExecContext(ctx)
	if err != nil {
		return "", fmt.Errorf("insert incident: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert incident rows affected: %w", err)
	}
	if affected == 0 {
		return domain.InsertResultSkippedDuplicateURL, nil
	}
	return domain.InsertResultInserted, nil
}

// HasSourceURL reports whether an incident with this source URL is stored.
func (s *Store) HasSourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var count int
	err := s.sb.Select("COUNT(1)").
		From(incidentsTable).
		Where(sq.Eq{"source_url": sourceURL}).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lookup source url: %w", err)
	}
	return count > 0, nil
}

// QueryByVendorSince returns title and summary of the vendor's incidents published after since.
func (s *Store) QueryByVendorSince(ctx context.Context, vendorKey string, since time.Time) ([]domain.PriorIncident, error) {
	rows, err := s.sb.Select("title", "summary").
		From(incidentsTable).
		Where(sq.Eq{"vendor_key": vendorKey}).
		Where(sq.Gt{"published_at": since.UTC()}).
		OrderBy("published_at DESC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query vendor incidents: %w", err)
	}
	defer rows.Close()

	var prior []domain.PriorIncident
	for rows.Next() {
		var p domain.PriorIncident
		if err := rows.Scan(&p.Title, &p.Summary); err != nil {
			return nil, fmt.Errorf("scan prior incident: %w", err)
		}
		prior = append(prior, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return prior, nil
}

// ListIncidents returns incidents newest first for downstream consumers.
func (s *Store) ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	query := s.sb.Select(incidentColumns...).
		From(incidentsTable).
		OrderBy("published_at DESC")

	if key := strings.TrimSpace(filter.VendorKey); key != "" {
		query = query.Where(sq.Eq{"vendor_key": domain.NormalizeVendor(key)})
	}
	if !filter.Since.IsZero() {
		query = query.Where(sq.Gt{"published_at": filter.Since.UTC()})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []domain.Incident
	for rows.Next() {
		var (
			inc   domain.Incident
			image sql.NullString
		)
		if err := rows.Scan(
			&inc.ID,
			&inc.Title,
			&inc.VendorKey,
			&inc.Product,
			&inc.PublishedAt,
			&inc.ExploitDescription,
			&inc.Summary,
			&inc.SourceURL,
			&image,
			&inc.IncidentType,
			&inc.AffectedService,
			&inc.PotentiallyImpactedData,
			&inc.Status,
			&inc.SourceLabel,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.ImageURL = image.String
		inc.PublishedAt = inc.PublishedAt.UTC()
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return incidents, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
