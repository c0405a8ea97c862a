package storage

import (
	"context"
	"fmt"

	"IncidentScanner/internal/config"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS incidents (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	vendor_key TEXT NOT NULL,
	product TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	exploit_description TEXT NOT NULL,
	summary TEXT NOT NULL,
	source_url TEXT NOT NULL,
	image_url TEXT,
	incident_type TEXT NOT NULL,
	affected_service TEXT NOT NULL,
	potentially_impacted_data TEXT NOT NULL,
	status TEXT NOT NULL,
	source_label TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS incidents_source_url_key ON incidents (source_url);
CREATE INDEX IF NOT EXISTS incidents_vendor_published_idx ON incidents (vendor_key, published_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS incidents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	vendor_key TEXT NOT NULL,
	product TEXT NOT NULL,
	published_at TIMESTAMP NOT NULL,
	exploit_description TEXT NOT NULL,
	summary TEXT NOT NULL,
	source_url TEXT NOT NULL,
	image_url TEXT,
	incident_type TEXT NOT NULL,
	affected_service TEXT NOT NULL,
	potentially_impacted_data TEXT NOT NULL,
	status TEXT NOT NULL,
	source_label TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS incidents_source_url_key ON incidents (source_url);
CREATE INDEX IF NOT EXISTS incidents_vendor_published_idx ON incidents (vendor_key, published_at);

CREATE TABLE IF NOT EXISTS vendors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS vendor_lists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vendor_list_vendors (
	vendor_list_id TEXT NOT NULL REFERENCES vendor_lists(id) ON DELETE CASCADE,
	vendor_id TEXT NOT NULL REFERENCES vendors(id) ON DELETE CASCADE,
	PRIMARY KEY (vendor_list_id, vendor_id)
);
CREATE TABLE IF NOT EXISTS subscribers (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	verified INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS vendor_list_subscribers (
	vendor_list_id TEXT NOT NULL REFERENCES vendor_lists(id) ON DELETE CASCADE,
	subscriber_id TEXT NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
	PRIMARY KEY (vendor_list_id, subscriber_id)
);
`

// Migrate creates the incidents table and its indexes. On sqlite it also
// creates the subscription tables that Postgres deployments own elsewhere.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == config.DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
