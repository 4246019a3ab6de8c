// Package sqlstore implements the persistence contract on top of
// database/sql. The sqlite and postgres packages supply a Dialect and a
// driver; the statements here are shared between them.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	// Name identifies the engine in errors and logs.
	Name string
	// NumberedParams switches `?` placeholders to `$1, $2, ...`.
	NumberedParams bool
	// Schema lists the DDL statements applied on open.
	Schema []string
	// ResetPlantSequence, when set, runs after a bulk replace so that the
	// plants id sequence continues at max(id)+1.
	ResetPlantSequence string
}

// Rebind rewrites `?` placeholders for dialects that use numbered params.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLite is the dialect for modernc.org/sqlite.
var SQLite = Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS plants (
			id INTEGER PRIMARY KEY,
			plant_name TEXT NOT NULL DEFAULT '',
			full_address TEXT NOT NULL DEFAULT '',
			address_only TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			reporter_2025 TEXT NOT NULL DEFAULT '',
			reporting_status TEXT NOT NULL DEFAULT '',
			filing_fee REAL NOT NULL DEFAULT 0,
			additional_fee TEXT NOT NULL DEFAULT '',
			additional_steps TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			client_notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS plant_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plant_id INTEGER NOT NULL REFERENCES plants(id) ON DELETE CASCADE,
			original_name TEXT NOT NULL,
			stored_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			upload_date TIMESTAMP NOT NULL,
			path TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS plant_files_plant_id_idx ON plant_files(plant_id)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			plant_id INTEGER NULL,
			message TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT 0,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMP NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alert_responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id INTEGER NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
			responder TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS alert_responses_alert_id_idx ON alert_responses(alert_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at TIMESTAMP NOT NULL
		)`,
	},
}

// Postgres is the dialect for github.com/jackc/pgx/v5/stdlib.
var Postgres = Dialect{
	Name:           "postgres",
	NumberedParams: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS plants (
			id SERIAL PRIMARY KEY,
			plant_name TEXT NOT NULL DEFAULT '',
			full_address TEXT NOT NULL DEFAULT '',
			address_only TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			reporter_2025 TEXT NOT NULL DEFAULT '',
			reporting_status TEXT NOT NULL DEFAULT '',
			filing_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
			additional_fee TEXT NOT NULL DEFAULT '',
			additional_steps TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			client_notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS plant_files (
			id BIGSERIAL PRIMARY KEY,
			plant_id INTEGER NOT NULL REFERENCES plants(id) ON DELETE CASCADE,
			original_name TEXT NOT NULL,
			stored_name TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			upload_date TIMESTAMPTZ NOT NULL,
			path TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS plant_files_plant_id_idx ON plant_files(plant_id)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			plant_id INTEGER NULL,
			message TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMPTZ NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alert_responses (
			id BIGSERIAL PRIMARY KEY,
			alert_id BIGINT NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
			responder TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS alert_responses_alert_id_idx ON alert_responses(alert_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
	},
	ResetPlantSequence: `SELECT setval(pg_get_serial_sequence('plants', 'id'), COALESCE((SELECT MAX(id) FROM plants), 1), EXISTS (SELECT 1 FROM plants))`,
}
