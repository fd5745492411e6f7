package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect carries the driver name and the statements that differ between
// database engines.
type Dialect struct {
	Name   string
	Driver string

	schema         string
	selectByTask   string
	insertFallback string
	upsertLabel    string
	replaceLabel   string
	// schemaLock serializes DDL across concurrent starts when set.
	schemaLock string
}

var Postgres = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	schema: `
CREATE TABLE IF NOT EXISTS label_cache (
	task TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	label TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (task, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_label_cache_source ON label_cache(task, source);
`,
	selectByTask: `
SELECT fingerprint, label, source
FROM label_cache
WHERE task = $1
`,
	insertFallback: `
INSERT INTO label_cache (task, fingerprint, label, source, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (task, fingerprint) DO NOTHING
`,
	upsertLabel: `
INSERT INTO label_cache (task, fingerprint, label, source, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (task, fingerprint) DO UPDATE
SET label = EXCLUDED.label, source = EXCLUDED.source, created_at = EXCLUDED.created_at
WHERE label_cache.source = 'fallback'
`,
	replaceLabel: `
INSERT INTO label_cache (task, fingerprint, label, source, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (task, fingerprint) DO UPDATE
SET label = EXCLUDED.label, source = EXCLUDED.source, created_at = EXCLUDED.created_at
`,
	schemaLock: `SELECT pg_advisory_xact_lock($1)`,
}

var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite3",
	schema: `
CREATE TABLE IF NOT EXISTS label_cache (
	task TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	label TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (task, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_label_cache_source ON label_cache(task, source);
`,
	selectByTask: `
SELECT fingerprint, label, source
FROM label_cache
WHERE task = ?
`,
	insertFallback: `
INSERT INTO label_cache (task, fingerprint, label, source, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (task, fingerprint) DO NOTHING
`,
	upsertLabel: `
INSERT INTO label_cache (task, fingerprint, label, source, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (task, fingerprint) DO UPDATE
SET label = excluded.label, source = excluded.source, created_at = excluded.created_at
WHERE label_cache.source = 'fallback'
`,
	replaceLabel: `
INSERT INTO label_cache (task, fingerprint, label, source, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (task, fingerprint) DO UPDATE
SET label = excluded.label, source = excluded.source, created_at = excluded.created_at
`,
}

func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}
