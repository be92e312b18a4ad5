package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// schemaVersion is bumped whenever the table layout changes. A mismatch drops
// the table: the cache is best-effort storage and losing it is acceptable.
const schemaVersion = 1

const metaTable = "appcache_schema"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type queries struct {
	create    []string
	drop      string
	upsert    string
	purge     string
	evict     string
	get       string
	touch     string
	expiry    string
	usage     string
	del       string
	clear     string
	metaRead  string
	metaWrite string
}

func newQueries(t string) queries {
	return queries{
		create: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key       TEXT PRIMARY KEY,
	value     BLOB NOT NULL,
	expiry    TEXT NOT NULL,
	last_read TEXT NOT NULL,
	size      INTEGER NOT NULL
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_expiry ON %s (expiry)`, t, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_last_read ON %s (last_read)`, t, t),
		},
		drop: fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t),
		upsert: fmt.Sprintf(`INSERT INTO %s (key, value, expiry, last_read, size)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	expiry = excluded.expiry,
	last_read = excluded.last_read,
	size = excluded.size`, t),
		purge: fmt.Sprintf(`DELETE FROM %s WHERE expiry != '-1' AND expiry <= ?`, t),
		// Rank by recency and drop every row whose running total is over budget.
		evict: fmt.Sprintf(`DELETE FROM %s WHERE key IN (
	SELECT key FROM (
		SELECT key, SUM(size) OVER (
			ORDER BY last_read DESC, rowid DESC
			ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
		) AS running
		FROM %s
	) WHERE running > ?
)`, t, t),
		get:      fmt.Sprintf(`SELECT value FROM %s WHERE key = ? AND (expiry = '-1' OR expiry > ?)`, t),
		touch:    fmt.Sprintf(`UPDATE %s SET last_read = ? WHERE key = ?`, t),
		expiry:   fmt.Sprintf(`SELECT expiry FROM %s WHERE key = ? AND (expiry = '-1' OR expiry > ?)`, t),
		usage:    fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM %s WHERE expiry = '-1' OR expiry > ?`, t),
		del:      fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, t),
		clear:    fmt.Sprintf(`DELETE FROM %s`, t),
		metaRead: fmt.Sprintf(`SELECT version FROM %s WHERE tbl = ?`, metaTable),
		metaWrite: fmt.Sprintf(`INSERT INTO %s (tbl, version) VALUES (?, ?)
ON CONFLICT(tbl) DO UPDATE SET version = excluded.version`, metaTable),
	}
}

// migrate creates the cache table, or recreates it when the recorded schema
// version differs from schemaVersion.
func migrate(ctx context.Context, db *sql.DB, table string, q queries) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (tbl TEXT PRIMARY KEY, version INTEGER NOT NULL)`, metaTable)); err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}

	var have int
	err = tx.QueryRowContext(ctx, q.metaRead, table).Scan(&have)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		have = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	if have != schemaVersion {
		if _, err := tx.ExecContext(ctx, q.drop); err != nil {
			return fmt.Errorf("drop outdated table: %w", err)
		}
	}
	for _, ddl := range q.create {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, q.metaWrite, table, schemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return tx.Commit()
}
