// Package sqlite is a bounded, persistent byte store on SQLite
// (mattn/go-sqlite3). Entries carry an optional expiry and a last-read time;
// the store is kept under MaxSizeBytes by cohort eviction.
//
// Eviction: after every Set, entries are ranked by last_read (most recent
// first) and every entry whose running size total exceeds MaxSizeBytes is
// deleted in one statement. A single Set can therefore evict zero, one or
// several of the least recently read entries.
//
// Expiry is lazy: expired rows are purged at the start of Get and during Set.
// A read never returns an expired row, purge or not.
//
// Reads are writes: Get refreshes last_read (and purges). Use Peek for a
// strictly read-only lookup. Get never runs size eviction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	pr "github.com/unkn0wn-root/appcache/provider"
)

const (
	// DefaultMaxSizeBytes bounds a store when Config.MaxSizeBytes is 0.
	DefaultMaxSizeBytes int64 = 10 << 20
	// DefaultTable is the table name used when Config.Table is empty.
	DefaultTable = "appcache"

	// noExpiry is the persisted expiry sentinel.
	noExpiry = "-1"
	// tsLayout is fixed width so timestamps compare correctly as text.
	tsLayout = "2006-01-02T15:04:05.000000000Z"
)

var ErrInvalidTable = errors.New("sqlite store: invalid table name")

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type Config struct {
	// Path of the database file. Ignored when DB is set. When both Path and
	// DB are empty, a fresh private in-memory database is used.
	Path string
	// DB is a caller-supplied handle. It is not closed by Close unless CloseDB.
	DB      *sql.DB
	CloseDB bool

	MaxSizeBytes int64  // 0 => DefaultMaxSizeBytes
	Table        string // "" => DefaultTable
	Now          Clock  // nil => time.Now
}

// Store implements provider.Provider. Safe for concurrent use; every
// operation runs as one transaction under the store's mutex.
type Store struct {
	db      *sql.DB
	closeDB bool
	table   string
	maxSize int64
	now     Clock
	q       queries

	mu        sync.Mutex
	closeOnce sync.Once
}

var _ pr.Provider = (*Store)(nil)

// Open opens (and if needed creates or migrates) a store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MaxSizeBytes < 0 {
		return nil, fmt.Errorf("sqlite store: negative MaxSizeBytes %d", cfg.MaxSizeBytes)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) || table == metaTable {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	db, closeDB := cfg.DB, cfg.CloseDB
	if db == nil {
		var err error
		if cfg.Path != "" {
			db, err = openFile(cfg.Path)
		} else {
			db, err = openMemory("appcache_" + uuid.NewString())
		}
		if err != nil {
			return nil, err
		}
		closeDB = true
	}

	s := &Store{
		db:      db,
		closeDB: closeDB,
		table:   table,
		maxSize: cfg.MaxSizeBytes,
		now:     cfg.Now,
		q:       newQueries(table),
	}
	if s.maxSize == 0 {
		s.maxSize = DefaultMaxSizeBytes
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := migrate(ctx, db, table, s.q); err != nil {
		if closeDB {
			_ = db.Close()
		}
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return s, nil
}

func openFile(path string) (*sql.DB, error) {
	v := url.Values{}
	v.Set("_txlock", "immediate") // writers queue on BEGIN instead of failing mid-transaction
	v.Set("_busy_timeout", "5000")
	v.Set("_journal_mode", "WAL")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+v.Encode())
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: ping %s: %w", path, err)
	}
	return db, nil
}

// openMemory opens a named in-memory database. A single pooled connection
// keeps the database alive for the handle's lifetime.
func openMemory(name string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: ping memory: %w", err)
	}
	return db, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(tsLayout) }

func formatExpiry(now time.Time, ttl time.Duration) string {
	if ttl == pr.NoExpiry {
		return noExpiry
	}
	return formatTime(now.Add(ttl))
}

// MaxSizeBytes is the eviction budget.
func (s *Store) MaxSizeBytes() int64 { return s.maxSize }

// Get purges expired rows, returns the value for key if it is live and
// refreshes its last_read, all in one transaction.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q.purge, now); err != nil {
		return nil, false, fmt.Errorf("purge expired: %w", err)
	}

	var value []byte
	err = tx.QueryRowContext(ctx, s.q.get, key, now).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, tx.Commit()
	}
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, s.q.touch, now, key); err != nil {
		return nil, false, fmt.Errorf("touch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Set upserts key with last_read = now, purges expired rows and evicts the
// least recently read cohort that no longer fits in MaxSizeBytes.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	now := formatTime(t)
	if value == nil {
		value = []byte{} // value is NOT NULL
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q.upsert, key, value, formatExpiry(t, ttl), now, len(value)); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q.purge, now); err != nil {
		return fmt.Errorf("purge expired: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q.evict, s.maxSize); err != nil {
		return fmt.Errorf("evict: %w", err)
	}
	return tx.Commit()
}

// Del removes key. A missing key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, s.q.del, key)
	return err
}

// Clear deletes every entry in the table, whoever wrote it.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, s.q.clear)
	return err
}

// Peek returns the live value for key without touching it or purging.
func (s *Store) Peek(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err := s.db.QueryRowContext(ctx, s.q.get, key, formatTime(s.now())).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// TTL returns the remaining lifetime of key. ok is false when the key is
// absent or expired; a key that never expires reports provider.NoExpiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	var expiry string
	err := s.db.QueryRowContext(ctx, s.q.expiry, key, formatTime(t)).Scan(&expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if expiry == noExpiry {
		return pr.NoExpiry, true, nil
	}
	exp, err := time.Parse(tsLayout, expiry)
	if err != nil {
		return 0, false, fmt.Errorf("parse expiry %q: %w", expiry, err)
	}
	return exp.Sub(t), true, nil
}

// Usage reports the number of live entries and their total size in bytes.
func (s *Store) Usage(ctx context.Context) (entries int, bytes int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRowContext(ctx, s.q.usage, formatTime(s.now())).Scan(&entries, &bytes)
	return entries, bytes, err
}

// Close closes the database when the store owns it. Safe to call multiple times.
func (s *Store) Close(context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.closeDB {
			err = s.db.Close()
		}
	})
	return err
}
