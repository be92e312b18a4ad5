// Package fs stores cache entries as files on a go-billy filesystem, one
// file per raw key. Values are framed with their expiry so TTLs are honored:
// expired or unreadable files are removed on read.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/unkn0wn-root/appcache/internal/wire"
	ikeys "github.com/unkn0wn-root/appcache/internal/util"
	pr "github.com/unkn0wn-root/appcache/provider"
)

const (
	// entriesDir holds one file per key; temp files live next to them so
	// the final rename never crosses directories.
	entriesDir = "entries"
	tmpPrefix  = ".tmp-"
)

var ErrNoDirectory = errors.New("fs provider: FS or Dir is required")

type Config struct {
	// FS is the filesystem to store files in (e.g. memfs.New() in tests).
	// When nil, osfs rooted at Dir is used and Dir is created if missing.
	FS  billy.Filesystem
	Dir string
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

type Store struct {
	fs  billy.Filesystem
	now func() time.Time
	mu  sync.RWMutex
}

var _ pr.Provider = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	fsys := cfg.FS
	if fsys == nil {
		if cfg.Dir == "" {
			return nil, ErrNoDirectory
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("fs provider: create %s: %w", cfg.Dir, err)
		}
		fsys = osfs.New(cfg.Dir)
	}
	if err := fsys.MkdirAll(entriesDir, 0o755); err != nil {
		return nil, fmt.Errorf("fs provider: create entries dir: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{fs: fsys, now: now}, nil
}

func (s *Store) path(key string) string {
	return s.fs.Join(entriesDir, ikeys.FileName(key))
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	name := s.path(key)

	s.mu.RLock()
	b, err := util.ReadFile(s.fs, name)
	s.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rec, err := wire.Decode(b)
	if err != nil || rec.Expired(s.now()) {
		s.removeStale(name)
		return nil, false, nil
	}
	return rec.Payload, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	name := s.path(key)
	framed := wire.Encode(wire.ExpiryFor(s.now(), ttl), value)

	s.mu.Lock()
	defer s.mu.Unlock()

	// write to a temp file and rename so readers never see a partial value
	f, err := s.fs.TempFile(entriesDir, tmpPrefix)
	if err != nil {
		return fmt.Errorf("fs provider: temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(framed); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("fs provider: write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("fs provider: close: %w", err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("fs provider: rename: %w", err)
	}
	return nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fs.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes every file the store has written, temp files included.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := util.RemoveAll(s.fs, entriesDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.fs.MkdirAll(entriesDir, 0o755)
}

func (s *Store) Close(context.Context) error { return nil }

// removeStale drops a foreign, truncated or expired file. The check is
// repeated under the write lock so a concurrent Set is never undone.
func (s *Store) removeStale(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := util.ReadFile(s.fs, name)
	if err != nil {
		return
	}
	if rec, err := wire.Decode(b); err == nil && !rec.Expired(s.now()) {
		return
	}
	_ = s.fs.Remove(name)
}
