package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	pr "github.com/unkn0wn-root/appcache/provider"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2018, 1, 3, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openMemory("test_" + uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T, maxSize int64, clock *fakeClock) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{MaxSizeBytes: maxSize, Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func payload(b byte, n int) []byte { return bytes.Repeat([]byte{b}, n) }

// set writes a value and moves the clock on so every write and read has a
// distinct timestamp.
func set(t *testing.T, s *Store, clock *fakeClock, key string, v []byte, ttl time.Duration) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), key, v, ttl))
	clock.Advance(time.Second)
}

func get(t *testing.T, s *Store, clock *fakeClock, key string) ([]byte, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	clock.Advance(time.Second)
	return v, ok
}

func rowCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM appcache`).Scan(&n))
	return n
}

func TestRoundTrip(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)

	set(t, s, clock, "appcache/a", []byte("hello"), 0)
	v, ok := get(t, s, clock, "appcache/a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	_, ok = get(t, s, clock, "appcache/missing")
	assert.False(t, ok)

	set(t, s, clock, "appcache/empty", nil, 0)
	v, ok = get(t, s, clock, "appcache/empty")
	require.True(t, ok)
	assert.Empty(t, v)
	assert.NotNil(t, v)
}

func TestOverwriteReplacesValueAndSize(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)

	set(t, s, clock, "k", payload('a', 40), 0)
	set(t, s, clock, "k", payload('b', 10), 0)

	entries, size, err := s.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
	assert.EqualValues(t, 10, size)

	v, ok := get(t, s, clock, "k")
	require.True(t, ok)
	assert.Equal(t, payload('b', 10), v)
}

func TestTTLCausesExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)

	require.NoError(t, s.Set(context.Background(), "a", []byte("b"), time.Second))
	clock.Advance(time.Second)

	_, ok := get(t, s, clock, "a")
	assert.False(t, ok)
}

func TestNoTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)

	set(t, s, clock, "a", []byte("1"), pr.NoExpiry)
	clock.Advance(365 * 24 * time.Hour)

	v, ok := get(t, s, clock, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	ttl, ok, err := s.TTL(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pr.NoExpiry, ttl)
}

func TestNegativeTTLIsAlreadyExpired(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)

	set(t, s, clock, "a", []byte("1"), -time.Second)
	_, ok := get(t, s, clock, "a")
	assert.False(t, ok)
}

func TestExpiredEntryInvisibleBeforePurge(t *testing.T) {
	clock := newFakeClock()
	db := newMemDB(t)
	s, err := Open(context.Background(), Config{DB: db, Now: clock.Now})
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "a", []byte("1"), 5*time.Second))
	clock.Advance(10 * time.Second)

	// Peek never purges, so the row is still on disk but must not be served.
	_, ok, err := s.Peek(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, rowCount(t, db))

	_, ok, err = s.TTL(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Get purges.
	_, ok = get(t, s, clock, "unrelated")
	assert.False(t, ok)
	assert.Equal(t, 0, rowCount(t, db))
}

func TestTTLRemaining(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)

	require.NoError(t, s.Set(context.Background(), "a", []byte("1"), 10*time.Second))
	clock.Advance(4 * time.Second)

	ttl, ok, err := s.TTL(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6*time.Second, ttl)

	_, ok, err = s.TTL(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCohortEviction(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 100, clock)

	set(t, s, clock, "a", payload('a', 49), 0)
	set(t, s, clock, "b", payload('b', 49), 0)
	set(t, s, clock, "c", payload('c', 49), 0)

	_, ok := get(t, s, clock, "a")
	assert.False(t, ok, "least recently read entry must be evicted")

	v, ok := get(t, s, clock, "b")
	require.True(t, ok)
	assert.Equal(t, payload('b', 49), v)

	v, ok = get(t, s, clock, "c")
	require.True(t, ok)
	assert.Equal(t, payload('c', 49), v)
}

func TestTouchOnReadChangesEvictionOrder(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 100, clock)

	set(t, s, clock, "a", payload('a', 49), 0)
	set(t, s, clock, "b", payload('b', 49), 0)
	_, ok := get(t, s, clock, "a")
	require.True(t, ok)
	set(t, s, clock, "c", payload('c', 49), 0)

	_, ok = get(t, s, clock, "b")
	assert.False(t, ok)
	_, ok = get(t, s, clock, "a")
	assert.True(t, ok)
	_, ok = get(t, s, clock, "c")
	assert.True(t, ok)
}

func TestPeekDoesNotTouch(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 100, clock)

	set(t, s, clock, "a", payload('a', 49), 0)
	set(t, s, clock, "b", payload('b', 49), 0)
	_, ok, err := s.Peek(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	clock.Advance(time.Second)
	set(t, s, clock, "c", payload('c', 49), 0)

	_, ok = get(t, s, clock, "a")
	assert.False(t, ok, "peek must not refresh last_read")
}

func TestOneWriteEvictsSeveral(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 100, clock)

	for i := 0; i < 4; i++ {
		set(t, s, clock, fmt.Sprintf("small-%d", i), payload('s', 25), 0)
	}
	entries, size, err := s.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, entries)
	assert.EqualValues(t, 100, size)

	set(t, s, clock, "big", payload('b', 90), 0)

	entries, size, err = s.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
	assert.EqualValues(t, 90, size)
}

func TestOversizedValueDoesNotStick(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 100, clock)

	set(t, s, clock, "a", payload('a', 10), 0)
	set(t, s, clock, "huge", payload('h', 101), 0)

	_, ok := get(t, s, clock, "huge")
	assert.False(t, ok)
	_, ok = get(t, s, clock, "a")
	assert.False(t, ok, "running total passes the budget at the oversized entry, so older entries go too")
}

func TestEvictionIgnoresTTLOrder(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 1, clock)

	set(t, s, clock, "a", []byte("1"), 10*time.Hour)
	set(t, s, clock, "b", []byte("2"), 10*time.Second)

	_, ok := get(t, s, clock, "a")
	assert.False(t, ok)
	v, ok := get(t, s, clock, "b")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
}

func TestReadsNeverSizeEvict(t *testing.T) {
	clock := newFakeClock()
	db := newMemDB(t)
	ctx := context.Background()

	roomy, err := Open(ctx, Config{DB: db, MaxSizeBytes: 1000, Now: clock.Now})
	require.NoError(t, err)
	set(t, roomy, clock, "a", payload('a', 49), 0)
	set(t, roomy, clock, "b", payload('b', 49), 0)
	set(t, roomy, clock, "c", payload('c', 49), 0)

	// Same table, tighter budget: already over it.
	tight, err := Open(ctx, Config{DB: db, MaxSizeBytes: 100, Now: clock.Now})
	require.NoError(t, err)

	_, ok := get(t, tight, clock, "a")
	require.True(t, ok)
	assert.Equal(t, 3, rowCount(t, db), "get must not run size eviction")

	set(t, tight, clock, "d", payload('d', 10), 0)
	_, size, err := tight.Usage(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, size, int64(100))
}

func TestInvalidateAndClear(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 0, clock)
	ctx := context.Background()

	require.NoError(t, s.Del(ctx, "never-written"))

	set(t, s, clock, "a", []byte("1"), 0)
	set(t, s, clock, "b", []byte("2"), 0)
	require.NoError(t, s.Del(ctx, "a"))
	_, ok := get(t, s, clock, "a")
	assert.False(t, ok)
	_, ok = get(t, s, clock, "b")
	assert.True(t, ok)

	require.NoError(t, s.Clear(ctx))
	entries, size, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Zero(t, entries)
	assert.Zero(t, size)
}

func TestBackingFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.sqlite3")

	s, err := Open(ctx, Config{Path: path, MaxSizeBytes: 5})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", []byte("b"), 0))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx), "close is idempotent")
	assert.FileExists(t, path)

	reopened, err := Open(ctx, Config{Path: path, MaxSizeBytes: 5})
	require.NoError(t, err)
	defer reopened.Close(ctx)

	v, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), v)
}

func TestOutdatedSchemaIsDropped(t *testing.T) {
	ctx := context.Background()
	db := newMemDB(t)

	_, err := db.Exec(`CREATE TABLE appcache (key PRIMARY KEY, value NOT NULL, expiry NOT NULL, last_read NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO appcache VALUES ('a', 'b', '-1', '2018-01-03')`)
	require.NoError(t, err)

	s, err := Open(ctx, Config{DB: db})
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "entries from an older layout are discarded")

	require.NoError(t, s.Set(ctx, "a", []byte("fresh"), 0))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), v)

	// Current version: reopening keeps data.
	again, err := Open(ctx, Config{DB: db})
	require.NoError(t, err)
	_, ok, err = again.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvalidConfig(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, Config{Table: "bad name; DROP TABLE x"})
	require.ErrorIs(t, err, ErrInvalidTable)
	_, err = Open(ctx, Config{Table: metaTable})
	require.ErrorIs(t, err, ErrInvalidTable)
	_, err = Open(ctx, Config{MaxSizeBytes: -1})
	require.Error(t, err)
}

func TestPrivateMemoryStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	a := newTestStore(t, 0, clock)
	b := newTestStore(t, 0, clock)

	require.NoError(t, a.Set(ctx, "k", []byte("v"), 0))
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSharedStore(t *testing.T) {
	ctx := context.Background()
	s1, err := Shared()
	require.NoError(t, err)
	s2, err := Shared()
	require.NoError(t, err)
	require.Same(t, s1, s2)

	key := "shared/" + uuid.NewString()
	require.NoError(t, s1.Set(ctx, key, []byte("v"), 0))
	require.NoError(t, s1.Close(ctx))

	v, ok, err := s2.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok, "closing the shared store must not drop it")
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, s2.Del(ctx, key))
}

func TestConcurrentWritersStayWithinBudget(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{MaxSizeBytes: 200})
	require.NoError(t, err)
	defer s.Close(ctx)

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				key := fmt.Sprintf("w%d/%d", w, i)
				if err := s.Set(ctx, key, payload(byte('a'+w), 10), 0); err != nil {
					return err
				}
				if _, _, err := s.Get(ctx, key); err != nil {
					return err
				}
				_, size, err := s.Usage(ctx)
				if err != nil {
					return err
				}
				if size > 200 {
					return fmt.Errorf("budget exceeded: %d", size)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	entries, size, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, size, int64(200))
	assert.Equal(t, 20, entries)
}
