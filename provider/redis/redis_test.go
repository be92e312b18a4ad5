package redis

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pr "github.com/unkn0wn-root/appcache/provider"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	p, err := New(Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func TestNilClient(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilClient)
}

func TestClientWithOwnRetriesIsRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	for _, n := range []int{0, 1, 3} {
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: n})
		_, err := New(Config{Client: client})
		require.ErrorIs(t, err, ErrClientRetries, "MaxRetries=%d", n)
		_ = client.Close()
	}
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	p, mr := setupTestRedis(t)

	_, ok, err := p.Get(ctx, "appcache/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, "appcache/a", []byte("1"), pr.NoExpiry))
	v, ok, err := p.Get(ctx, "appcache/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Zero(t, mr.TTL("appcache/a"), "ttl 0 means no expiry")

	require.NoError(t, p.Del(ctx, "appcache/a"))
	require.NoError(t, p.Del(ctx, "appcache/a"))
	assert.False(t, mr.Exists("appcache/a"))
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	p, mr := setupTestRedis(t)

	require.NoError(t, p.Set(ctx, "a", []byte("1"), time.Second))
	assert.Equal(t, time.Second, mr.TTL("a"))

	mr.FastForward(time.Second)
	_, ok, err := p.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, "b", []byte("1"), pr.NoExpiry))
	require.NoError(t, p.Set(ctx, "b", []byte("2"), -time.Second))
	assert.False(t, mr.Exists("b"), "negative ttl removes the key")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	p, mr := setupTestRedis(t)

	require.NoError(t, p.Set(ctx, "a", []byte("1"), pr.NoExpiry))
	require.NoError(t, mr.Set("foreign", "x"))
	require.NoError(t, p.Clear(ctx))
	assert.Empty(t, mr.Keys())
}

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("connection reset")

	calls := 0
	err := retryOnce(ctx, func() error {
		calls++
		if calls == 1 {
			return transient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryOnce(ctx, func() error {
		calls++
		return transient
	})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 2, calls, "gives up after a single retry")

	calls = 0
	err = retryOnce(ctx, func() error {
		calls++
		return goredis.Nil
	})
	require.ErrorIs(t, err, goredis.Nil)
	assert.Equal(t, 1, calls, "misses are not retried")
}

func TestServerDownPropagates(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	p, err := New(Config{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})})
	require.NoError(t, err)
	mr.Close()

	_, _, err = p.Get(ctx, "a")
	require.Error(t, err)
	require.Error(t, p.Set(ctx, "a", []byte("1"), pr.NoExpiry))
}

func TestFailedCallDialsTwice(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	var dials atomic.Int32
	var d net.Dialer
	client := goredis.NewClient(&goredis.Options{
		Addr:       addr,
		MaxRetries: -1,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dials.Add(1)
			return d.DialContext(ctx, network, addr)
		},
	})
	p, err := New(Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(ctx) })

	_, _, err = p.Get(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, int32(2), dials.Load(), "one attempt plus one retry")
}

func TestRecoversAfterRestart(t *testing.T) {
	ctx := context.Background()
	p, mr := setupTestRedis(t)

	require.NoError(t, p.Set(ctx, "a", []byte("1"), pr.NoExpiry))
	mr.Close()
	require.NoError(t, mr.Restart())

	// The pooled connection is dead; the retry gets a fresh one.
	_, _, err := p.Get(ctx, "a")
	require.NoError(t, err)
}
