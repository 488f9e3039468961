package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/infra/store/changefeed"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.data[key], nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Close() error { return nil }

type fixedClock struct{ ms int64 }

func (c *fixedClock) now() time.Time { return time.UnixMilli(c.ms) }

func newStore(t *testing.T, kv KV, clock *fixedClock) *Store {
	t.Helper()
	feed := changefeed.New(nil)
	t.Cleanup(func() { feed.Close() })
	return New(kv, feed, WithClock(clock.now))
}

func TestStore_SaveCreates(t *testing.T) {
	clock := &fixedClock{ms: 1_000}
	s := newStore(t, &memKV{}, clock)
	ctx := context.Background()

	saved, err := s.Save(ctx, quote.Quote{ID: "q1", ClientName: "Diana", Date: "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), saved.CreatedAt)
	assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)
	assert.Equal(t, quote.DefaultName, saved.QuoteName)

	got, err := s.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestStore_SavePreservesCreatedAt(t *testing.T) {
	clock := &fixedClock{ms: 1_000}
	s := newStore(t, &memKV{}, clock)
	ctx := context.Background()

	first, err := s.Save(ctx, quote.Quote{ID: "q1", ClientName: "Diana"})
	require.NoError(t, err)

	clock.ms = 5_000
	second, err := s.Save(ctx, quote.Quote{ID: "q1", ClientName: "Diana R.", CreatedAt: 42})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, int64(5_000), second.UpdatedAt)
	assert.Equal(t, "Diana R.", second.ClientName)

	// clock did not move; updatedAt still has to
	third, err := s.Save(ctx, second)
	require.NoError(t, err)
	assert.Greater(t, third.UpdatedAt, second.UpdatedAt)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListSorted(t *testing.T) {
	clock := &fixedClock{}
	s := newStore(t, &memKV{}, clock)
	ctx := context.Background()

	for i, ms := range []int64{100, 300, 200} {
		clock.ms = ms
		_, err := s.Save(ctx, quote.Quote{ID: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	var got []int64
	for _, q := range all {
		got = append(got, q.UpdatedAt)
	}
	assert.Equal(t, []int64{300, 200, 100}, got)
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s := newStore(t, &memKV{}, &fixedClock{ms: 1})
	ctx := context.Background()

	_, err := s.Save(ctx, quote.Quote{ID: "q1"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "q1"))
	require.NoError(t, s.Delete(ctx, "q1"))
	require.NoError(t, s.Delete(ctx, "never-existed"))

	_, err = s.Get(ctx, "q1")
	assert.True(t, quote.IsNotFound(err))
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()

	denied := newStore(t, &memKV{err: fmt.Errorf("%w: nope", ErrKVPermission)}, &fixedClock{})
	_, err := denied.Save(ctx, quote.Quote{ID: "q1"})
	assert.True(t, quote.IsPermissionDenied(err))

	broken := newStore(t, &memKV{err: fmt.Errorf("disk on fire")}, &fixedClock{})
	_, err = broken.List(ctx)
	assert.ErrorIs(t, err, quote.ErrStorage)
	assert.False(t, quote.IsPermissionDenied(err))

	garbage := newStore(t, &memKV{data: map[string][]byte{Key: []byte("{not json")}}, &fixedClock{})
	_, err = garbage.List(ctx)
	assert.ErrorIs(t, err, quote.ErrStorage)
}

func TestStore_Subscribe(t *testing.T) {
	clock := &fixedClock{ms: 10}
	s := newStore(t, &memKV{}, clock)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	recv := func() quote.Snapshot {
		select {
		case snap := <-sub.Snapshots():
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
			return quote.Snapshot{}
		}
	}

	first := recv()
	require.NoError(t, first.Err)
	assert.Empty(t, first.Quotes)

	_, err = s.Save(ctx, quote.Quote{ID: "q1", ClientName: "Diana"})
	require.NoError(t, err)

	snap := recv()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Quotes, 1)
	assert.Equal(t, "Diana", snap.Quotes[0].ClientName)
}

func TestFileKV(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)
	ctx := context.Background()

	v, err := kv.Get(ctx, Key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, kv.Set(ctx, Key, []byte(`[]`)))
	v, err = kv.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(v))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileKV_Permission(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o555))

	kv := &FileKV{Dir: dir}
	err := kv.Set(context.Background(), Key, []byte(`[]`))
	assert.ErrorIs(t, err, ErrKVPermission)
}

func TestRedisKV(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	kv, err := NewRedisKV(ctx, url)
	require.NoError(t, err)
	defer kv.Close()

	key := "cotizaciones_test_" + fmt.Sprint(time.Now().UnixNano())
	t.Cleanup(func() { kv.client.Del(context.Background(), key) })

	v, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, kv.Set(ctx, key, []byte(`[{"id":"a"}]`)))
	v, err = kv.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"}]`, string(v))
}
