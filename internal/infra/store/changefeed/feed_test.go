package changefeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impresos-uribe/cotizaciones/internal/domain/quote"
)

type memList struct {
	mu     sync.Mutex
	quotes []quote.Quote
}

func (m *memList) set(q ...quote.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = q
}

func (m *memList) load(context.Context) ([]quote.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]quote.Quote(nil), m.quotes...), nil
}

func next(t *testing.T, sub quote.Subscription) quote.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
		return quote.Snapshot{}
	}
}

func TestStream_InitialThenNotify(t *testing.T) {
	feed := New(nil)
	defer feed.Close()

	list := &memList{}
	sub := feed.Stream(context.Background(), list.load)
	defer sub.Close()

	first := next(t, sub)
	require.NoError(t, first.Err)
	assert.Empty(t, first.Quotes)

	list.set(
		quote.Quote{ID: "a", UpdatedAt: 100},
		quote.Quote{ID: "b", UpdatedAt: 300},
	)
	feed.Notify("save")

	snap := next(t, sub)
	require.NoError(t, snap.Err)
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, "b", snap.Quotes[0].ID)
}

func TestStream_CloseStopsDelivery(t *testing.T) {
	feed := New(nil)
	defer feed.Close()

	list := &memList{}
	sub := feed.Stream(context.Background(), list.load)
	next(t, sub)

	sub.Close()
	sub.Close()
	feed.Notify("after close")

	_, ok := <-sub.Snapshots()
	assert.False(t, ok)
}
