// Package local implements quote.Repository over a key-value store that
// holds the whole list as one JSON array under a fixed key.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/infra/store/changefeed"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

const Key = "impresos_uribe_quotes"

type Store struct {
	kv   KV
	feed *changefeed.Feed
	log  *slog.Logger
	now  func() time.Time

	// serialises read-modify-write cycles within this process
	mu sync.Mutex
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = logging.OrDiscard(l) } }

func New(kv KV, feed *changefeed.Feed, opts ...Option) *Store {
	s := &Store{kv: kv, feed: feed, log: logging.Discard(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ quote.Repository = (*Store)(nil)

func (s *Store) List(ctx context.Context) ([]quote.Quote, error) {
	quotes, err := s.read(ctx, "list")
	if err != nil {
		return nil, err
	}
	quote.SortByUpdated(quotes)
	return quotes, nil
}

func (s *Store) Get(ctx context.Context, id string) (quote.Quote, error) {
	quotes, err := s.read(ctx, "get")
	if err != nil {
		return quote.Quote{}, err
	}
	q, ok := quote.Find(quotes, id)
	if !ok {
		return quote.Quote{}, fmt.Errorf("get %s: %w", id, quote.ErrNotFound)
	}
	return q, nil
}

func (s *Store) Save(ctx context.Context, q quote.Quote) (quote.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes, err := s.read(ctx, "save")
	if err != nil {
		return quote.Quote{}, err
	}
	idx := -1
	for i := range quotes {
		if q.ID != "" && quotes[i].ID == q.ID {
			idx = i
			break
		}
	}
	var saved quote.Quote
	if idx >= 0 {
		saved = quote.Stamp(q, &quotes[idx], s.now())
		quotes[idx] = saved
	} else {
		saved = quote.Stamp(q, nil, s.now())
		quotes = append(quotes, saved)
	}
	if err := s.write(ctx, "save", quotes); err != nil {
		return quote.Quote{}, err
	}
	s.log.Debug("local: quote saved", slog.String("id", saved.ID), slog.Int64("updated_at", saved.UpdatedAt))
	s.notify("save")
	return saved, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes, err := s.read(ctx, "delete")
	if err != nil {
		return err
	}
	kept := quotes[:0]
	for _, q := range quotes {
		if q.ID != id {
			kept = append(kept, q)
		}
	}
	if err := s.write(ctx, "delete", kept); err != nil {
		return err
	}
	s.notify("delete")
	return nil
}

// Subscribe needs a change feed; without one the store is list-only.
func (s *Store) Subscribe(ctx context.Context) (quote.Subscription, error) {
	if s.feed == nil {
		return nil, quote.NewStorageError("subscribe", errors.New("no change feed configured"))
	}
	return s.feed.Stream(ctx, s.List), nil
}

func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) notify(reason string) {
	if s.feed != nil {
		s.feed.Notify(reason)
	}
}

func (s *Store) read(ctx context.Context, op string) ([]quote.Quote, error) {
	raw, err := s.kv.Get(ctx, Key)
	if err != nil {
		return nil, wrap(op, err)
	}
	if len(raw) == 0 {
		return []quote.Quote{}, nil
	}
	var quotes []quote.Quote
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return nil, quote.NewStorageError(op, fmt.Errorf("decode %s: %w", Key, err))
	}
	if quotes == nil {
		quotes = []quote.Quote{}
	}
	return quotes, nil
}

func (s *Store) write(ctx context.Context, op string, quotes []quote.Quote) error {
	raw, err := json.Marshal(quotes)
	if err != nil {
		return quote.NewStorageError(op, err)
	}
	if err := s.kv.Set(ctx, Key, raw); err != nil {
		return wrap(op, err)
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, ErrKVPermission) {
		return quote.NewPermissionError(op, err)
	}
	return quote.NewStorageError(op, err)
}
