package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/infra/store/changefeed"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

// Channel is the NOTIFY channel fired by the quotes table trigger.
const Channel = "quotes_changed"

type Store struct {
	db   *DB
	feed *changefeed.Feed
	log  *slog.Logger
	now  func() time.Time

	listening atomic.Bool
	wg        sync.WaitGroup
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = logging.OrDiscard(l) } }

func NewStore(db *DB, feed *changefeed.Feed, opts ...Option) *Store {
	s := &Store{db: db, feed: feed, log: logging.Discard(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ quote.Repository = (*Store)(nil)

func (s *Store) List(ctx context.Context) ([]quote.Quote, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT doc FROM quotes ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, mapErr("list", err)
	}
	defer rows.Close()

	out := []quote.Quote{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, mapErr("list", err)
		}
		q, err := decode(raw)
		if err != nil {
			return nil, quote.NewStorageError("list", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (quote.Quote, error) {
	var raw []byte
	err := s.db.Pool.QueryRow(ctx, `SELECT doc FROM quotes WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return quote.Quote{}, fmt.Errorf("get %s: %w", id, quote.ErrNotFound)
	}
	if err != nil {
		return quote.Quote{}, mapErr("get", err)
	}
	q, err := decode(raw)
	if err != nil {
		return quote.Quote{}, quote.NewStorageError("get", err)
	}
	return q, nil
}

// Save locks the existing row (if any) so createdAt and the updatedAt
// sequence are taken from the stored copy.
func (s *Store) Save(ctx context.Context, q quote.Quote) (quote.Quote, error) {
	var saved quote.Quote
	err := pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		var prev *quote.Quote
		if q.ID != "" {
			var raw []byte
			err := tx.QueryRow(ctx, `SELECT doc FROM quotes WHERE id = $1 FOR UPDATE`, q.ID).Scan(&raw)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
			case err != nil:
				return err
			default:
				p, err := decode(raw)
				if err != nil {
					return err
				}
				prev = &p
			}
		}
		saved = quote.Stamp(q, prev, s.now())
		doc, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO quotes (id, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
			saved.ID, doc, saved.CreatedAt, saved.UpdatedAt)
		return err
	})
	if err != nil {
		return quote.Quote{}, mapErr("save", err)
	}
	s.notifyLocal("save")
	return saved, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id); err != nil {
		return mapErr("delete", err)
	}
	s.notifyLocal("delete")
	return nil
}

func (s *Store) Subscribe(ctx context.Context) (quote.Subscription, error) {
	if s.feed == nil {
		return nil, quote.NewStorageError("subscribe", errors.New("no change feed configured"))
	}
	return s.feed.Stream(ctx, s.List), nil
}

// Listen bridges NOTIFY quotes_changed into the change feed until ctx is
// done, reconnecting after connection failures. Writes made by other
// processes reach subscribers this way.
func (s *Store) Listen(ctx context.Context) {
	if s.feed == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := time.Second
		for ctx.Err() == nil {
			err := s.listenOnce(ctx)
			s.listening.Store(false)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("postgres: listener stopped, reconnecting",
				slog.Any("error", err), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.db.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	s.listening.Store(true)
	s.log.Info("postgres: listening", slog.String("channel", Channel))
	// catch up on anything missed while reconnecting
	s.feed.Notify("listen")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.feed.Notify(n.Payload)
	}
}

// Wait blocks until the listener goroutine has returned.
func (s *Store) Wait() { s.wg.Wait() }

// notifyLocal covers the window where the listener is down.
func (s *Store) notifyLocal(reason string) {
	if s.feed != nil && !s.listening.Load() {
		s.feed.Notify(reason)
	}
}

func decode(raw []byte) (quote.Quote, error) {
	var q quote.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return quote.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	return q, nil
}

func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000", "28P01":
			return quote.NewPermissionError(op, err)
		}
	}
	return quote.NewStorageError(op, err)
}
