// Package firestore implements quote.Repository on a Firestore collection,
// one document per quote keyed by its id.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

const updatedAtField = "updatedAt"

type Store struct {
	client *firestore.Client
	coll   *firestore.CollectionRef
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = logging.OrDiscard(l) } }

// NewClient opens a Firestore client. A nil ts falls back to the default
// credentials (or none, when FIRESTORE_EMULATOR_HOST is set).
func NewClient(ctx context.Context, projectID string, ts oauth2.TokenSource) (*firestore.Client, error) {
	var opts []option.ClientOption
	if ts != nil {
		opts = append(opts, option.WithTokenSource(ts))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, mapErr("connect", err)
	}
	return client, nil
}

func New(client *firestore.Client, collection string, opts ...Option) *Store {
	s := &Store{
		client: client,
		coll:   client.Collection(collection),
		log:    logging.Discard(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ quote.Repository = (*Store)(nil)

func (s *Store) ordered() firestore.Query {
	return s.coll.OrderBy(updatedAtField, firestore.Desc)
}

func (s *Store) List(ctx context.Context) ([]quote.Quote, error) {
	docs, err := s.ordered().Documents(ctx).GetAll()
	if err != nil {
		return nil, mapErr("list", err)
	}
	out, err := decodeAll(docs)
	if err != nil {
		return nil, quote.NewStorageError("list", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (quote.Quote, error) {
	snap, err := s.coll.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return quote.Quote{}, fmt.Errorf("get %s: %w", id, quote.ErrNotFound)
	}
	if err != nil {
		return quote.Quote{}, mapErr("get", err)
	}
	var q quote.Quote
	if err := snap.DataTo(&q); err != nil {
		return quote.Quote{}, quote.NewStorageError("get", err)
	}
	q.ID = snap.Ref.ID
	return q, nil
}

// Save overwrites the whole document inside a transaction; only the stored
// id and createdAt are carried over.
func (s *Store) Save(ctx context.Context, q quote.Quote) (quote.Quote, error) {
	if q.ID == "" {
		q = quote.Stamp(q, nil, s.now())
	}
	ref := s.coll.Doc(q.ID)
	var saved quote.Quote
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var prev *quote.Quote
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var p quote.Quote
			if err := snap.DataTo(&p); err != nil {
				return err
			}
			p.ID = ref.ID
			prev = &p
		}
		saved = quote.Stamp(q, prev, s.now())
		return tx.Set(ref, saved)
	})
	if err != nil {
		return quote.Quote{}, mapErr("save", err)
	}
	return saved, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.Doc(id).Delete(ctx); err != nil {
		return mapErr("delete", err)
	}
	return nil
}

// Subscribe uses the native query listener. Every listener event becomes a
// full snapshot of the collection.
func (s *Store) Subscribe(ctx context.Context) (quote.Subscription, error) {
	return quote.NewStream(ctx, func(ctx context.Context, emit func(quote.Snapshot) bool) {
		it := s.ordered().Snapshots(ctx)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if ctx.Err() != nil || errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				// the listener is dead after an error; report it and stop
				emit(quote.Snapshot{Err: mapErr("subscribe", err)})
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				if !emit(quote.Snapshot{Err: mapErr("subscribe", err)}) {
					return
				}
				continue
			}
			out, err := decodeAll(docs)
			if err != nil {
				if !emit(quote.Snapshot{Err: quote.NewStorageError("subscribe", err)}) {
					return
				}
				continue
			}
			if !emit(quote.Snapshot{Quotes: out}) {
				return
			}
		}
	}), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decodeAll(docs []*firestore.DocumentSnapshot) ([]quote.Quote, error) {
	out := make([]quote.Quote, 0, len(docs))
	for _, d := range docs {
		var q quote.Quote
		if err := d.DataTo(&q); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.Ref.ID, err)
		}
		q.ID = d.Ref.ID
		out = append(out, q)
	}
	return out, nil
}

func mapErr(op string, err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return quote.NewPermissionError(op, err)
	}
	return quote.NewStorageError(op, err)
}
