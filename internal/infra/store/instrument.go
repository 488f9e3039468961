// Package store holds what the repository backends share.
package store

import (
	"context"
	"log/slog"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/platform/logging"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

// Instrumented decorates a Repository with operation metrics and failure logs.
type Instrumented struct {
	next    quote.Repository
	backend string
	log     *slog.Logger
	metrics *metrics.Metrics
}

func Instrument(next quote.Repository, backend string, log *slog.Logger, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, backend: backend, log: logging.OrDiscard(log), metrics: m}
}

var _ quote.Repository = (*Instrumented)(nil)

func (r *Instrumented) List(ctx context.Context) ([]quote.Quote, error) {
	out, err := r.next.List(ctx)
	r.observe("list", err)
	return out, err
}

func (r *Instrumented) Get(ctx context.Context, id string) (quote.Quote, error) {
	out, err := r.next.Get(ctx, id)
	if quote.IsNotFound(err) {
		r.metrics.ObserveStore(r.backend, "get", nil)
		return out, err
	}
	r.observe("get", err)
	return out, err
}

func (r *Instrumented) Save(ctx context.Context, q quote.Quote) (quote.Quote, error) {
	out, err := r.next.Save(ctx, q)
	r.observe("save", err, slog.String("id", q.ID))
	return out, err
}

func (r *Instrumented) Delete(ctx context.Context, id string) error {
	err := r.next.Delete(ctx, id)
	r.observe("delete", err, slog.String("id", id))
	return err
}

func (r *Instrumented) Subscribe(ctx context.Context) (quote.Subscription, error) {
	sub, err := r.next.Subscribe(ctx)
	r.observe("subscribe", err)
	return sub, err
}

func (r *Instrumented) observe(op string, err error, attrs ...any) {
	r.metrics.ObserveStore(r.backend, op, err)
	if err != nil {
		args := append([]any{slog.String("backend", r.backend), slog.String("op", op), slog.Any("error", err)}, attrs...)
		r.log.Error("store: operation failed", args...)
	}
}
