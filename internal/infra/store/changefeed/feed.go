// Package changefeed turns "the quote list changed" signals into live
// snapshot subscriptions for stores that have no listener API of their own.
package changefeed

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

const Topic = "quotes.changed"

// Loader fetches the full current list.
type Loader func(ctx context.Context) ([]quote.Quote, error)

type Feed struct {
	pubsub *gochannel.GoChannel
	log    *slog.Logger
}

func New(log *slog.Logger) *Feed {
	log = logging.OrDiscard(log)
	return &Feed{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, &slogAdapter{log: log}),
		log:    log,
	}
}

// Notify tells every open stream to reload. reason ends up in the message
// metadata and in debug logs only.
func (f *Feed) Notify(reason string) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(reason))
	msg.Metadata.Set("reason", reason)
	if err := f.pubsub.Publish(Topic, msg); err != nil {
		f.log.Warn("changefeed: publish failed", slog.String("reason", reason), slog.Any("error", err))
	}
}

// Stream loads the list once right away and again after every Notify,
// coalescing notifications that arrive while a load is running.
func (f *Feed) Stream(ctx context.Context, load Loader) quote.Subscription {
	return quote.NewStream(ctx, func(ctx context.Context, emit func(quote.Snapshot) bool) {
		msgs, err := f.pubsub.Subscribe(ctx, Topic)
		if err != nil {
			emit(quote.Snapshot{Err: quote.NewStorageError("subscribe", err)})
			return
		}
		if !f.push(ctx, load, emit) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				msg.Ack()
				f.log.Debug("changefeed: change received", slog.String("reason", msg.Metadata.Get("reason")))
				drain(msgs)
				if !f.push(ctx, load, emit) {
					return
				}
			}
		}
	})
}

func (f *Feed) push(ctx context.Context, load Loader, emit func(quote.Snapshot) bool) bool {
	quotes, err := load(ctx)
	if ctx.Err() != nil {
		return false
	}
	return emit(quote.Snapshot{Quotes: quotes, Err: err})
}

func drain(msgs <-chan *message.Message) {
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			msg.Ack()
		default:
			return
		}
	}
}

func (f *Feed) Close() error {
	return f.pubsub.Close()
}

type slogAdapter struct{ log *slog.Logger }

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(fieldsToArgs(fields), "error", err)...)
}

func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}

func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}

func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}

func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{log: a.log.With(fieldsToArgs(fields)...)}
}

func fieldsToArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
