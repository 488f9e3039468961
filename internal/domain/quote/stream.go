package quote

import (
	"context"
	"sync"
)

// Producer pushes snapshots through emit until ctx is done. emit reports
// false once the consumer has gone away; the producer should then return.
type Producer func(ctx context.Context, emit func(Snapshot) bool)

type stream struct {
	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewStream runs produce in its own goroutine and exposes it as a Subscription.
// Every snapshot is copied and sorted before delivery.
func NewStream(ctx context.Context, produce Producer) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		ch:     make(chan Snapshot),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.ch)
		produce(ctx, func(snap Snapshot) bool {
			if snap.Err == nil {
				snap.Quotes = sortedCopy(snap.Quotes)
			}
			select {
			case s.ch <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return s
}

func (s *stream) Snapshots() <-chan Snapshot { return s.ch }

func (s *stream) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

func sortedCopy(in []Quote) []Quote {
	out := make([]Quote, len(in))
	for i, q := range in {
		out[i] = q.Clone()
	}
	SortByUpdated(out)
	return out
}
