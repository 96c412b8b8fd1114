package services

import (
	"context"
	"errors"
	"sync"

	"ticket-market/models"

	"go.uber.org/zap"
)

const DefaultAsyncSinkBuffer = 1024

var ErrSinkClosed = errors.New("sink closed")

// AsyncSink hands events to a slow sink from a background goroutine so the
// caller's listing lock is held only for the enqueue. Events reach the inner
// sink in the order they were published. Publish blocks only while the
// buffer is full.
type AsyncSink struct {
	inner  Sink
	queue  chan models.MarketEvent
	done   chan struct{}
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewAsyncSink(inner Sink, buffer int, logger *zap.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = DefaultAsyncSinkBuffer
	}
	s := &AsyncSink{
		inner:  inner,
		queue:  make(chan models.MarketEvent, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.run()
	return s
}

func (s *AsyncSink) Name() string { return s.inner.Name() }

func (s *AsyncSink) Publish(ctx context.Context, event models.MarketEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until the queued ones are delivered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.inner.Publish(context.Background(), ev); err != nil {
			s.logger.Warn("failed to deliver market event",
				zap.String("sink", s.inner.Name()),
				zap.String("type", string(ev.Type)),
				zap.Uint64("listing_id", ev.ListingID),
				zap.Error(err),
			)
		}
	}
}
