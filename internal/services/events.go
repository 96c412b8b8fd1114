package services

import (
	"context"
	"sync"
	"time"

	"ticket-market/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives committed market events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.MarketEvent) error
}

// Emitter stamps events and fans them out to every sink in order. Sink
// failures are logged; the state change they describe has already committed.
type Emitter struct {
	mu     sync.RWMutex
	sinks  []Sink
	now    func() time.Time
	logger *zap.Logger
}

func NewEmitter(logger *zap.Logger, now func() time.Time, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, now: now, logger: logger}
}

func (e *Emitter) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

func (e *Emitter) Emit(ctx context.Context, events ...models.MarketEvent) {
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()

	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = e.now()
		}
		for _, s := range sinks {
			if err := s.Publish(ctx, ev); err != nil {
				e.logger.Warn("failed to publish market event",
					zap.String("sink", s.Name()),
					zap.String("type", string(ev.Type)),
					zap.Uint64("listing_id", ev.ListingID),
					zap.Error(err),
				)
			}
		}
	}
}

// MemorySink keeps every event it receives. Used by tests and the dev server.
type MemorySink struct {
	mu     sync.Mutex
	events []models.MarketEvent
}

func (m *MemorySink) Name() string { return "memory" }

func (m *MemorySink) Publish(_ context.Context, event models.MarketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemorySink) Events() []models.MarketEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MarketEvent(nil), m.events...)
}

func (m *MemorySink) Types() []models.MarketEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]models.MarketEventType, len(m.events))
	for i, ev := range m.events {
		types[i] = ev.Type
	}
	return types
}
