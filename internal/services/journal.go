package services

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket-market/models"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultJournalKey  = "market:events"
	journalReplayBatch = 500
)

// Journal appends every market event to a Redis list so the catalog and
// ledger state can be rebuilt from it.
type Journal struct {
	rdb redis.Cmdable
	key string
}

func NewJournal(rdb redis.Cmdable, key string) *Journal {
	if key == "" {
		key = DefaultJournalKey
	}
	return &Journal{rdb: rdb, key: key}
}

func (j *Journal) Name() string { return "redis-journal" }

func (j *Journal) Publish(ctx context.Context, event models.MarketEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", event.Type, err)
	}
	return j.rdb.RPush(ctx, j.key, string(data)).Err()
}

func (j *Journal) Len(ctx context.Context) (int64, error) {
	return j.rdb.LLen(ctx, j.key).Result()
}

// Replay feeds journaled events to fn in append order, reading in batches.
func (j *Journal) Replay(ctx context.Context, fn func(models.MarketEvent) error) error {
	for start := int64(0); ; start += journalReplayBatch {
		items, err := j.rdb.LRange(ctx, j.key, start, start+journalReplayBatch-1).Result()
		if err != nil {
			return fmt.Errorf("journal: read from %d: %w", start, err)
		}
		for i, raw := range items {
			var ev models.MarketEvent
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				return fmt.Errorf("journal: entry %d: %w", start+int64(i), err)
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		if len(items) < journalReplayBatch {
			return nil
		}
	}
}
