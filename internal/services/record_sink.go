package services

import (
	"context"
	"fmt"

	"ticket-market/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const MarketEventsCollection = "market_events"

// RecordSink stores market events as PocketBase records for per-listing
// history.
type RecordSink struct {
	app core.App
}

func NewRecordSink(app core.App) *RecordSink {
	return &RecordSink{app: app}
}

func (s *RecordSink) Name() string { return "pocketbase" }

func (s *RecordSink) Publish(ctx context.Context, event models.MarketEvent) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(MarketEventsCollection)
	if err != nil {
		return fmt.Errorf("record sink: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("event_id", event.ID)
	record.Set("type", string(event.Type))
	record.Set("listing_id", event.ListingID)
	record.Set("account", event.Account)
	record.Set("counterparty", event.Counterparty)
	record.Set("amount", event.Amount.String())
	record.Set("quantity", event.Quantity)
	record.Set("currency", event.Currency.String())
	record.Set("payload", event)
	record.Set("occurred_at", event.OccurredAt)

	return s.app.SaveWithContext(ctx, record)
}

type HistoryEntry struct {
	EventID      string         `db:"event_id" json:"event_id"`
	Type         string         `db:"type" json:"type"`
	Account      string         `db:"account" json:"account"`
	Counterparty string         `db:"counterparty" json:"counterparty"`
	Amount       string         `db:"amount" json:"amount"`
	Quantity     int64          `db:"quantity" json:"quantity"`
	Currency     string         `db:"currency" json:"currency"`
	OccurredAt   types.DateTime `db:"occurred_at" json:"occurred_at"`
}

// History returns the stored events of one listing, oldest first.
func (s *RecordSink) History(ctx context.Context, listingID uint64) ([]HistoryEntry, error) {
	rows := []HistoryEntry{}
	err := s.app.DB().
		Select("event_id", "type", "account", "counterparty", "amount", "quantity", "currency", "occurred_at").
		From(MarketEventsCollection).
		Where(dbx.HashExp{"listing_id": listingID}).
		OrderBy("occurred_at ASC", "rowid ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("record sink: history of listing %d: %w", listingID, err)
	}
	return rows, nil
}
