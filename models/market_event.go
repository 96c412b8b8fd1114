package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MarketEventType string

const (
	EventListed                  MarketEventType = "Listed"
	EventUnlisted                MarketEventType = "Unlisted"
	EventPurchased               MarketEventType = "Purchased"
	EventBidPlaced               MarketEventType = "BidPlaced"
	EventBidRefunded             MarketEventType = "BidRefunded"
	EventBidWithdrawn            MarketEventType = "BidWithdrawn"
	EventBidAccepted             MarketEventType = "BidAccepted"
	EventFeeCollected            MarketEventType = "FeeCollected"
	EventCurrencyApprovalChanged MarketEventType = "CurrencyApprovalChanged"
	EventFeesWithdrawn           MarketEventType = "FeesWithdrawn"
)

// MarketEvent is published after every committed state change. The stream of
// events is enough to rebuild listings, bids and fee balances by replay.
type MarketEvent struct {
	ID           string          `json:"id"`
	Type         MarketEventType `json:"type"`
	ListingID    uint64          `json:"listing_id,omitempty"`
	Account      string          `json:"account,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Quantity     uint64          `json:"quantity,omitempty"`
	Currency     Currency        `json:"currency"`
	Approved     *bool           `json:"approved,omitempty"`
	Listing      *Listing        `json:"listing,omitempty"` // Listed only
	Auction      *Auction        `json:"auction,omitempty"` // Listed only
	OccurredAt   time.Time       `json:"occurred_at"`
}
