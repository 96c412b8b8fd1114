package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingInactive ListingStatus = "inactive"
	ListingActive   ListingStatus = "active"
	ListingSold     ListingStatus = "sold"
)

type Listing struct {
	ID        uint64          `json:"id"`
	Holder    string          `json:"holder"` // empty once unlisted
	Seller    string          `json:"seller"`
	Price     decimal.Decimal `json:"price"` // per unit
	Quantity  uint64          `json:"quantity"`
	Sold      uint64          `json:"sold"`
	Status    ListingStatus   `json:"status"`
	Event     Event           `json:"event"`
	Currency  Currency        `json:"currency"`
	IsAuction bool            `json:"is_auction"`
	CreatedAt time.Time       `json:"created_at"`
}

func (l Listing) Remaining() uint64 {
	return l.Quantity - l.Sold
}

type AuctionStatus string

const (
	AuctionInactive AuctionStatus = "inactive" // no bid accepted yet
	AuctionActive   AuctionStatus = "active"
	AuctionEnded    AuctionStatus = "ended"
)

type Auction struct {
	ListingID     uint64          `json:"listing_id"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder string          `json:"highest_bidder,omitempty"`
	Status        AuctionStatus   `json:"status"`
	Currency      Currency        `json:"currency"`
}

func (a Auction) HasBids() bool {
	return a.HighestBidder != ""
}

// Bid is escrowed funds held for one bidder on one auction.
type Bid struct {
	Bidder   string          `json:"bidder"`
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}
