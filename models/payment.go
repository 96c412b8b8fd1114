package models

import (
	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelNative Channel = "native"
	ChannelToken  Channel = "token"
)

// Tender describes how a call pays: value attached on the native channel, or
// a pull against a token allowance (Value is ignored for tokens).
type Tender struct {
	Channel Channel         `json:"channel"`
	Value   decimal.Decimal `json:"value"`
}

func NativeTender(value decimal.Decimal) Tender {
	return Tender{Channel: ChannelNative, Value: value}
}

func TokenTender() Tender {
	return Tender{Channel: ChannelToken}
}

// Matches reports whether the tender pays through the channel the currency settles on.
func (t Tender) Matches(c Currency) bool {
	if c.IsNative() {
		return t.Channel == ChannelNative
	}
	return t.Channel == ChannelToken
}

type Receipt struct {
	ListingID uint64          `json:"listing_id"`
	Buyer     string          `json:"buyer"`
	Seller    string          `json:"seller"`
	Quantity  uint64          `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	Fee       decimal.Decimal `json:"fee"`
	Proceeds  decimal.Decimal `json:"proceeds"`
	Returned  decimal.Decimal `json:"returned"` // native overpayment handed back
	Currency  Currency        `json:"currency"`
}
