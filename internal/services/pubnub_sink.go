package services

import (
	"context"
	"fmt"

	"ticket-market/models"

	pubnub "github.com/pubnub/go/v7"
)

const DefaultMarketChannel = "market-events"

// Publisher sends one message to one real-time channel.
type Publisher interface {
	Publish(channel string, message any) error
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

// NewPubNubPublisher adapts a PubNub client to Publisher.
func NewPubNubPublisher(pn *pubnub.PubNub) Publisher {
	return &pubnubPublisher{pn: pn}
}

func (p *pubnubPublisher) Publish(channel string, message any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// PubNubSink broadcasts every event on the market channel and sends direct
// notices to the accounts an event concerns.
type PubNubSink struct {
	pub     Publisher
	channel string
}

func NewPubNubSink(pub Publisher, channel string) *PubNubSink {
	if channel == "" {
		channel = DefaultMarketChannel
	}
	return &PubNubSink{pub: pub, channel: channel}
}

func (s *PubNubSink) Name() string { return "pubnub" }

func (s *PubNubSink) Publish(_ context.Context, event models.MarketEvent) error {
	if err := s.pub.Publish(s.channel, event); err != nil {
		return fmt.Errorf("pubnub: publish %s: %w", event.Type, err)
	}

	var account string
	notice := map[string]any{
		"listing_id": event.ListingID,
		"amount":     event.Amount.String(),
		"currency":   event.Currency.String(),
	}
	switch event.Type {
	case models.EventBidRefunded:
		account = event.Account
		notice["type"] = "outbid"
		notice["by"] = event.Counterparty
	case models.EventBidAccepted:
		account = event.Counterparty
		notice["type"] = "auction_won"
	case models.EventPurchased:
		account = event.Counterparty
		notice["type"] = "tickets_sold"
		notice["quantity"] = event.Quantity
	default:
		return nil
	}

	if err := s.pub.Publish(userChannel(account), notice); err != nil {
		return fmt.Errorf("pubnub: notify %s: %w", account, err)
	}
	return nil
}

func userChannel(account string) string {
	return fmt.Sprintf("user-%s", account)
}
