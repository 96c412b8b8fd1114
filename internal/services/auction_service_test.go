package services

import (
	"testing"

	"ticket-market/internal/status"
	"ticket-market/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) bidNative(id uint64, bidder string, amount int64) error {
	return f.market.Auctions.PlaceBid(f.ctx, BidRequest{
		ListingID: id, Bidder: bidder, Amount: d(amount), Tender: models.NativeTender(d(amount)),
	})
}

func (f *fixture) bidToken(id uint64, bidder string, amount int64) error {
	return f.market.Auctions.PlaceBid(f.ctx, BidRequest{
		ListingID: id, Bidder: bidder, Amount: d(amount), Tender: models.TokenTender(),
	})
}

func TestAuctionService_OutbidRefundsPreviousBidder(t *testing.T) {
	f := newFixture(t)
	f.approve("X")
	id := f.listAuction(models.Token("X"))
	f.fundToken("X", "bidder1", 100)
	f.fundToken("X", "bidder2", 100)
	f.openAuction()

	require.NoError(t, f.bidToken(id, "bidder1", 20))
	require.NoError(t, f.bidToken(id, "bidder2", 30))

	a := f.auction(id)
	assertAmount(t, 30, a.HighestBid)
	assert.Equal(t, "bidder2", a.HighestBidder)
	assert.Equal(t, models.AuctionActive, a.Status)

	assertAmount(t, 100, f.token("X", "bidder1"))
	assertAmount(t, 70, f.token("X", "bidder2"))
	assertAmount(t, 30, f.token("X", engineAccount))

	bid1, err := f.market.Queries.BidOf(id, "bidder1")
	require.NoError(t, err)
	assert.True(t, bid1.Amount.IsZero())

	err = f.market.Auctions.WithdrawBid(f.ctx, id, "bidder2")
	assert.ErrorIs(t, err, status.ErrHighestBidderCannotWithdraw)

	err = f.market.Auctions.WithdrawBid(f.ctx, id, "bidder1")
	assert.ErrorIs(t, err, status.ErrNoBidToWithdraw)

	assert.Equal(t, []models.MarketEventType{
		models.EventCurrencyApprovalChanged,
		models.EventListed,
		models.EventBidPlaced,
		models.EventBidPlaced,
		models.EventBidRefunded,
	}, f.sink.Types())
	refund := f.sink.Events()[4]
	assert.Equal(t, "bidder1", refund.Account)
	assertAmount(t, 20, refund.Amount)
	f.assertReconciled()
}

func TestAuctionService_BidOutsideWindow(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.fundNative("bidder", 100)

	err := f.bidNative(id, "bidder", 10)
	assert.ErrorIs(t, err, status.ErrAuctionNotStarted)

	f.closeAuction()
	err = f.bidNative(id, "bidder", 10)
	assert.ErrorIs(t, err, status.ErrAuctionEnded)

	a := f.auction(id)
	assert.Equal(t, models.AuctionInactive, a.Status)
	assert.True(t, a.HighestBid.IsZero())
	assert.False(t, a.HasBids())
	assertAmount(t, 100, f.native("bidder"))
}

func TestAuctionService_BidTooLow(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.fundNative("alice", 100)
	f.fundNative("bob", 100)
	f.openAuction()

	assert.ErrorIs(t, f.bidNative(id, "alice", 0), status.ErrBidTooLow)
	require.NoError(t, f.bidNative(id, "alice", 40))
	assert.ErrorIs(t, f.bidNative(id, "bob", 40), status.ErrBidTooLow)
	assert.ErrorIs(t, f.bidNative(id, "bob", 39), status.ErrBidTooLow)

	assertAmount(t, 100, f.native("bob"))
	assert.Equal(t, "alice", f.auction(id).HighestBidder)
}

func TestAuctionService_FractionalBidRejected(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.fundNative("alice", 100)
	f.openAuction()

	half := decimal.RequireFromString("10.5")
	err := f.market.Auctions.PlaceBid(f.ctx, BidRequest{
		ListingID: id, Bidder: "alice", Amount: half, Tender: models.NativeTender(half),
	})
	assert.ErrorIs(t, err, status.ErrBidTooLow)
	assertAmount(t, 100, f.native("alice"))
	assert.False(t, f.auction(id).HasBids())
}

func TestAuctionService_BidRejections(t *testing.T) {
	f := newFixture(t)
	direct := f.listDirect(100, 1, models.Native())
	id := f.listAuction(models.Native())
	f.fundNative("bidder", 100)
	f.openAuction()

	assert.ErrorIs(t, f.bidNative(77, "bidder", 10), status.ErrNotFound)
	assert.ErrorIs(t, f.bidNative(direct, "bidder", 10), status.ErrNotAnAuction)
	assert.ErrorIs(t, f.bidToken(id, "bidder", 10), status.ErrCurrencyMismatch)

	err := f.market.Auctions.PlaceBid(f.ctx, BidRequest{
		ListingID: id, Bidder: "bidder", Amount: d(50), Tender: models.NativeTender(d(49)),
	})
	assert.ErrorIs(t, err, status.ErrInsufficientFunds)

	assert.ErrorIs(t, f.bidNative(id, "bidder", 500), status.ErrInsufficientFunds)
	assertAmount(t, 100, f.native("bidder"))

	require.NoError(t, f.market.Registry.Unlist(f.ctx, direct, seller))
	assert.ErrorIs(t, f.bidNative(direct, "bidder", 10), status.ErrNotFound)
}

func TestAuctionService_HighestBidderRaisesOwnBid(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.fundNative("alice", 100)
	f.openAuction()

	require.NoError(t, f.bidNative(id, "alice", 30))
	err := f.market.Auctions.PlaceBid(f.ctx, BidRequest{
		ListingID: id, Bidder: "alice", Amount: d(45), Tender: models.NativeTender(d(15)),
	})
	require.NoError(t, err)

	assertAmount(t, 55, f.native("alice"))
	assertAmount(t, 45, f.native(engineAccount))
	bid, err := f.market.Queries.BidOf(id, "alice")
	require.NoError(t, err)
	assertAmount(t, 45, bid.Amount)
	assert.NotContains(t, f.sink.Types(), models.EventBidRefunded)
	f.assertReconciled()
}

func TestAuctionService_RefundFailureAbortsBid(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.fundNative("alice", 100)
	f.fundNative("bob", 100)
	f.openAuction()

	require.NoError(t, f.bidNative(id, "alice", 20))
	f.mem.Reject("alice", true)

	err := f.bidNative(id, "bob", 30)

	assert.ErrorIs(t, err, status.ErrTransferFailed)
	a := f.auction(id)
	assertAmount(t, 20, a.HighestBid)
	assert.Equal(t, "alice", a.HighestBidder)
	assertAmount(t, 100, f.native("bob"))
	assertAmount(t, 20, f.native(engineAccount))
	f.assertReconciled()

	f.mem.Reject("alice", false)
	require.NoError(t, f.bidNative(id, "bob", 30))
	assertAmount(t, 100, f.native("alice"))
	f.assertReconciled()
}

func TestAuctionService_WithdrawBidRejections(t *testing.T) {
	f := newFixture(t)
	direct := f.listDirect(100, 1, models.Native())
	id := f.listAuction(models.Native())
	f.openAuction()

	assert.ErrorIs(t, f.market.Auctions.WithdrawBid(f.ctx, 99, "x"), status.ErrNotFound)
	assert.ErrorIs(t, f.market.Auctions.WithdrawBid(f.ctx, direct, "x"), status.ErrNotAnAuction)
	assert.ErrorIs(t, f.market.Auctions.WithdrawBid(f.ctx, id, "x"), status.ErrNoBidToWithdraw)

	f.closeAuction()
	assert.ErrorIs(t, f.market.Auctions.WithdrawBid(f.ctx, id, "x"), status.ErrAuctionEnded)
}

func TestAuctionService_WithdrawStaleBid(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.openAuction()

	// A live bid that is no longer the highest can only come from older
	// state, so it is planted directly.
	entry := f.market.Registry.entry(id)
	entry.mu.Lock()
	entry.bids["carol"] = models.Bid{Bidder: "carol", Amount: d(5), Currency: models.Native()}
	entry.auction.HighestBid = d(10)
	entry.auction.HighestBidder = "dave"
	entry.bids["dave"] = models.Bid{Bidder: "dave", Amount: d(10), Currency: models.Native()}
	entry.auction.Status = models.AuctionActive
	entry.mu.Unlock()
	f.fundNative(engineAccount, 15)

	require.NoError(t, f.market.Auctions.WithdrawBid(f.ctx, id, "carol"))

	assertAmount(t, 5, f.native("carol"))
	bid, err := f.market.Queries.BidOf(id, "carol")
	require.NoError(t, err)
	assert.True(t, bid.Amount.IsZero())
	assert.Contains(t, f.sink.Types(), models.EventBidWithdrawn)
	f.assertReconciled()
}

func TestAuctionService_AcceptHighestBid(t *testing.T) {
	f := newFixture(t)
	id := f.listAuction(models.Native())
	f.fundNative("alice", 2000)
	f.fundNative("bob", 2000)
	f.openAuction()
	require.NoError(t, f.bidNative(id, "alice", 500))
	require.NoError(t, f.bidNative(id, "bob", 1000))

	_, err := f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)
	assert.ErrorIs(t, err, status.ErrAuctionNotEnded)

	f.closeAuction()
	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, id, "alice")
	assert.ErrorIs(t, err, status.ErrNotOwner)

	receipt, err := f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)
	require.NoError(t, err)

	assert.Equal(t, "bob", receipt.Buyer)
	assertAmount(t, 1000, receipt.Total)
	assertAmount(t, 20, receipt.Fee)
	assertAmount(t, 980, receipt.Proceeds)
	assert.Equal(t, uint64(4), receipt.Quantity)

	l := f.listing(id)
	assert.Equal(t, models.ListingSold, l.Status)
	assert.Equal(t, l.Quantity, l.Sold)
	assert.Equal(t, "bob", l.Holder)
	assert.Equal(t, models.AuctionEnded, f.auction(id).Status)

	assert.Empty(t, f.market.Queries.ListingsHeldBy(seller))
	assert.Equal(t, []uint64{id}, f.market.Queries.ListingsHeldBy("bob"))
	assertAmount(t, 980, f.native(seller))
	assertAmount(t, 20, f.market.Queries.FeeBalance(models.Native()))
	assertAmount(t, 20, f.native(engineAccount))
	assertAmount(t, 2000, f.native("alice"))
	f.assertReconciled()

	// settlement is one-shot
	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)
	assert.ErrorIs(t, err, status.ErrAuctionEnded)
	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, id, "bob")
	assert.ErrorIs(t, err, status.ErrAuctionEnded)
	assertAmount(t, 980, f.native(seller))
	assertAmount(t, 20, f.market.Queries.FeeBalance(models.Native()))
}

func TestAuctionService_AcceptRejections(t *testing.T) {
	f := newFixture(t)
	direct := f.listDirect(100, 1, models.Native())
	id := f.listAuction(models.Native())
	f.closeAuction()

	_, err := f.market.Auctions.AcceptHighestBid(f.ctx, 99, seller)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, direct, seller)
	assert.ErrorIs(t, err, status.ErrNotAnAuction)

	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)
	assert.ErrorIs(t, err, status.ErrNoBidsPlaced)

	require.NoError(t, f.market.Registry.Unlist(f.ctx, id, seller))
	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)
	assert.ErrorIs(t, err, status.ErrAuctionEnded)
}

func TestAuctionService_AcceptPayoutRejected(t *testing.T) {
	f := newFixture(t)
	f.approve("X")
	id := f.listAuction(models.Token("X"))
	f.fundToken("X", "bob", 100)
	f.openAuction()
	require.NoError(t, f.bidToken(id, "bob", 100))
	f.closeAuction()
	f.mem.Reject(seller, true)

	_, err := f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)

	assert.ErrorIs(t, err, status.ErrTokenTransferFailed)
	assert.Equal(t, models.ListingActive, f.listing(id).Status)
	assert.Equal(t, models.AuctionActive, f.auction(id).Status)
	assertAmount(t, 100, f.token("X", engineAccount))
	f.assertReconciled()

	f.mem.Reject(seller, false)
	_, err = f.market.Auctions.AcceptHighestBid(f.ctx, id, seller)
	require.NoError(t, err)
	assertAmount(t, 98, f.token("X", seller))
	assertAmount(t, 2, f.market.Queries.FeeBalance(models.Token("X")))
	f.assertReconciled()
}
