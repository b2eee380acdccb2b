package market

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sudo-init-do/relicmarket/internal/events"
	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

type rig struct {
	engine  *Engine
	custody *ledger.MemoryCustody
	coins   *ledger.MemoryLedger
	sink    *events.MemorySink
	clock   time.Time
}

// newRig builds an engine over in-memory adapters with a 2% operator fee.
// alice owns relic-1 (no royalty) and relic-2 (10% royalty to artist);
// bob and carol each start with 10_000 credits.
func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		custody: ledger.NewMemoryCustody(),
		coins:   ledger.NewMemoryLedger("credits"),
		sink:    events.NewMemorySink(),
		clock:   t0,
	}
	reg := NewRegistry()
	if err := reg.Init("operator", 200); err != nil {
		t.Fatalf("init registry: %v", err)
	}
	r.engine = NewEngine(reg, r.custody, r.coins, r.sink,
		WithClock(func() time.Time { return r.clock }),
	)
	r.custody.Mint("relic-1", "alice", ledger.RoyaltyPolicy{})
	r.custody.Mint("relic-2", "alice", ledger.RoyaltyPolicy{Payee: "artist", Numerator: 1, Denominator: 10})
	r.coins.Deposit("bob", 10_000)
	r.coins.Deposit("carol", 10_000)
	return r
}

// total sums live and escrowed currency over every account that can hold it.
func (r *rig) total() int64 {
	var sum int64
	for _, acct := range []string{"alice", "bob", "carol", "operator", "artist"} {
		sum += r.coins.Balance(acct) + r.coins.Escrowed(acct)
	}
	return sum
}

func (r *rig) list(t *testing.T, assetID string, price int64, auction bool) View {
	t.Helper()
	v, err := r.engine.CreateListing(context.Background(), "alice", assetID, price, time.Hour, t0, auction)
	if err != nil {
		t.Fatalf("create listing %s: %v", assetID, err)
	}
	return v
}

func TestCreateListing(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	v := r.list(t, "relic-1", 300, false)
	if v.ListingID == 0 {
		t.Error("listing id should be issued")
	}
	if !r.custody.Held("relic-1") {
		t.Error("asset should be in marketplace custody")
	}
	// The original owner can no longer move the asset.
	if _, err := r.custody.Take(ctx, "relic-1", "alice"); !errors.Is(err, ledger.ErrNotOwner) {
		t.Errorf("take by seller while listed = %v, want ErrNotOwner", err)
	}
	// Exactly one listing exists for the asset.
	if _, err := r.engine.CreateListing(ctx, "alice", "relic-1", 500, time.Hour, t0, false); !errors.Is(err, ErrAlreadyListed) {
		t.Errorf("duplicate listing = %v, want ErrAlreadyListed", err)
	}

	kinds := r.sink.Kinds()
	if len(kinds) != 1 || kinds[0] != "listed" {
		t.Fatalf("events = %v, want [listed]", kinds)
	}
	listed := r.sink.Events()[0].(events.Listed)
	if listed.Seller != "alice" || listed.StartingPrice != 300 || listed.IsAuction {
		t.Errorf("Listed = %+v", listed)
	}
}

func TestCreateListing_NotOwner(t *testing.T) {
	r := newRig(t)
	_, err := r.engine.CreateListing(context.Background(), "bob", "relic-1", 300, time.Hour, t0, false)
	if !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if r.custody.Held("relic-1") {
		t.Error("failed create must not move the asset")
	}
}

func TestCreateListing_RoyaltySnapshotInEvent(t *testing.T) {
	r := newRig(t)
	r.list(t, "relic-2", 1000, true)
	listed := r.sink.Events()[0].(events.Listed)
	if listed.Royalty.Payee != "artist" || listed.Royalty.Numerator != 1 || listed.Royalty.Denominator != 10 {
		t.Errorf("royalty snapshot = %+v, want artist 1/10", listed.Royalty)
	}
}

func TestEngine_RequiresInit(t *testing.T) {
	custody := ledger.NewMemoryCustody()
	coins := ledger.NewMemoryLedger("credits")
	e := NewEngine(NewRegistry(), custody, coins, events.NewMemorySink())
	_, err := e.CreateListing(context.Background(), "alice", "relic-1", 300, time.Hour, t0, false)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if err := e.PlaceBid(context.Background(), "bob", "relic-1", 100); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestCancelListing_RoundTrip(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.list(t, "relic-1", 300, false)
	if err := r.engine.CancelListing(ctx, "alice", "relic-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Asset and store are back to the pre-listing state exactly.
	if r.custody.Held("relic-1") {
		t.Error("asset should be out of custody")
	}
	if owner, _ := r.custody.OwnerOf("relic-1"); owner != "alice" {
		t.Errorf("owner = %q, want alice", owner)
	}
	if _, err := r.engine.GetListing("relic-1"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("GetListing after cancel = %v, want ErrAlreadyClaimed", err)
	}
	// A second cancel fails rather than silently succeeding.
	if err := r.engine.CancelListing(ctx, "alice", "relic-1"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second cancel = %v, want ErrAlreadyClaimed", err)
	}

	kinds := r.sink.Kinds()
	if len(kinds) != 2 || kinds[1] != "delisted" {
		t.Fatalf("events = %v, want [listed delisted]", kinds)
	}
}

func TestCancelListing_NotSeller(t *testing.T) {
	r := newRig(t)
	r.list(t, "relic-1", 300, true)
	err := r.engine.CancelListing(context.Background(), "bob", "relic-1")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
	if _, err := r.engine.GetListing("relic-1"); err != nil {
		t.Error("listing must survive an unauthorized cancel")
	}
}

func TestCancelListing_RefundsEscrowedBid(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.list(t, "relic-1", 100, true)
	if err := r.engine.PlaceBid(ctx, "bob", "relic-1", 500); err != nil {
		t.Fatalf("bid: %v", err)
	}
	before := r.total()

	if err := r.engine.CancelListing(ctx, "alice", "relic-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := r.coins.Balance("bob"); got != 10_000 {
		t.Errorf("bob balance = %d, want full refund to 10000", got)
	}
	if got := r.coins.Escrowed("bob"); got != 0 {
		t.Errorf("bob escrowed = %d, want 0", got)
	}
	if got := r.total(); got != before {
		t.Errorf("total currency = %d, want %d", got, before)
	}
}

func TestPlaceBid_ModeAndSelfChecks(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-1", 300, false) // fixed price
	r.list(t, "relic-2", 100, true)  // auction

	if err := r.engine.PlaceBid(ctx, "bob", "relic-1", 400); !errors.Is(err, ErrItemNotAuction) {
		t.Errorf("bid on fixed-price = %v, want ErrItemNotAuction", err)
	}
	if err := r.engine.PlaceBid(ctx, "alice", "relic-2", 400); !errors.Is(err, ErrInvalidBuyer) {
		t.Errorf("self-bid = %v, want ErrInvalidBuyer", err)
	}
	if err := r.engine.PlaceBid(ctx, "bob", "relic-9", 400); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("bid on absent listing = %v, want ErrAlreadyClaimed", err)
	}
}

func TestPlaceBid_WindowBoundaries(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-2", 100, true) // window [t0, t0+1h]

	tests := []struct {
		name    string
		at      time.Time
		amount  int64
		wantErr error
	}{
		{"before start", t0.Add(-time.Second), 200, ErrAuctionInactive},
		{"at start", t0, 200, nil},
		{"mid window", t0.Add(30 * time.Minute), 300, nil},
		{"at end is still valid", t0.Add(time.Hour), 400, nil},
		{"after end", t0.Add(time.Hour + time.Second), 500, ErrAuctionInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.clock = tt.at
			err := r.engine.PlaceBid(ctx, "bob", "relic-2", tt.amount)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("bid: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("bid = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceBid_RefundOnOutbid(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-2", 100, true)
	before := r.total()

	if err := r.engine.PlaceBid(ctx, "bob", "relic-2", 500); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if got := r.coins.Escrowed("bob"); got != 500 {
		t.Errorf("bob escrowed = %d, want 500", got)
	}

	// A tie loses: strictly greater only.
	if err := r.engine.PlaceBid(ctx, "carol", "relic-2", 500); !errors.Is(err, ErrInsufficientBid) {
		t.Fatalf("tie bid = %v, want ErrInsufficientBid", err)
	}

	if err := r.engine.PlaceBid(ctx, "carol", "relic-2", 600); err != nil {
		t.Fatalf("outbid: %v", err)
	}
	// bob made whole, carol's deposit is the only escrow entry.
	if got := r.coins.Balance("bob"); got != 10_000 {
		t.Errorf("bob balance = %d, want 10000", got)
	}
	if got := r.coins.Escrowed("bob"); got != 0 {
		t.Errorf("bob escrowed = %d, want 0", got)
	}
	if got := r.coins.Escrowed("carol"); got != 600 {
		t.Errorf("carol escrowed = %d, want 600", got)
	}

	v, err := r.engine.GetListing("relic-2")
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if v.HighestBidder != "carol" || v.HighestPrice != 600 {
		t.Errorf("highest = %s/%d, want carol/600", v.HighestBidder, v.HighestPrice)
	}
	// Escrowed amount always equals the recorded highest price.
	if r.coins.Escrowed("carol") != v.HighestPrice {
		t.Error("escrowed amount must equal highest price")
	}
	// Currency is conserved across bid/outbid.
	if got := r.total(); got != before {
		t.Errorf("total currency = %d, want %d", got, before)
	}
}

func TestPlaceBid_InsufficientBalance(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-2", 100, true)

	err := r.engine.PlaceBid(ctx, "bob", "relic-2", 50_000)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// No partial state: no escrow entry, listing unchanged.
	v, _ := r.engine.GetListing("relic-2")
	if v.HighestBidder != "" || v.HighestPrice != 0 {
		t.Errorf("highest = %s/%d, want empty", v.HighestBidder, v.HighestPrice)
	}
	if got := r.coins.Balance("bob"); got != 10_000 {
		t.Errorf("bob balance = %d, want 10000", got)
	}
}

func TestSetPrice(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-1", 300, false)
	r.list(t, "relic-2", 100, true)

	if err := r.engine.SetPrice(ctx, "alice", "relic-2", 999); !errors.Is(err, ErrItemIsAuction) {
		t.Errorf("set price on auction = %v, want ErrItemIsAuction", err)
	}
	if err := r.engine.SetPrice(ctx, "bob", "relic-1", 999); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("set price by non-seller = %v, want ErrNotAuthorized", err)
	}
	if err := r.engine.SetPrice(ctx, "alice", "relic-9", 999); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("set price on absent listing = %v, want ErrAlreadyClaimed", err)
	}

	if err := r.engine.SetPrice(ctx, "alice", "relic-1", 450); err != nil {
		t.Fatalf("set price: %v", err)
	}
	v, _ := r.engine.GetListing("relic-1")
	if v.StartingPrice != 450 {
		t.Errorf("price = %d, want 450", v.StartingPrice)
	}
}

func TestBuyFixedPrice(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-1", 300, false)

	if err := r.engine.BuyFixedPrice(ctx, "alice", "relic-1"); !errors.Is(err, ErrInvalidBuyer) {
		t.Errorf("self-buy = %v, want ErrInvalidBuyer", err)
	}

	if err := r.engine.BuyFixedPrice(ctx, "bob", "relic-1"); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// P=300, fee 200bps -> 6, no royalty -> seller gets 294, buyer pays 300.
	if got := r.coins.Balance("bob"); got != 9_700 {
		t.Errorf("buyer balance = %d, want 9700", got)
	}
	if got := r.coins.Balance("alice"); got != 294 {
		t.Errorf("seller balance = %d, want 294", got)
	}
	if got := r.coins.Balance("operator"); got != 6 {
		t.Errorf("operator balance = %d, want 6", got)
	}

	if owner, _ := r.custody.OwnerOf("relic-1"); owner != "bob" {
		t.Errorf("owner = %q, want bob", owner)
	}
	if _, err := r.engine.GetListing("relic-1"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("listing after buy = %v, want ErrAlreadyClaimed", err)
	}

	evs := r.sink.Events()
	bought, ok := evs[len(evs)-1].(events.Bought)
	if !ok {
		t.Fatalf("last event = %T, want Bought", evs[len(evs)-1])
	}
	// The recorded amount is the seller's net proceeds, not the gross price.
	if bought.Amount != 294 {
		t.Errorf("Bought.Amount = %d, want 294", bought.Amount)
	}
}

func TestBuyFixedPrice_WithRoyalty(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-2", 1000, false)

	if err := r.engine.BuyFixedPrice(ctx, "carol", "relic-2"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// royalty floor(1*1000/10)=100, fee floor(1000*200/10000)=20, seller 880.
	if got := r.coins.Balance("artist"); got != 100 {
		t.Errorf("artist balance = %d, want 100", got)
	}
	if got := r.coins.Balance("operator"); got != 20 {
		t.Errorf("operator balance = %d, want 20", got)
	}
	if got := r.coins.Balance("alice"); got != 880 {
		t.Errorf("seller balance = %d, want 880", got)
	}
	if got := r.coins.Balance("carol"); got != 9_000 {
		t.Errorf("buyer balance = %d, want 9000", got)
	}
}

func TestBuyFixedPrice_UsesLatestPrice(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-1", 300, false)

	if err := r.engine.SetPrice(ctx, "alice", "relic-1", 500); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := r.engine.BuyFixedPrice(ctx, "bob", "relic-1"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// Settles at 500: fee 10, seller 490, buyer pays 500.
	if got := r.coins.Balance("bob"); got != 9_500 {
		t.Errorf("buyer balance = %d, want 9500", got)
	}
	if got := r.coins.Balance("alice"); got != 490 {
		t.Errorf("seller balance = %d, want 490", got)
	}
}

func TestBuyFixedPrice_WrongMode(t *testing.T) {
	r := newRig(t)
	r.list(t, "relic-2", 100, true)
	err := r.engine.BuyFixedPrice(context.Background(), "bob", "relic-2")
	if !errors.Is(err, ErrItemIsAuction) {
		t.Fatalf("err = %v, want ErrItemIsAuction", err)
	}
}

func TestBuyFixedPrice_InsufficientBalance(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-1", 300, false)
	r.coins.Deposit("dave", 10) // can't afford it

	err := r.engine.BuyFixedPrice(ctx, "dave", "relic-1")
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// Listing and custody untouched.
	if _, err := r.engine.GetListing("relic-1"); err != nil {
		t.Error("listing must survive a failed buy")
	}
	if !r.custody.Held("relic-1") {
		t.Error("asset must stay in custody after a failed buy")
	}
}

func TestSettleAuction(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-2", 100, true)

	if err := r.engine.PlaceBid(ctx, "bob", "relic-2", 400); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := r.engine.PlaceBid(ctx, "carol", "relic-2", 1000); err != nil {
		t.Fatalf("bid: %v", err)
	}

	// Window still open, and still open at the exact end instant.
	if err := r.engine.SettleAuction(ctx, "carol", "relic-2"); !errors.Is(err, ErrAuctionNotComplete) {
		t.Errorf("settle mid-window = %v, want ErrAuctionNotComplete", err)
	}
	r.clock = t0.Add(time.Hour)
	if err := r.engine.SettleAuction(ctx, "carol", "relic-2"); !errors.Is(err, ErrAuctionNotComplete) {
		t.Errorf("settle at window end = %v, want ErrAuctionNotComplete", err)
	}

	r.clock = t0.Add(time.Hour + time.Second)
	// Only the recorded highest bidder may claim.
	if err := r.engine.SettleAuction(ctx, "bob", "relic-2"); !errors.Is(err, ErrNotClaimable) {
		t.Errorf("settle by outbid bidder = %v, want ErrNotClaimable", err)
	}
	if err := r.engine.SettleAuction(ctx, "alice", "relic-2"); !errors.Is(err, ErrNotClaimable) {
		t.Errorf("settle by seller = %v, want ErrNotClaimable", err)
	}

	if err := r.engine.SettleAuction(ctx, "carol", "relic-2"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Split computed from the 1000 winning bid: royalty 100, fee 20, seller 880.
	if owner, _ := r.custody.OwnerOf("relic-2"); owner != "carol" {
		t.Errorf("owner = %q, want carol", owner)
	}
	if got := r.coins.Balance("artist"); got != 100 {
		t.Errorf("artist balance = %d, want 100", got)
	}
	if got := r.coins.Balance("operator"); got != 20 {
		t.Errorf("operator balance = %d, want 20", got)
	}
	if got := r.coins.Balance("alice"); got != 880 {
		t.Errorf("seller balance = %d, want 880", got)
	}
	if got := r.coins.Escrowed("carol"); got != 0 {
		t.Errorf("carol escrowed = %d, want 0", got)
	}
	if _, err := r.engine.GetListing("relic-2"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("listing after settle = %v, want ErrAlreadyClaimed", err)
	}

	kinds := r.sink.Kinds()
	// listed, bid, bid, token_claimed, coins_claimed
	want := []string{"listed", "bid_placed", "bid_placed", "token_claimed", "coins_claimed"}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestSettleAuction_NoBids(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.list(t, "relic-2", 100, true)
	r.clock = t0.Add(2 * time.Hour)

	if err := r.engine.SettleAuction(ctx, "bob", "relic-2"); !errors.Is(err, ErrNotClaimable) {
		t.Errorf("settle with no bids = %v, want ErrNotClaimable", err)
	}
	if err := r.engine.SettleAuction(ctx, "alice", "relic-2"); !errors.Is(err, ErrNotClaimable) {
		t.Errorf("settle by seller with no bids = %v, want ErrNotClaimable", err)
	}
}

func TestSettleAuction_WrongMode(t *testing.T) {
	r := newRig(t)
	r.list(t, "relic-1", 300, false)
	err := r.engine.SettleAuction(context.Background(), "bob", "relic-1")
	if !errors.Is(err, ErrItemNotAuction) {
		t.Fatalf("err = %v, want ErrItemNotAuction", err)
	}
}

// outageLedger fails the next n Release calls before recovering.
type outageLedger struct {
	*ledger.MemoryLedger
	failReleases int
}

func (l *outageLedger) Release(ctx context.Context, funds ledger.LockedFunds, legs []ledger.Leg) error {
	if l.failReleases > 0 {
		l.failReleases--
		return errors.New("ledger unavailable")
	}
	return l.MemoryLedger.Release(ctx, funds, legs)
}

// outageCustody fails the next n Return calls before recovering.
type outageCustody struct {
	*ledger.MemoryCustody
	failReturns int
}

func (c *outageCustody) Return(ctx context.Context, asset ledger.Asset, to string) error {
	if c.failReturns > 0 {
		c.failReturns--
		return errors.New("custody unavailable")
	}
	return c.MemoryCustody.Return(ctx, asset, to)
}

func TestSettleAuction_RetryAfterFailedDisbursement(t *testing.T) {
	ctx := context.Background()
	custody := ledger.NewMemoryCustody()
	coins := ledger.NewMemoryLedger("credits")
	flaky := &outageLedger{MemoryLedger: coins, failReleases: 1}
	reg := NewRegistry()
	if err := reg.Init("operator", 200); err != nil {
		t.Fatalf("init registry: %v", err)
	}
	clock := t0
	e := NewEngine(reg, custody, flaky, events.NewMemorySink(),
		WithClock(func() time.Time { return clock }),
	)
	custody.Mint("relic-1", "alice", ledger.RoyaltyPolicy{})
	coins.Deposit("bob", 10_000)

	if _, err := e.CreateListing(ctx, "alice", "relic-1", 100, time.Hour, t0, true); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.PlaceBid(ctx, "bob", "relic-1", 500); err != nil {
		t.Fatalf("bid: %v", err)
	}
	clock = t0.Add(2 * time.Hour)

	if err := e.SettleAuction(ctx, "bob", "relic-1"); err == nil {
		t.Fatal("settle should fail while the ledger is down")
	}
	// Nothing was consumed: the deposit stays locked, the listing stays in
	// the store and the asset stays in custody, so the claim can be retried.
	if got := coins.Escrowed("bob"); got != 500 {
		t.Errorf("bob escrowed after failed settle = %d, want 500", got)
	}
	if got := coins.Balance("alice"); got != 0 {
		t.Errorf("seller balance after failed settle = %d, want 0", got)
	}
	if _, err := e.GetListing("relic-1"); err != nil {
		t.Fatalf("listing must survive a failed settle: %v", err)
	}
	if !custody.Held("relic-1") {
		t.Error("asset must stay in custody after a failed settle")
	}

	if err := e.SettleAuction(ctx, "bob", "relic-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	// 500 winning bid at 200bps: fee 10, seller 490.
	if owner, _ := custody.OwnerOf("relic-1"); owner != "bob" {
		t.Errorf("owner = %q, want bob", owner)
	}
	if got := coins.Balance("alice"); got != 490 {
		t.Errorf("seller balance = %d, want 490", got)
	}
	if got := coins.Balance("operator"); got != 10 {
		t.Errorf("operator balance = %d, want 10", got)
	}
	if got := coins.Escrowed("bob"); got != 0 {
		t.Errorf("bob escrowed = %d, want 0", got)
	}
}

func TestBuyFixedPrice_RefundOnFailedHandOver(t *testing.T) {
	ctx := context.Background()
	custody := ledger.NewMemoryCustody()
	flaky := &outageCustody{MemoryCustody: custody}
	coins := ledger.NewMemoryLedger("credits")
	reg := NewRegistry()
	if err := reg.Init("operator", 200); err != nil {
		t.Fatalf("init registry: %v", err)
	}
	e := NewEngine(reg, flaky, coins, events.NewMemorySink())
	custody.Mint("relic-1", "alice", ledger.RoyaltyPolicy{})
	coins.Deposit("bob", 10_000)

	if _, err := e.CreateListing(ctx, "alice", "relic-1", 300, time.Hour, t0, false); err != nil {
		t.Fatalf("create: %v", err)
	}

	flaky.failReturns = 1
	if err := e.BuyFixedPrice(ctx, "bob", "relic-1"); err == nil {
		t.Fatal("buy should fail when the hand-over fails")
	}
	// The disbursement was reversed: the buyer paid nothing, nobody was
	// paid, and listing and custody are unchanged for a retry.
	if got := coins.Balance("bob"); got != 10_000 {
		t.Errorf("buyer balance after failed buy = %d, want 10000", got)
	}
	if got := coins.Balance("alice"); got != 0 {
		t.Errorf("seller balance after failed buy = %d, want 0", got)
	}
	if got := coins.Balance("operator"); got != 0 {
		t.Errorf("operator balance after failed buy = %d, want 0", got)
	}
	if _, err := e.GetListing("relic-1"); err != nil {
		t.Fatalf("listing must survive a failed buy: %v", err)
	}
	if !custody.Held("relic-1") {
		t.Error("asset must stay in custody after a failed buy")
	}

	if err := e.BuyFixedPrice(ctx, "bob", "relic-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if owner, _ := custody.OwnerOf("relic-1"); owner != "bob" {
		t.Errorf("owner = %q, want bob", owner)
	}
	if got := coins.Balance("bob"); got != 9_700 {
		t.Errorf("buyer balance = %d, want 9700", got)
	}
	if got := coins.Balance("alice"); got != 294 {
		t.Errorf("seller balance = %d, want 294", got)
	}
}

// walletlessLedger rejects payouts the way the database ledger does when a
// recipient has no wallet row.
type walletlessLedger struct {
	*ledger.MemoryLedger
	missing string
}

func (l *walletlessLedger) PayOut(ctx context.Context, from string, legs []ledger.Leg) error {
	for _, leg := range legs {
		if leg.To == l.missing {
			return fmt.Errorf("credit leg to %s: %w", leg.To, ledger.ErrWalletNotFound)
		}
	}
	return l.MemoryLedger.PayOut(ctx, from, legs)
}

func TestBuyFixedPrice_MissingPayeeWallet(t *testing.T) {
	ctx := context.Background()
	custody := ledger.NewMemoryCustody()
	coins := ledger.NewMemoryLedger("credits")
	strict := &walletlessLedger{MemoryLedger: coins, missing: "ghost-payee"}
	reg := NewRegistry()
	if err := reg.Init("operator", 200); err != nil {
		t.Fatalf("init registry: %v", err)
	}
	e := NewEngine(reg, custody, strict, events.NewMemorySink())
	custody.Mint("relic-1", "alice", ledger.RoyaltyPolicy{Payee: "ghost-payee", Numerator: 1, Denominator: 10})
	coins.Deposit("bob", 10_000)

	if _, err := e.CreateListing(ctx, "alice", "relic-1", 300, time.Hour, t0, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := e.BuyFixedPrice(ctx, "bob", "relic-1")
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
	// The whole settlement aborted: buyer not charged, listing intact.
	if got := coins.Balance("bob"); got != 10_000 {
		t.Errorf("buyer balance = %d, want 10000", got)
	}
	if _, err := e.GetListing("relic-1"); err != nil {
		t.Error("listing must survive the aborted settlement")
	}
}

func TestListings_MonotonicIDs(t *testing.T) {
	r := newRig(t)
	v1 := r.list(t, "relic-1", 300, false)
	v2 := r.list(t, "relic-2", 100, true)
	if v2.ListingID <= v1.ListingID {
		t.Errorf("listing ids %d then %d, want strictly increasing", v1.ListingID, v2.ListingID)
	}

	all := r.engine.Listings()
	if len(all) != 2 {
		t.Fatalf("len(Listings()) = %d, want 2", len(all))
	}
	if all[0].ListingID != v1.ListingID || all[1].ListingID != v2.ListingID {
		t.Errorf("Listings() order = %d,%d want %d,%d",
			all[0].ListingID, all[1].ListingID, v1.ListingID, v2.ListingID)
	}
}
